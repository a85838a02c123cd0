package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRequestTimeout = 10 * time.Second

// SMSSender is the outbound SMS port used by silent delivery.
type SMSSender interface {
	SendSMS(ctx context.Context, phone string, message string) (*SendResult, error)
}

// SendResult stores gateway call metadata for logging.
type SendResult struct {
	StatusCode int
	MessageID  string
	Parts      int
}

func newRestyClient(client *resty.Client, timeout time.Duration) (*resty.Client, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(timeout)
	}
	client.SetRetryCount(0)
	return client, nil
}

func parseEndpoint(endpoint string, name string) (string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return "", fmt.Errorf("%s endpoint is required", name)
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return "", fmt.Errorf("invalid %s endpoint: %w", name, err)
	}
	return trimmed, nil
}

func messageIDFromHeaders(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Message-ID", "X-Message-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
