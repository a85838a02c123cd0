package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	singleSegmentLength = 160
	multipartSegment    = 153
)

var _ SMSSender = (*SMSGateway)(nil)

type smsRequest struct {
	To    string   `json:"to"`
	Parts []string `json:"parts"`
}

// SMSGateway delivers SMS through an HTTP gateway without user interaction.
type SMSGateway struct {
	client   *resty.Client
	endpoint string
}

func NewSMSGateway(endpoint string) (*SMSGateway, error) {
	return NewSMSGatewayWithClient(endpoint, resty.New())
}

func NewSMSGatewayWithClient(endpoint string, client *resty.Client) (*SMSGateway, error) {
	trimmed, err := parseEndpoint(endpoint, "sms gateway")
	if err != nil {
		return nil, err
	}
	client, err = newRestyClient(client, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	return &SMSGateway{client: client, endpoint: trimmed}, nil
}

func (g *SMSGateway) SendSMS(ctx context.Context, phone string, message string) (*SendResult, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("sms gateway is not initialized")
	}
	if strings.TrimSpace(phone) == "" {
		return nil, &ProviderError{Message: "recipient phone is empty"}
	}

	parts := SplitMessage(message)
	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(smsRequest{To: phone, Parts: parts}).
		Post(g.endpoint)
	if err != nil {
		return nil, requestError(err)
	}
	if response == nil {
		return nil, &ProviderError{Message: "gateway returned empty response", Transient: true}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResult{
			StatusCode: statusCode,
			MessageID:  messageIDFromHeaders(response),
			Parts:      len(parts),
		}, nil
	}

	return nil, statusError(statusCode, strings.TrimSpace(response.String()))
}

// SplitMessage divides text into SMS segments. Text that fits one segment is
// returned as is; longer text is cut into concatenation-sized parts.
func SplitMessage(text string) []string {
	runes := []rune(text)
	if len(runes) <= singleSegmentLength {
		return []string{text}
	}

	parts := make([]string, 0, len(runes)/multipartSegment+1)
	for start := 0; start < len(runes); start += multipartSegment {
		end := min(start+multipartSegment, len(runes))
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
