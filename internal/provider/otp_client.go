package provider

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
)

type sendOTPRequest struct {
	Phone string `json:"phoneNo"`
}

type sendOTPResponse struct {
	SessionID string `json:"sessionId"`
}

type verifyOTPRequest struct {
	Phone     string `json:"phoneNo"`
	SessionID string `json:"sessionId"`
	Code      string `json:"otp"`
}

type verifyOTPResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
}

// OTPClient talks to the backend that sends and checks one-time passwords.
type OTPClient struct {
	client  *resty.Client
	baseURL string
}

func NewOTPClient(baseURL string) (*OTPClient, error) {
	return NewOTPClientWithClient(baseURL, resty.New())
}

func NewOTPClientWithClient(baseURL string, client *resty.Client) (*OTPClient, error) {
	trimmed, err := parseEndpoint(baseURL, "auth service")
	if err != nil {
		return nil, err
	}
	client, err = newRestyClient(client, defaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	return &OTPClient{client: client, baseURL: strings.TrimRight(trimmed, "/")}, nil
}

// SendOTP asks the backend to text a code to phone and returns its session id.
func (c *OTPClient) SendOTP(ctx context.Context, phone string) (string, error) {
	var result sendOTPResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetBody(sendOTPRequest{Phone: phone}).
		SetResult(&result).
		Post(c.baseURL + "/send-otp")
	if err != nil {
		return "", requestError(err)
	}
	if response.StatusCode() < http.StatusOK || response.StatusCode() >= http.StatusMultipleChoices {
		return "", statusError(response.StatusCode(), strings.TrimSpace(response.String()))
	}
	if strings.TrimSpace(result.SessionID) == "" {
		return "", &ProviderError{StatusCode: response.StatusCode(), Message: "auth service returned no session id"}
	}
	return result.SessionID, nil
}

// VerifyOTP returns the backend-issued token, or an empty token when the code is wrong.
func (c *OTPClient) VerifyOTP(ctx context.Context, phone string, sessionID string, code string) (string, error) {
	var result verifyOTPResponse
	response, err := c.client.R().
		SetContext(ctx).
		SetBody(verifyOTPRequest{Phone: phone, SessionID: sessionID, Code: code}).
		SetResult(&result).
		Post(c.baseURL + "/verify-otp")
	if err != nil {
		return "", requestError(err)
	}

	switch status := response.StatusCode(); {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		if !result.Success {
			return "", nil
		}
		return strings.TrimSpace(result.Token), nil
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return "", nil
	default:
		return "", statusError(status, strings.TrimSpace(response.String()))
	}
}
