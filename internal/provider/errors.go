package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProviderError classifies outbound call failures. Transient errors may succeed on a
// later attempt; Structural errors mean the provider itself is unusable (bad
// credentials, missing endpoint) rather than the single request.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Structural bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "provider error")

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an error may clear up on its own.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsStructural reports whether err says the provider cannot serve any request.
func IsStructural(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Structural
	}

	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// FailureReason is a low-cardinality label for metrics and logs.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsStructural(err):
		return "structural_error"
	case IsTransient(err):
		return "transient_error"
	default:
		return "permanent_error"
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func isStructuralHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusPaymentRequired:
		return true
	}
	return false
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func requestError(err error) *ProviderError {
	return &ProviderError{
		Message:    "provider request failed",
		Transient:  !errors.Is(err, context.Canceled),
		Structural: IsStructural(err),
		Cause:      err,
	}
}

func statusError(statusCode int, body string) *ProviderError {
	return &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, body),
		Transient:  isTransientHTTPStatus(statusCode),
		Structural: isStructuralHTTPStatus(statusCode),
	}
}
