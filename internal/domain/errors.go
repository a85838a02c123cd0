package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrUnauthorized is returned for a missing, unknown or revoked auth token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoContacts is returned when an alert is requested with an empty contact list.
	ErrNoContacts = errors.New("no emergency contacts configured")
	// ErrLocationUnavailable is returned when neither a live fix nor a cached position exists.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrCancelled is returned when the user aborts a manual flow before anything was sent.
	ErrCancelled = errors.New("alert cancelled")
	// ErrDispatchInProgress is returned when a dispatch is requested while another one runs.
	ErrDispatchInProgress = fmt.Errorf("%w: alert dispatch already in progress", ErrConflict)
)

// PermissionDeniedError reports a capability the user has not granted.
type PermissionDeniedError struct {
	Capability Capability
}

func (e *PermissionDeniedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("permission denied: %s", e.Capability)
}

func NewPermissionDenied(capability Capability) error {
	return &PermissionDeniedError{Capability: capability}
}

// IsPermissionDenied reports whether err is a PermissionDeniedError and returns its capability.
func IsPermissionDenied(err error) (Capability, bool) {
	var permErr *PermissionDeniedError
	if errors.As(err, &permErr) && permErr != nil {
		return permErr.Capability, true
	}
	return "", false
}

// RecipientError is the delivery failure for a single phone number.
type RecipientError struct {
	Phone string
	Err   error
}

func (e RecipientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phone, e.Err)
}

// DeliveryFailedError carries every per-recipient failure of a dispatch where nothing was sent.
type DeliveryFailedError struct {
	Recipients []RecipientError
}

func (e *DeliveryFailedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Recipients) == 0 {
		return "delivery failed"
	}

	parts := make([]string, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		parts = append(parts, r.Error())
	}
	return "delivery failed: " + strings.Join(parts, "; ")
}

func (e *DeliveryFailedError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
