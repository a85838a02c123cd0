package domain

import (
	"fmt"
	"strings"
	"time"
)

// Capability is a platform permission the pipeline depends on.
type Capability string

const (
	CapabilityLocation      Capability = "location"
	CapabilitySMS           Capability = "sms"
	CapabilityNotifications Capability = "notifications"
)

func (c Capability) String() string { return string(c) }

func (c Capability) IsValid() bool {
	switch c {
	case CapabilityLocation, CapabilitySMS, CapabilityNotifications:
		return true
	}
	return false
}

func ParseCapabilityFromString(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: invalid capability %q", ErrValidation, s)
	}
	return c, nil
}

// Outcome is the aggregate result of one dispatch.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

func (o Outcome) String() string { return string(o) }

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeCancelled:
		return true
	}
	return false
}

// TriggerKind identifies what started a dispatch.
type TriggerKind string

const (
	TriggerManual TriggerKind = "manual"
	TriggerShake  TriggerKind = "shake"
)

func (k TriggerKind) String() string { return string(k) }

func (k TriggerKind) IsValid() bool {
	switch k {
	case TriggerManual, TriggerShake:
		return true
	}
	return false
}

// Position is a single device location fix.
type Position struct {
	Latitude   float64
	Longitude  float64
	Accuracy   *float64
	CapturedAt time.Time
}

func (p Position) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrValidation, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrValidation, p.Longitude)
	}
	return nil
}

// Coordinates formats p as "lat, lon" with six decimals.
func (p Position) Coordinates() string {
	return fmt.Sprintf("%.6f, %.6f", p.Latitude, p.Longitude)
}

// AlertAttempt records one dispatch invocation. It is not mutated after completion.
type AlertAttempt struct {
	ID               string
	Trigger          TriggerKind
	ContactsTargeted []string
	Message          string
	Outcome          Outcome
	SentCount        int
	FailedRecipients []string
	Error            *string
	Latitude         *float64
	Longitude        *float64
	CreatedAt        time.Time
}
