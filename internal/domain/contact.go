package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	MaxContactNameLength = 100
	MinPhoneDigits       = 7
	MaxPhoneDigits       = 15
)

// Contact is an emergency contact that receives alert messages.
type Contact struct {
	ID        string
	Name      string
	Phone     string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: contact name is required", ErrValidation)
	}
	if len([]rune(c.Name)) > MaxContactNameLength {
		return fmt.Errorf("%w: contact name exceeds %d characters", ErrValidation, MaxContactNameLength)
	}
	if c.Phone == "" {
		return fmt.Errorf("%w: contact phone is required", ErrValidation)
	}

	digits := strings.TrimPrefix(c.Phone, "+")
	for _, r := range digits {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: contact phone %q must contain digits only", ErrValidation, c.Phone)
		}
	}
	if n := len(digits); n < MinPhoneDigits || n > MaxPhoneDigits {
		return fmt.Errorf("%w: contact phone must have between %d and %d digits (got %d)", ErrValidation, MinPhoneDigits, MaxPhoneDigits, n)
	}

	return nil
}

// NormalizePhone strips spaces, dashes, dots and parentheses. A leading plus is kept.
func NormalizePhone(phone string) string {
	trimmed := strings.TrimSpace(phone)
	var b strings.Builder
	b.Grow(len(trimmed))
	for i, r := range trimmed {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ', r == '-', r == '.', r == '(', r == ')':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Phones returns the phone numbers of contacts in display order.
func Phones(contacts []Contact) []string {
	phones := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if c.Phone == "" {
			continue
		}
		phones = append(phones, c.Phone)
	}
	return phones
}
