package delivery

import (
	"context"
	"errors"

	"github.com/kursadbilgin/safeher/internal/domain"
)

const (
	StrategySilent = "silent"
	StrategyManual = "manual"
)

// ErrChannelUnavailable means a strategy cannot deliver to anyone, as opposed to
// failing for individual recipients.
var ErrChannelUnavailable = errors.New("delivery channel unavailable")

// Channel delivers one message to a batch of recipients.
type Channel interface {
	Deliver(ctx context.Context, phones []string, message string) (*Report, error)
}

// Report is the per-recipient outcome of one batch.
type Report struct {
	Strategy  string
	Sent      []string
	Failed    []domain.RecipientError
	Cancelled bool
}

func (r *Report) SentCount() int {
	if r == nil {
		return 0
	}
	return len(r.Sent)
}

func (r *Report) FailedPhones() []string {
	if r == nil || len(r.Failed) == 0 {
		return nil
	}
	phones := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		phones = append(phones, f.Phone)
	}
	return phones
}
