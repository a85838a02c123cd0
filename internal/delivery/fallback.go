package delivery

import (
	"context"
	"errors"

	"github.com/kursadbilgin/safeher/internal/observability"
	"go.uber.org/zap"
)

// FallbackChannel uses primary and switches the whole batch to fallback when primary
// is structurally unavailable. It never splits a batch across strategies.
type FallbackChannel struct {
	primary  Channel
	fallback Channel
	logger   *zap.Logger
}

func NewFallbackChannel(primary Channel, fallback Channel, logger *zap.Logger) *FallbackChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackChannel{primary: primary, fallback: fallback, logger: logger}
}

func (f *FallbackChannel) Deliver(ctx context.Context, phones []string, message string) (*Report, error) {
	report, err := f.primary.Deliver(ctx, phones, message)
	if err == nil || !errors.Is(err, ErrChannelUnavailable) || f.fallback == nil {
		return report, err
	}

	observability.WithContextLogger(f.logger, ctx).Warn("primary delivery unavailable, falling back for whole batch",
		zap.Int("recipients", len(phones)),
		zap.Error(err),
	)
	return f.fallback.Deliver(ctx, phones, message)
}
