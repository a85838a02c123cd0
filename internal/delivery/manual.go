package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/safeher/internal/device"
	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/observability"
	"go.uber.org/zap"
)

// ComposerSurface opens a pre-filled SMS composer that the user must confirm.
type ComposerSurface interface {
	OpenComposer(ctx context.Context, recipients []string, body string) (device.ComposerResult, error)
}

const defaultComposerTimeout = 2 * time.Minute

// ErrComposerTimeout marks a composer the user neither sent nor dismissed in time.
var ErrComposerTimeout = errors.New("composer was not completed in time")

type ManualOptions struct {
	ComposerTimeout time.Duration
	Logger          *zap.Logger
}

// ManualStrategy hands the whole batch to the phone's SMS composer.
type ManualStrategy struct {
	surface ComposerSurface
	timeout time.Duration
	logger  *zap.Logger
}

func NewManualStrategy(surface ComposerSurface, opts ManualOptions) *ManualStrategy {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.ComposerTimeout
	if timeout <= 0 {
		timeout = defaultComposerTimeout
	}
	return &ManualStrategy{surface: surface, timeout: timeout, logger: logger}
}

// Send opens a composer for a single recipient. A cancelled composer yields domain.ErrCancelled.
func (m *ManualStrategy) Send(ctx context.Context, phone string, message string) error {
	report, err := m.Deliver(ctx, []string{phone}, message)
	if err != nil {
		return err
	}
	if report.Cancelled {
		return domain.ErrCancelled
	}
	if len(report.Failed) > 0 {
		return report.Failed[0].Err
	}
	return nil
}

func (m *ManualStrategy) Deliver(ctx context.Context, phones []string, message string) (*Report, error) {
	if m.surface == nil {
		return nil, fmt.Errorf("%w: no composer surface", ErrChannelUnavailable)
	}
	logger := observability.WithContextLogger(m.logger, ctx)

	composeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.surface.OpenComposer(composeCtx, phones, message)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrComposerTimeout, m.timeout)
		}
		logger.Warn("composer session failed", zap.Int("recipients", len(phones)), zap.Error(err))
		report := &Report{Strategy: StrategyManual}
		for _, phone := range phones {
			report.Failed = append(report.Failed, domain.RecipientError{Phone: phone, Err: err})
		}
		return report, nil
	}

	switch result {
	case device.ComposerSent:
		logger.Info("composer send confirmed", zap.Int("recipients", len(phones)))
		return &Report{Strategy: StrategyManual, Sent: append([]string(nil), phones...)}, nil
	default:
		logger.Info("composer send cancelled by user")
		return &Report{Strategy: StrategyManual, Cancelled: true}, nil
	}
}
