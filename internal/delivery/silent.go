package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/observability"
	"github.com/kursadbilgin/safeher/internal/provider"
	"github.com/kursadbilgin/safeher/internal/ratelimit"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 4
	rateLimitScope     = "sms"
)

type SilentOptions struct {
	Concurrency int
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// SilentStrategy sends SMS through the gateway without user interaction. Each
// recipient is attempted once; failures are collected, never propagated.
type SilentStrategy struct {
	sender      provider.SMSSender
	limiter     ratelimit.RateLimiter
	concurrency int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

func NewSilentStrategy(sender provider.SMSSender, limiter ratelimit.RateLimiter, opts SilentOptions) *SilentStrategy {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &SilentStrategy{
		sender:      sender,
		limiter:     limiter,
		concurrency: concurrency,
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Send delivers message to one phone.
func (s *SilentStrategy) Send(ctx context.Context, phone string, message string) error {
	if s.sender == nil {
		return ErrChannelUnavailable
	}
	logger := observability.WithContextLogger(s.logger, ctx)

	if s.limiter != nil {
		// An unreachable limiter must not hold back an emergency message.
		if err := s.limiter.Wait(ctx, rateLimitScope); err != nil {
			logger.Warn("sms rate limiter unavailable, sending anyway", zap.Error(err))
		}
	}

	start := time.Now()
	result, err := s.sender.SendSMS(ctx, phone, message)
	s.metrics.ObserveSMSSendDuration(time.Since(start))
	if err != nil {
		s.metrics.IncSMSFailed(provider.FailureReason(err))
		logger.Warn("sms delivery failed",
			zap.String("phone", phone),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		return err
	}

	s.metrics.IncSMSSent()
	fields := []zap.Field{zap.String("phone", phone)}
	if result != nil {
		fields = append(fields, zap.String("messageId", result.MessageID), zap.Int("parts", result.Parts))
	}
	logger.Info("sms delivered", fields...)
	return nil
}

// Deliver fans out to every phone and joins before classifying. It returns
// ErrChannelUnavailable only when nothing was sent and every failure was structural.
func (s *SilentStrategy) Deliver(ctx context.Context, phones []string, message string) (*Report, error) {
	if s.sender == nil {
		return nil, ErrChannelUnavailable
	}

	errs := make([]error, len(phones))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, phone := range phones {
		g.Go(func() error {
			errs[i] = s.Send(gctx, phone, message)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Strategy: StrategySilent}
	structural := 0
	for i, phone := range phones {
		if errs[i] == nil {
			report.Sent = append(report.Sent, phone)
			continue
		}
		if provider.IsStructural(errs[i]) {
			structural++
		}
		report.Failed = append(report.Failed, domain.RecipientError{Phone: phone, Err: errs[i]})
	}

	if len(phones) > 0 && structural == len(phones) {
		return report, fmt.Errorf("%w: %v", ErrChannelUnavailable, errs[0])
	}
	return report, nil
}
