package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
	"go.uber.org/zap"
)

const (
	defaultWarmInterval = 5 * time.Minute
	defaultWarmTimeout  = 30 * time.Second
)

type PositionRefresher interface {
	Refresh(ctx context.Context, timeout time.Duration) (*domain.Position, error)
}

// LocationWarmer periodically refreshes the last known position so the
// dispatch fallback has a recent fix.
type LocationWarmer struct {
	refresher PositionRefresher
	logger    *zap.Logger
	interval  time.Duration
	timeout   time.Duration
}

func NewLocationWarmer(
	refresher PositionRefresher,
	interval time.Duration,
	timeout time.Duration,
	logger *zap.Logger,
) (*LocationWarmer, error) {
	if refresher == nil {
		return nil, fmt.Errorf("position refresher is required")
	}
	if interval <= 0 {
		interval = defaultWarmInterval
	}
	if timeout <= 0 {
		timeout = defaultWarmTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LocationWarmer{
		refresher: refresher,
		logger:    logger,
		interval:  interval,
		timeout:   timeout,
	}, nil
}

func (w *LocationWarmer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.warm(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.warm(ctx)
		}
	}
}

func (w *LocationWarmer) warm(ctx context.Context) {
	position, err := w.refresher.Refresh(ctx, w.timeout)
	switch {
	case ctx.Err() != nil:
	case err == nil:
		w.logger.Debug("last known position refreshed",
			zap.Float64("latitude", position.Latitude),
			zap.Float64("longitude", position.Longitude),
		)
	case errors.Is(err, domain.ErrLocationUnavailable):
		w.logger.Debug("no fix for position refresh")
	default:
		if _, denied := domain.IsPermissionDenied(err); denied {
			w.logger.Debug("location permission not granted, skipping refresh")
			return
		}
		w.logger.Warn("position refresh failed", zap.Error(err))
	}
}
