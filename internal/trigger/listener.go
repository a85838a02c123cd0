package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/observability"
	"github.com/kursadbilgin/safeher/internal/signal"
	"go.uber.org/zap"
)

const defaultDedupeWindow = time.Minute

// Dispatcher runs the alert pipeline once.
type Dispatcher interface {
	Dispatch(ctx context.Context, trigger domain.TriggerKind) (*domain.AlertAttempt, error)
}

// Listener is the foreground side of the handshake: it acknowledges every
// confirmation signal and dispatches once per episode.
type Listener struct {
	bus        signal.Bus
	dispatcher Dispatcher
	logger     *zap.Logger
	window     time.Duration
	now        func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewListener(bus signal.Bus, dispatcher Dispatcher, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		bus:        bus,
		dispatcher: dispatcher,
		logger:     logger,
		window:     defaultDedupeWindow,
		now:        time.Now,
		seen:       make(map[string]time.Time),
	}
}

func (l *Listener) Run(ctx context.Context) error {
	return l.bus.Listen(ctx, signal.EventEmergencyConfirmed, l.handle)
}

func (l *Listener) handle(ctx context.Context, e signal.Event) error {
	ctx = observability.WithCorrelationID(ctx, e.EpisodeID)
	logger := observability.WithContextLogger(l.logger, ctx)

	// Retries of an episode already being handled still need an acknowledgement.
	// A failed ack is returned after dispatching so the signal is nacked, but the
	// alert itself never waits on it.
	ackErr := l.bus.Emit(ctx, signal.EventEmergencyAcknowledged, e.EpisodeID)
	if ackErr != nil {
		ackErr = fmt.Errorf("failed to acknowledge %s: %w", e.EpisodeID, ackErr)
		logger.Warn("acknowledgement emit failed", zap.Error(ackErr))
	}

	if !l.markSeen(e.EpisodeID) {
		logger.Debug("duplicate confirmation signal ignored")
		return ackErr
	}

	logger.Info("confirmation signal received, dispatching")
	attempt, err := l.dispatcher.Dispatch(ctx, domain.TriggerShake)
	switch {
	case errors.Is(err, domain.ErrDispatchInProgress):
		logger.Info("dispatch already running, signal folded into it")
	case err != nil:
		logger.Warn("background dispatch failed", zap.Error(err))
	case attempt != nil:
		logger.Info("background dispatch finished",
			zap.String("outcome", attempt.Outcome.String()),
			zap.Int("sentCount", attempt.SentCount),
		)
	}
	return ackErr
}

// markSeen returns false when episodeID was already handled within the window.
func (l *Listener) markSeen(episodeID string) bool {
	if episodeID == "" {
		return true
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, at := range l.seen {
		if now.Sub(at) > l.window {
			delete(l.seen, id)
		}
	}
	if _, ok := l.seen[episodeID]; ok {
		return false
	}
	l.seen[episodeID] = now
	return true
}
