package trigger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/safeher/internal/device"
	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/observability"
	"github.com/kursadbilgin/safeher/internal/signal"
	"go.uber.org/zap"
)

const (
	promptTitle = "Emergency detected"
	promptBody  = "Send an emergency alert to your contacts? It will be sent automatically if you do not answer."

	exhaustedTitle = "Emergency alert not sent"
	exhaustedBody  = "SafeHer could not reach the alert service. Open the app to send the alert manually."
)

// Prompter posts an actionable YES/NO notification.
type Prompter interface {
	Prompt(ctx context.Context, p device.Prompt) (device.PromptAnswer, error)
}

// Notifier posts a passive notification.
type Notifier interface {
	Notify(ctx context.Context, title string, body string) error
}

type CoordinatorConfig struct {
	MaxAttempts   int
	RetryInterval time.Duration
	PromptTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// Coordinator owns the background side of the handshake. It holds at most one
// PendingTrigger, which is mutated only by the episode's retry loop and by
// Acknowledge.
type Coordinator struct {
	bus      signal.Bus
	prompter Prompter
	notifier Notifier

	maxAttempts   int
	retryInterval time.Duration
	promptTimeout time.Duration
	logger        *zap.Logger
	metrics       *observability.Metrics
	newID         func() string
	now           func() time.Time

	root       context.Context
	rootCancel context.CancelFunc

	mu      sync.Mutex
	pending *domain.PendingTrigger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewCoordinator(bus signal.Bus, prompter Prompter, notifier Notifier, cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultTriggerMaxAttempts
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = domain.DefaultTriggerRetryInterval
	}

	root, rootCancel := context.WithCancel(context.Background())
	return &Coordinator{
		bus:           bus,
		prompter:      prompter,
		notifier:      notifier,
		maxAttempts:   maxAttempts,
		retryInterval: retryInterval,
		promptTimeout: cfg.PromptTimeout,
		logger:        logger,
		metrics:       cfg.Metrics,
		newID:         uuid.NewString,
		now:           time.Now,
		root:          root,
		rootCancel:    rootCancel,
	}
}

// Run listens for acknowledgements until ctx ends, then stops any live episode.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Stop()

	return c.bus.Listen(ctx, signal.EventEmergencyAcknowledged, func(_ context.Context, e signal.Event) error {
		c.Acknowledge(e.EpisodeID)
		return nil
	})
}

// Stop cancels the live episode and waits for its loop to exit.
func (c *Coordinator) Stop() {
	c.rootCancel()
	c.wg.Wait()
}

// Fire starts a new episode, replacing any unacknowledged one, and returns its id.
func (c *Coordinator) Fire() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil && !c.pending.State.IsTerminal() {
		c.pending.State = domain.TriggerStateCancelled
		c.cancel()
		c.metrics.IncTriggerEpisode("replaced")
		c.logger.Info("trigger episode replaced", zap.String("episodeId", c.pending.EpisodeID))
	}

	p := domain.NewPendingTrigger(c.newID(), c.maxAttempts, c.retryInterval, c.now().UTC())
	ctx, cancel := context.WithCancel(observability.WithCorrelationID(c.root, p.EpisodeID))
	c.pending = p
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.runEpisode(ctx, p)
	}()

	return p.EpisodeID
}

// Acknowledge stops the retry loop of the matching live episode. An empty id
// matches whichever episode is live.
func (c *Coordinator) Acknowledge(episodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pending
	if p == nil || p.State.IsTerminal() {
		return false
	}
	if episodeID != "" && episodeID != p.EpisodeID {
		return false
	}

	p.Acknowledged = true
	p.State = domain.TriggerStateAcknowledged
	c.cancel()
	c.pending = nil

	c.metrics.IncTriggerEpisode("acknowledged")
	c.logger.Info("trigger acknowledged",
		zap.String("episodeId", p.EpisodeID),
		zap.Int("attemptsMade", p.AttemptsMade),
	)
	return true
}

// Current returns a snapshot of the latest episode. Acknowledged episodes are
// discarded, so it returns nil after an acknowledgement.
func (c *Coordinator) Current() *domain.PendingTrigger {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return nil
	}
	snapshot := *c.pending
	return &snapshot
}

func (c *Coordinator) runEpisode(ctx context.Context, p *domain.PendingTrigger) {
	logger := observability.WithContextLogger(c.logger, ctx)
	logger.Info("trigger fired")

	if !c.confirm(ctx, p, logger) {
		return
	}

	for {
		attempt, ok := c.nextAttempt(p)
		if !ok {
			break
		}

		if err := c.bus.Emit(ctx, signal.EventEmergencyConfirmed, p.EpisodeID); err != nil {
			logger.Warn("failed to emit confirmation signal", zap.Int("attempt", attempt), zap.Error(err))
		}
		c.metrics.IncTriggerSignal()

		c.setState(p, domain.TriggerStateAwaitingAck)

		timer := time.NewTimer(p.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	c.exhaust(ctx, p, logger)
}

// confirm asks the user through the prompt. Only an explicit NO ends the episode.
func (c *Coordinator) confirm(ctx context.Context, p *domain.PendingTrigger, logger *zap.Logger) bool {
	if c.prompter == nil {
		return true
	}

	answer, err := c.prompter.Prompt(ctx, device.Prompt{
		Title:   promptTitle,
		Body:    promptBody,
		Timeout: c.promptTimeout,
	})
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		logger.Warn("confirmation prompt failed, proceeding", zap.Error(err))
		return true
	}
	if answer != device.PromptDeclined {
		logger.Info("confirmation prompt answered", zap.String("answer", string(answer)))
		return true
	}

	c.mu.Lock()
	p.State = domain.TriggerStateCancelled
	c.mu.Unlock()

	c.metrics.IncTriggerEpisode("cancelled")
	logger.Info("trigger cancelled by user")
	return false
}

func (c *Coordinator) nextAttempt(p *domain.PendingTrigger) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !p.CanRetry() {
		return 0, false
	}
	p.AttemptsMade++
	if p.AttemptsMade > 1 {
		p.State = domain.TriggerStateRetrying
	}
	return p.AttemptsMade, true
}

func (c *Coordinator) setState(p *domain.PendingTrigger, state domain.TriggerState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !p.State.IsTerminal() {
		p.State = state
	}
}

func (c *Coordinator) exhaust(ctx context.Context, p *domain.PendingTrigger, logger *zap.Logger) {
	c.mu.Lock()
	if p.Acknowledged || p.State.IsTerminal() {
		c.mu.Unlock()
		return
	}
	p.State = domain.TriggerStateExhausted
	attempts := p.AttemptsMade
	c.mu.Unlock()

	c.metrics.IncTriggerEpisode("exhausted")
	logger.Error("trigger exhausted without acknowledgement, alert not dispatched",
		zap.Int("attemptsMade", attempts),
	)

	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, exhaustedTitle, exhaustedBody); err != nil {
			logger.Warn("failed to post exhaustion notification", zap.Error(err))
		}
	}
}
