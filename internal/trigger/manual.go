package trigger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/safeher/internal/device"
	"github.com/kursadbilgin/safeher/internal/domain"
	"go.uber.org/zap"
)

const (
	manualPromptTitle = "Send emergency alert?"
	manualPromptBody  = "Your emergency contacts will receive your location by SMS."
)

// ManualTrigger is the foreground button path: explicit confirmation, then exactly
// one dispatch.
type ManualTrigger struct {
	dispatcher    Dispatcher
	prompter      Prompter
	promptTimeout time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

func NewManualTrigger(dispatcher Dispatcher, prompter Prompter, promptTimeout time.Duration, logger *zap.Logger) *ManualTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualTrigger{
		dispatcher:    dispatcher,
		prompter:      prompter,
		promptTimeout: promptTimeout,
		logger:        logger,
		now:           time.Now,
	}
}

// Trigger dispatches when the caller already confirmed. Otherwise it asks on the
// phone; anything but YES returns a cancelled attempt before any side effect.
func (m *ManualTrigger) Trigger(ctx context.Context, confirmed bool) (*domain.AlertAttempt, error) {
	if !confirmed {
		ok, err := m.confirm(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			m.logger.Info("manual alert cancelled before dispatch")
			return &domain.AlertAttempt{
				ID:        uuid.NewString(),
				Trigger:   domain.TriggerManual,
				Outcome:   domain.OutcomeCancelled,
				CreatedAt: m.now().UTC(),
			}, nil
		}
	}

	return m.dispatcher.Dispatch(ctx, domain.TriggerManual)
}

func (m *ManualTrigger) confirm(ctx context.Context) (bool, error) {
	if m.prompter == nil {
		return false, nil
	}

	answer, err := m.prompter.Prompt(ctx, device.Prompt{
		Title:   manualPromptTitle,
		Body:    manualPromptBody,
		Timeout: m.promptTimeout,
	})
	if err != nil {
		return false, err
	}
	return answer == device.PromptConfirmed, nil
}
