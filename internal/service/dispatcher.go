package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/safeher/internal/delivery"
	"github.com/kursadbilgin/safeher/internal/domain"
	"github.com/kursadbilgin/safeher/internal/observability"
	"go.uber.org/zap"
)

const sentNotificationTitle = "Emergency alert sent"

type PermissionChecker interface {
	IsGranted(ctx context.Context, capability domain.Capability) (bool, error)
}

type ContactLister interface {
	List(ctx context.Context) ([]domain.Contact, error)
}

type LocationResolver interface {
	Resolve(ctx context.Context, timeout time.Duration) (*domain.Position, error)
	Describe(ctx context.Context, p domain.Position) string
}

type MessageComposer interface {
	Compose(p domain.Position, address string, at time.Time) string
}

type AlertRecorder interface {
	Create(ctx context.Context, a *domain.AlertAttempt) error
}

// Feedback is the passive device surface touched after a dispatch.
type Feedback interface {
	Pulse(ctx context.Context) error
	Notify(ctx context.Context, title string, body string) error
}

type DispatcherOptions struct {
	LocationTimeout time.Duration
	Logger          *zap.Logger
	Metrics         *observability.Metrics
}

// AlertDispatcher runs the alert pipeline: permission, contacts, location,
// message, delivery, aggregation. Only one dispatch runs at a time.
type AlertDispatcher struct {
	permissions PermissionChecker
	contacts    ContactLister
	locations   LocationResolver
	composer    MessageComposer
	channel     delivery.Channel
	alerts      AlertRecorder
	feedback    Feedback

	locationTimeout time.Duration
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
	running         atomic.Bool
}

func NewAlertDispatcher(
	permissions PermissionChecker,
	contacts ContactLister,
	locations LocationResolver,
	composer MessageComposer,
	channel delivery.Channel,
	alerts AlertRecorder,
	feedback Feedback,
	opts DispatcherOptions,
) (*AlertDispatcher, error) {
	if contacts == nil {
		return nil, fmt.Errorf("contact store is required")
	}
	if locations == nil {
		return nil, fmt.Errorf("location resolver is required")
	}
	if composer == nil {
		return nil, fmt.Errorf("message composer is required")
	}
	if channel == nil {
		return nil, fmt.Errorf("delivery channel is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AlertDispatcher{
		permissions:     permissions,
		contacts:        contacts,
		locations:       locations,
		composer:        composer,
		channel:         channel,
		alerts:          alerts,
		feedback:        feedback,
		locationTimeout: opts.LocationTimeout,
		logger:          logger,
		metrics:         opts.Metrics,
		now:             time.Now,
	}, nil
}

// Dispatch runs one alert. It ignores cancellation of ctx once started. A
// delivery where every recipient failed returns the failed attempt together
// with a *domain.DeliveryFailedError.
func (d *AlertDispatcher) Dispatch(ctx context.Context, trigger domain.TriggerKind) (*domain.AlertAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !trigger.IsValid() {
		return nil, fmt.Errorf("%w: invalid trigger %q", domain.ErrValidation, trigger)
	}
	if !d.running.CompareAndSwap(false, true) {
		return nil, domain.ErrDispatchInProgress
	}
	defer d.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	attemptID := uuid.NewString()
	if _, ok := observability.CorrelationIDFromContext(ctx); !ok {
		ctx = observability.WithCorrelationID(ctx, attemptID)
	}
	logger := observability.WithContextLogger(d.logger, ctx).With(
		zap.String("attemptId", attemptID),
		zap.String("trigger", trigger.String()),
	)

	d.metrics.IncDispatchInFlight()
	defer d.metrics.DecDispatchInFlight()

	attempt, err := d.run(ctx, attemptID, trigger, logger)
	if err != nil && attempt == nil {
		d.metrics.IncAlertDispatched(trigger.String(), dispatchErrorLabel(err))
		logger.Warn("alert dispatch aborted", zap.Error(err))
		return nil, err
	}

	d.metrics.IncAlertDispatched(trigger.String(), attempt.Outcome.String())
	if d.alerts != nil {
		if recordErr := d.alerts.Create(ctx, attempt); recordErr != nil {
			logger.Error("failed to record alert attempt", zap.Error(recordErr))
		}
	}
	d.afterDispatch(ctx, attempt, logger)

	logger.Info("alert dispatch finished",
		zap.String("outcome", attempt.Outcome.String()),
		zap.Int("sentCount", attempt.SentCount),
		zap.Strings("failedRecipients", attempt.FailedRecipients),
	)
	return attempt, err
}

func (d *AlertDispatcher) run(
	ctx context.Context,
	attemptID string,
	trigger domain.TriggerKind,
	logger *zap.Logger,
) (*domain.AlertAttempt, error) {
	if d.permissions != nil {
		granted, err := d.permissions.IsGranted(ctx, domain.CapabilitySMS)
		if err != nil {
			return nil, fmt.Errorf("failed to check sms permission: %w", err)
		}
		if !granted {
			return nil, domain.NewPermissionDenied(domain.CapabilitySMS)
		}
	}

	contacts, err := d.contacts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	phones := domain.Phones(contacts)
	if len(phones) == 0 {
		return nil, domain.ErrNoContacts
	}

	position, err := d.locations.Resolve(ctx, d.locationTimeout)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, domain.ErrLocationUnavailable
	}

	now := d.now().UTC()
	address := d.locations.Describe(ctx, *position)
	message := d.composer.Compose(*position, address, now)

	attempt := &domain.AlertAttempt{
		ID:               attemptID,
		Trigger:          trigger,
		ContactsTargeted: phones,
		Message:          message,
		Latitude:         &position.Latitude,
		Longitude:        &position.Longitude,
		CreatedAt:        now,
	}

	logger.Info("delivering alert", zap.Int("recipients", len(phones)))
	report, err := d.channel.Deliver(ctx, phones, message)
	if err != nil {
		report = failAll(report, phones, err)
	}

	return aggregate(attempt, report)
}

// aggregate fills the outcome fields of attempt from report.
func aggregate(attempt *domain.AlertAttempt, report *delivery.Report) (*domain.AlertAttempt, error) {
	attempt.SentCount = report.SentCount()
	attempt.FailedRecipients = report.FailedPhones()

	switch {
	case report.Cancelled && attempt.SentCount == 0:
		attempt.Outcome = domain.OutcomeCancelled
		msg := domain.ErrCancelled.Error()
		attempt.Error = &msg
		return attempt, nil
	case attempt.SentCount == 0:
		attempt.Outcome = domain.OutcomeFailed
		failure := &domain.DeliveryFailedError{Recipients: report.Failed}
		msg := failure.Error()
		attempt.Error = &msg
		return attempt, failure
	default:
		attempt.Outcome = domain.OutcomeSucceeded
		return attempt, nil
	}
}

// failAll records err for every recipient the report does not already account for.
func failAll(report *delivery.Report, phones []string, err error) *delivery.Report {
	if report == nil {
		report = &delivery.Report{}
	}
	seen := make(map[string]struct{}, len(report.Sent)+len(report.Failed))
	for _, p := range report.Sent {
		seen[p] = struct{}{}
	}
	for _, f := range report.Failed {
		seen[f.Phone] = struct{}{}
	}
	for _, p := range phones {
		if _, ok := seen[p]; ok {
			continue
		}
		report.Failed = append(report.Failed, domain.RecipientError{Phone: p, Err: err})
	}
	return report
}

func (d *AlertDispatcher) afterDispatch(ctx context.Context, attempt *domain.AlertAttempt, logger *zap.Logger) {
	if d.feedback == nil || attempt.Outcome == domain.OutcomeCancelled {
		return
	}

	if err := d.feedback.Pulse(ctx); err != nil {
		logger.Debug("haptic pulse failed", zap.Error(err))
	}
	if attempt.Outcome != domain.OutcomeSucceeded {
		return
	}
	body := fmt.Sprintf("Emergency alert sent to %d contacts", attempt.SentCount)
	if attempt.SentCount == 1 {
		body = "Emergency alert sent to 1 contact"
	}
	if err := d.feedback.Notify(ctx, sentNotificationTitle, body); err != nil {
		logger.Debug("sent notification failed", zap.Error(err))
	}
}

// IsRunning reports whether a dispatch is in progress.
func (d *AlertDispatcher) IsRunning() bool {
	return d.running.Load()
}

func dispatchErrorLabel(err error) string {
	if _, ok := domain.IsPermissionDenied(err); ok {
		return "permission_denied"
	}
	switch {
	case errors.Is(err, domain.ErrNoContacts):
		return "no_contacts"
	case errors.Is(err, domain.ErrLocationUnavailable):
		return "location_unavailable"
	default:
		return "error"
	}
}
