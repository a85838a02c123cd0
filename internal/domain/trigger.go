package domain

import "time"

const (
	DefaultTriggerMaxAttempts   = 5
	DefaultTriggerRetryInterval = time.Second
)

// TriggerState is the lifecycle state of a background trigger episode.
type TriggerState string

const (
	TriggerStateIdle         TriggerState = "IDLE"
	TriggerStateFired        TriggerState = "FIRED"
	TriggerStateAwaitingAck  TriggerState = "AWAITING_ACK"
	TriggerStateRetrying     TriggerState = "RETRYING"
	TriggerStateAcknowledged TriggerState = "ACKNOWLEDGED"
	TriggerStateExhausted    TriggerState = "EXHAUSTED"
	TriggerStateCancelled    TriggerState = "CANCELLED"
)

func (s TriggerState) String() string { return string(s) }

// IsTerminal reports whether no further transitions can happen.
func (s TriggerState) IsTerminal() bool {
	switch s {
	case TriggerStateAcknowledged, TriggerStateExhausted, TriggerStateCancelled:
		return true
	}
	return false
}

// PendingTrigger is the background episode awaiting acknowledgement from the dispatch layer.
type PendingTrigger struct {
	EpisodeID     string
	State         TriggerState
	Acknowledged  bool
	AttemptsMade  int
	MaxAttempts   int
	RetryInterval time.Duration
	FiredAt       time.Time
}

func NewPendingTrigger(episodeID string, maxAttempts int, retryInterval time.Duration, firedAt time.Time) *PendingTrigger {
	if maxAttempts <= 0 {
		maxAttempts = DefaultTriggerMaxAttempts
	}
	if retryInterval <= 0 {
		retryInterval = DefaultTriggerRetryInterval
	}

	return &PendingTrigger{
		EpisodeID:     episodeID,
		State:         TriggerStateFired,
		MaxAttempts:   maxAttempts,
		RetryInterval: retryInterval,
		FiredAt:       firedAt,
	}
}

// CanRetry reports whether another signal may be emitted.
func (p *PendingTrigger) CanRetry() bool {
	return p != nil && !p.Acknowledged && !p.State.IsTerminal() && p.AttemptsMade < p.MaxAttempts
}

// MotionSample is one accelerometer reading in m/s^2.
type MotionSample struct {
	X  float64
	Y  float64
	Z  float64
	At time.Time
}
