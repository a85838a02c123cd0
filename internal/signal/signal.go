package signal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Event names exchanged between the sentinel and the api process. They are part of
// the wire contract and must not change.
const (
	EventEmergencyConfirmed    = "emergency.confirmed"
	EventEmergencyAcknowledged = "emergency.acknowledged"
)

// Event is a received signal. Signals carry no payload; EpisodeID travels as
// message metadata so duplicate emissions of one episode can be recognised.
type Event struct {
	Name      string
	EpisodeID string
	EmittedAt time.Time
}

// Handler handles one received event.
type Handler func(ctx context.Context, event Event) error

// Emitter sends a named signal to every current listener. Signals emitted while
// nobody listens are lost.
type Emitter interface {
	Emit(ctx context.Context, name string, episodeID string) error
}

// Listener blocks delivering events named name to handler until ctx ends.
type Listener interface {
	Listen(ctx context.Context, name string, handler Handler) error
}

type Bus interface {
	Emitter
	Listener
	Close() error
}

func validateName(name string) error {
	switch strings.TrimSpace(name) {
	case EventEmergencyConfirmed, EventEmergencyAcknowledged:
		return nil
	case "":
		return fmt.Errorf("event name is required")
	default:
		return fmt.Errorf("unknown event %q", name)
	}
}
