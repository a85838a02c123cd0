package signal

import (
	"context"
	"sync"
	"time"
)

const localBuffer = 16

var _ Bus = (*LocalBus)(nil)

// LocalBus is an in-process Bus for single-binary deployments and tests.
type LocalBus struct {
	mu        sync.RWMutex
	listeners map[string]map[chan Event]struct{}
	now       func() time.Time
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		listeners: make(map[string]map[chan Event]struct{}),
		now:       time.Now,
	}
}

func (b *LocalBus) Emit(_ context.Context, name string, episodeID string) error {
	if err := validateName(name); err != nil {
		return err
	}

	event := Event{Name: name, EpisodeID: episodeID, EmittedAt: b.now().UTC()}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners[name] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Listen(ctx context.Context, name string, handler Handler) error {
	if err := validateName(name); err != nil {
		return err
	}

	ch := make(chan Event, localBuffer)
	b.mu.Lock()
	if b.listeners[name] == nil {
		b.listeners[name] = make(map[chan Event]struct{})
	}
	b.listeners[name][ch] = struct{}{}
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.listeners[name], ch)
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-ch:
			_ = handler(ctx, event)
		}
	}
}

// Listening reports how many listeners are attached for name.
func (b *LocalBus) Listening(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[name])
}

func (b *LocalBus) Close() error { return nil }
