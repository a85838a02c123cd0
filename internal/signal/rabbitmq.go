package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	exchangeName     = "safeher.signals"
	heartbeat        = 10 * time.Second
	connectTimeout   = 15 * time.Second
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
)

var errClosed = errors.New("rabbitmq client is closed")

// RabbitMQ owns one broker connection per process. Emits share a single publish
// channel; every listener opens its own channel. A dropped connection is redialed
// on the next use.
type RabbitMQ struct {
	url  string
	name string

	mu     sync.Mutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	closed bool
}

// NewRabbitMQ dials url. name shows up in the broker's connection list, e.g.
// "safeher-api" or "safeher-sentinel".
func NewRabbitMQ(url string, name string) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}

	r := &RabbitMQ{url: url, name: name}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	r.mu.Lock()
	_, err := r.connectLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.pubCh = nil
	conn := r.conn
	r.conn = nil
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

func (r *RabbitMQ) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn != nil && !r.conn.IsClosed()
}

// publish sends msg on the shared channel, reopening it once if the broker closed it.
func (r *RabbitMQ) publish(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		ch, err := r.publishChannelLocked(ctx)
		if err != nil {
			return err
		}
		err = ch.PublishWithContext(ctx, exchangeName, routingKey, false, false, msg)
		if err == nil {
			return nil
		}
		r.pubCh = nil
		if !errors.Is(err, amqp.ErrClosed) || attempt == 1 {
			return err
		}
	}
	return nil
}

// listenChannel opens a fresh channel with the exchange declared. The caller closes it.
func (r *RabbitMQ) listenChannel(ctx context.Context) (*amqp.Channel, error) {
	r.mu.Lock()
	conn, err := r.connectLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return openDeclared(conn)
}

func (r *RabbitMQ) publishChannelLocked(ctx context.Context) (*amqp.Channel, error) {
	if r.pubCh != nil && !r.pubCh.IsClosed() {
		return r.pubCh, nil
	}
	conn, err := r.connectLocked(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := openDeclared(conn)
	if err != nil {
		return nil, err
	}
	r.pubCh = ch
	return ch, nil
}

// connectLocked returns the live connection, redialing with backoff until ctx ends.
func (r *RabbitMQ) connectLocked(ctx context.Context) (*amqp.Connection, error) {
	if r.closed {
		return nil, errClosed
	}
	if r.conn != nil && !r.conn.IsClosed() {
		return r.conn, nil
	}

	cfg := amqp.Config{
		Heartbeat:  heartbeat,
		Properties: amqp.NewConnectionProperties(),
	}
	if r.name != "" {
		cfg.Properties.SetClientConnectionName(r.name)
	}

	wait := reconnectBackoff
	for {
		conn, err := amqp.DialConfig(r.url, cfg)
		if err == nil {
			r.conn = conn
			r.pubCh = nil
			return conn, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rabbitmq connect canceled after %v: %w", err, ctx.Err())
		case <-time.After(wait):
		}
		wait = nextBackoff(wait)
	}
}

func openDeclared(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	// Signals are transient, so the exchange need not survive a broker restart.
	if err := ch.ExchangeDeclare(exchangeName, amqp.ExchangeDirect, false, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare signal exchange: %w", err)
	}
	return ch, nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
