package signal

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// signalTTL bounds how long an undelivered signal may sit in a listener queue. The
// emitter re-sends on its own schedule, so stale copies are worthless.
const signalTTL = "5000"

var _ Bus = (*RabbitBus)(nil)

// RabbitBus carries signals between processes. Every Listen call gets its own
// exclusive queue, so each listener sees each signal once and signals emitted while
// no listener is attached are dropped by the broker.
type RabbitBus struct {
	client *RabbitMQ
	logger *zap.Logger
	now    func() time.Time
}

func NewRabbitBus(client *RabbitMQ, logger *zap.Logger) *RabbitBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RabbitBus{client: client, logger: logger, now: time.Now}
}

func (b *RabbitBus) Emit(ctx context.Context, name string, episodeID string) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("signal bus is not initialized")
	}
	if err := validateName(name); err != nil {
		return err
	}

	publishing := amqp.Publishing{
		DeliveryMode: amqp.Transient,
		Timestamp:    b.now().UTC(),
		MessageId:    episodeID,
		Type:         name,
		Expiration:   signalTTL,
	}

	if err := b.client.publish(ctx, name, publishing); err != nil {
		return fmt.Errorf("failed to emit %q: %w", name, err)
	}
	return nil
}

func (b *RabbitBus) Listen(ctx context.Context, name string, handler Handler) error {
	if b == nil || b.client == nil {
		return fmt.Errorf("signal bus is not initialized")
	}
	if err := validateName(name); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("signal handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := b.listenOnce(ctx, name, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		b.logger.Warn("signal listener interrupted, reconnecting",
			zap.String("event", name),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = nextBackoff(backoff)
	}
}

func (b *RabbitBus) listenOnce(ctx context.Context, name string, handler Handler) error {
	ch, err := b.client.listenChannel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare listener queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, name, exchangeName, false, nil); err != nil {
		return fmt.Errorf("failed to bind listener queue for %q: %w", name, err)
	}

	deliveries, err := ch.Consume(queue.Name, "", false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %q: %w", name, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := b.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (b *RabbitBus) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) error {
	event := Event{
		Name:      d.RoutingKey,
		EpisodeID: d.MessageId,
		EmittedAt: d.Timestamp,
	}

	if err := handler(ctx, event); err != nil {
		b.logger.Warn("signal handler failed",
			zap.String("event", event.Name),
			zap.String("episodeId", event.EpisodeID),
			zap.Error(err),
		)
		// The emitter retries; requeueing would only duplicate its work.
		if nackErr := d.Nack(false, false); nackErr != nil {
			return fmt.Errorf("handler failed and nack failed: %w", nackErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack signal: %w", err)
	}
	return nil
}

func (b *RabbitBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}
