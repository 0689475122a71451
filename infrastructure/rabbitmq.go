package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"recruit-pipeline/domain"
)

const publishTimeout = 5 * time.Second

// RabbitMQ carries pipeline events from the outbox relay to their subscribers.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *zap.Logger
}

func NewRabbitMQ(cfg RabbitMQConfig, logger *zap.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("declaring queue %s: %w", cfg.Queue, err)
	}

	logger.Info("connected to RabbitMQ", zap.String("queue", q.Name))
	return &RabbitMQ{conn: conn, channel: ch, queue: q, logger: logger}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, event domain.OutboxEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,
		false,
		msg,
	)
}

// newPublishing wraps event as a persistent JSON message identified by its event id.
func newPublishing(event domain.OutboxEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encoding event %s: %w", event.EventID, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Type:         string(event.Type),
		Timestamp:    event.CreatedAt,
		Body:         body,
	}, nil
}

// Consume hands every event on the queue to handler until ctx is done.
func (r *RabbitMQ) Consume(ctx context.Context, handler func(context.Context, domain.OutboxEvent) error) error {
	msgs, err := r.channel.ConsumeWithContext(
		ctx,
		r.queue.Name,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("registering consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			r.deliver(ctx, d, handler)
		}
	}()
	return nil
}

// deliver acknowledges d once handler accepts it. Malformed messages are dropped and a
// failed one is requeued once.
func (r *RabbitMQ) deliver(ctx context.Context, d amqp.Delivery, handler func(context.Context, domain.OutboxEvent) error) {
	var event domain.OutboxEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		r.logger.Warn("dropping malformed event", zap.String("message_id", d.MessageId), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, event); err != nil {
		r.logger.Warn("event handler failed", zap.String("event_id", event.EventID), zap.Error(err))
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		r.conn.Close()
		return err
	}
	return r.conn.Close()
}
