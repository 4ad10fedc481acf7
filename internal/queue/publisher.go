package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher delivers moderation events.  Callers treat failures as
// non-fatal: the database change has already been committed.
type Publisher interface {
	Publish(ctx context.Context, ev ModerationEvent) error
}

// NopPublisher drops every event.  It is used when EVENTS_ENABLED=false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ModerationEvent) error { return nil }

// DefaultDialTimeout bounds connecting and handshaking with the broker.
// Publishing runs on the request path, so an unreachable broker must fail
// fast.
const DefaultDialTimeout = 2 * time.Second

// AMQPPublisher publishes to QueueName through RabbitMQ.  A connection is
// opened per publish; moderation events are rare.
type AMQPPublisher struct {
	URL         string
	DialTimeout time.Duration
	Logger      *slog.Logger
}

// NewAMQPPublisher returns a publisher for the broker at url.
func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{URL: url, DialTimeout: DefaultDialTimeout, Logger: logger}
}

// dial connects within DialTimeout, or sooner when ctx expires first.
func (p *AMQPPublisher) dial(ctx context.Context) (*amqp.Connection, error) {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		left := time.Until(dl)
		if left <= 0 {
			return nil, context.DeadlineExceeded
		}
		timeout = min(timeout, left)
	}
	return amqp.DialConfig(p.URL, amqp.Config{
		Locale: "en_US",
		Dial:   amqp.DefaultDial(timeout),
	})
}

// Publish sends ev as a persistent JSON message.  Any error is logged and
// returned so the caller can choose to ignore it.
func (p *AMQPPublisher) Publish(ctx context.Context, ev ModerationEvent) error {
	log := p.Logger.With("kind", ev.Kind)

	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := p.dial(ctx)
	if err != nil {
		log.Warn("rabbitmq: dial failed", "err", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", "err", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if err := declare(ch); err != nil {
		log.Warn("rabbitmq: queue declare failed", "err", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Kind,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		log.Warn("rabbitmq: publish failed", "err", err)
		return err
	}
	return nil
}

func declare(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(
		QueueName, // name
		true,      // durable
		false,     // autoDelete
		false,     // exclusive
		false,     // noWait
		nil,       // args
	)
	return err
}
