package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer listens on QueueName and appends each event as one line to
// <Dir>/moderation.log.
type Consumer struct {
	URL    string
	Dir    string
	Logger *slog.Logger
}

// NewConsumer returns a consumer writing under dir (default "logs").
func NewConsumer(url, dir string, logger *slog.Logger) *Consumer {
	if dir == "" {
		dir = "logs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{URL: url, Dir: dir, Logger: logger.With("component", "moderation-consumer")}
}

// Run connects, consumes and reconnects with exponential backoff until
// ctx is cancelled.  Malformed messages are rejected without requeue so
// the loop never spins on them.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("failed to dial broker", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("set QoS failed", "err", err)
	}
	if err := declare(ch); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.Logger.Error("handle message failed", "err", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and appends it to the moderation log.
func (c *Consumer) Handle(body []byte) error {
	var ev ModerationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Kind == "" {
		return errors.New("event without kind")
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, "moderation.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single human-friendly log line.
func FormatLine(ev ModerationEvent) string {
	at := ev.OccurredAt.UTC().Format(time.RFC3339)
	switch ev.Kind {
	case KindBanCreated:
		return fmt.Sprintf("[%s] Ban created | ban_id=%d | user_id=%d | until=%s | reason=%q | source=%s\n",
			at, ev.BanID, ev.UserID, ev.BanEndDate, ev.Reason, ev.Source)
	case KindBanLifted:
		return fmt.Sprintf("[%s] Ban lifted | ban_id=%d | user_id=%d | source=%s\n",
			at, ev.BanID, ev.UserID, ev.Source)
	case KindTopicArchived:
		return fmt.Sprintf("[%s] Topic archived | topic_id=%d | source=%s\n", at, ev.TopicID, ev.Source)
	default:
		return fmt.Sprintf("[%s] %s | user_id=%d | ban_id=%d | topic_id=%d | source=%s\n",
			at, ev.Kind, ev.UserID, ev.BanID, ev.TopicID, ev.Source)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
