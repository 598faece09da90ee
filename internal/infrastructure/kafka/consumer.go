package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logger"
)

// EventHandler handles one decoded outbox event.
type EventHandler func(ctx context.Context, event store.Event) error

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, log *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	if log == nil {
		log = logger.Discard()
	}
	return &Consumer{reader: reader, logger: logger.Component(log, "kafka-consumer")}
}

// Consume fetches messages until ctx is done. Offsets are committed after the handler
// returns, so a crash mid-handling redelivers the message. Handler errors are logged and
// the message is skipped.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("read message", slog.Any("error", err))
			continue
		}

		event, err := Decode(msg.Value)
		if err != nil {
			c.logger.Error("decode message",
				slog.Int64("offset", msg.Offset),
				slog.Any("error", err),
			)
		} else if err := handler(ctx, event); err != nil {
			c.logger.Error("handle event",
				slog.String("event_id", event.ID),
				slog.String("event_type", event.EventType),
				slog.Any("error", err),
			)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("commit offset", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// Decode parses a message value written by Producer.
func Decode(value []byte) (store.Event, error) {
	var e store.Event
	if err := json.Unmarshal(value, &e); err != nil {
		return store.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.EventType == "" {
		return store.Event{}, fmt.Errorf("decode event: missing event_type")
	}
	return e, nil
}
