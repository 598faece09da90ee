// Package outbox relays committed outbox events to the message broker.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/logger"
	"github.com/example/ec-checkout/internal/metrics"
)

// Publisher delivers one event to the broker.
type Publisher interface {
	Publish(ctx context.Context, event store.Event) error
}

type Relay struct {
	store     store.OutboxStore
	publisher Publisher
	interval  time.Duration
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewRelay(st store.OutboxStore, pub Publisher, interval time.Duration, batchSize int, m *metrics.Metrics, log *slog.Logger) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Relay{
		store:     st,
		publisher: pub,
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger.Component(log, "outbox-relay"),
	}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("relay pass stopped early", slog.Any("error", err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// RelayOnce publishes one batch in commit order and returns how many events were sent.
// It stops at the first failed publish so later events of the same order are not
// delivered ahead of it; the failed event is retried on the next pass.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range events {
		if err := r.publisher.Publish(ctx, e); err != nil {
			r.metrics.RelayFailed()
			r.logger.Error("publish event",
				slog.String("event_id", e.ID),
				slog.String("event_type", e.EventType),
				slog.Any("error", err),
			)
			return sent, err
		}
		// A failed mark re-publishes the event on the next pass; consumers see it twice.
		if err := r.store.MarkSent(ctx, e.ID); err != nil {
			r.metrics.RelayFailed()
			return sent, err
		}
		r.metrics.EventRelayed(e.EventType)
		sent++
	}
	if sent > 0 {
		r.logger.Debug("events relayed", slog.Int("count", sent))
	}
	return sent, nil
}
