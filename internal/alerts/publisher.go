// Package alerts broadcasts stock status transitions over Redis pub/sub so
// dashboards and notifiers learn about low-stock products without polling.
package alerts

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/stockline/stockline/internal/ledger"
)

// Channel is the pub/sub channel stock alerts are published on.
const Channel = "stockline:stock-status"

// Event is the published payload. EventID lets consumers that read the
// channel through more than one subscription deduplicate deliveries.
type Event struct {
	EventID   string    `json:"event_id"`
	ProductID int64     `json:"product_id"`
	Stock     int       `json:"stock"`
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
}

// Publisher implements the ledger status sink on top of Redis.
type Publisher struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher builds Publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, logger: logger, now: time.Now}
}

// StockStatusChanged publishes the transition. Publishing is best effort;
// a Redis outage must never fail the stock adjustment that triggered it.
func (p *Publisher) StockStatusChanged(ctx context.Context, level ledger.Level) {
	event := Event{
		EventID:   uuid.NewString(),
		ProductID: level.ProductID,
		Stock:     level.Stock,
		Status:    string(level.Status),
		At:        p.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal stock alert", slog.Any("error", err))
		return
	}
	if err := p.client.Publish(ctx, Channel, payload).Err(); err != nil {
		p.logger.Error("publish stock alert",
			slog.Int64("product_id", level.ProductID),
			slog.Any("error", err))
	}
}

// Subscribe returns a channel of decoded stock events. The subscription
// runs until ctx is cancelled; malformed payloads are skipped.
func Subscribe(ctx context.Context, client *redis.Client, logger *slog.Logger) (<-chan Event, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sub := client.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warn("skip malformed stock alert", slog.Any("error", err))
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}
