package alerts

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline/internal/ledger"
)

func TestPublishAndSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := Subscribe(ctx, client, nil)
	require.NoError(t, err)

	publisher := NewPublisher(client, nil)
	publisher.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	publisher.StockStatusChanged(ctx, ledger.Level{
		ProductID: 7,
		Stock:     2,
		Status:    ledger.StatusLowStock,
	})

	select {
	case event := <-events:
		require.Equal(t, int64(7), event.ProductID)
		require.Equal(t, 2, event.Stock)
		require.Equal(t, string(ledger.StatusLowStock), event.Status)
		require.Equal(t, 2026, event.At.Year())
		require.NotEmpty(t, event.EventID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for stock alert")
	}
}

func TestSubscribeSkipsMalformedPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := Subscribe(ctx, client, nil)
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, Channel, "not json").Err())

	publisher := NewPublisher(client, nil)
	publisher.StockStatusChanged(ctx, ledger.Level{ProductID: 1, Stock: 0, Status: ledger.StatusOutOfStock})

	select {
	case event := <-events:
		require.Equal(t, int64(1), event.ProductID, "malformed payload skipped, real one delivered")
	case <-ctx.Done():
		t.Fatal("timed out waiting for stock alert")
	}
}

func TestPublishSurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	publisher := NewPublisher(client, nil)
	// Must not panic or block; errors are logged and swallowed.
	publisher.StockStatusChanged(context.Background(), ledger.Level{ProductID: 1, Stock: 0, Status: ledger.StatusOutOfStock})
}
