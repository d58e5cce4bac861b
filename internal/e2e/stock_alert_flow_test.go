package e2e

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline/internal/alerts"
	"github.com/stockline/stockline/internal/ledger"
	_ "github.com/stockline/stockline/testing"
)

// memoryLedgerRepo mimics the conditional stock update against an in-memory
// level table, including the status-transition reporting of the SQL version.
type memoryLedgerRepo struct {
	mu        sync.Mutex
	stock     map[int64]int
	threshold map[int64]int
}

func (r *memoryLedgerRepo) Adjust(_ context.Context, productID int64, delta int) (ledger.Level, ledger.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.stock[productID]
	if !ok {
		return ledger.Level{}, "", ledger.ErrProductNotFound
	}
	prev := ledger.StatusFor(current, r.threshold[productID])
	next := current + delta
	if next < 0 {
		return ledger.Level{}, "", &ledger.ShortageError{Shortage: ledger.Shortage{
			ProductID: productID,
			Requested: -delta,
			Available: current,
		}}
	}
	r.stock[productID] = next
	level := ledger.Level{ProductID: productID, Stock: next, Status: ledger.StatusFor(next, r.threshold[productID])}
	return level, prev, nil
}

// Exercises the full alert pipeline: a stock decrement crossing the low-stock
// threshold publishes over Redis pub/sub and a subscriber observes it.
func TestStockDecrementDeliversLowStockAlert(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := alerts.Subscribe(ctx, client, nil)
	require.NoError(t, err)

	repo := &memoryLedgerRepo{
		stock:     map[int64]int{42: 6},
		threshold: map[int64]int{42: 5},
	}
	service := ledger.NewService(repo, alerts.NewPublisher(client, nil), nil, ledger.ServiceConfig{})

	// 6 -> 4 crosses the threshold of 5.
	level, err := service.Adjust(ctx, 42, -2)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusLowStock, level.Status)

	select {
	case event := <-events:
		require.Equal(t, int64(42), event.ProductID)
		require.Equal(t, 4, event.Stock)
		require.Equal(t, string(ledger.StatusLowStock), event.Status)
		require.NotEmpty(t, event.EventID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for low-stock alert")
	}
}

// A decrement that stays inside the same status band must not publish.
func TestAdjustWithoutTransitionStaysSilent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	events, err := alerts.Subscribe(ctx, client, nil)
	require.NoError(t, err)

	repo := &memoryLedgerRepo{
		stock:     map[int64]int{42: 100},
		threshold: map[int64]int{42: 5},
	}
	service := ledger.NewService(repo, alerts.NewPublisher(client, nil), nil, ledger.ServiceConfig{})

	_, err = service.Adjust(ctx, 42, -10)
	require.NoError(t, err)

	select {
	case event := <-events:
		t.Fatalf("unexpected alert for in-band adjustment: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}
