package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryProduct struct {
	stock        int
	lowThreshold int
	status       Status
}

type memoryRepo struct {
	mu       sync.Mutex
	products map[int64]*memoryProduct

	// failures injects transient conflicts before succeeding.
	failures int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{products: make(map[int64]*memoryProduct)}
}

func (r *memoryRepo) seed(id int64, stock, lowThreshold int) {
	r.products[id] = &memoryProduct{stock: stock, lowThreshold: lowThreshold, status: StatusFor(stock, lowThreshold)}
}

func (r *memoryRepo) Adjust(ctx context.Context, productID int64, delta int) (Level, Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return Level{}, "", ErrConflict
	}
	p, ok := r.products[productID]
	if !ok {
		return Level{}, "", ErrProductNotFound
	}
	if p.stock+delta < 0 {
		return Level{}, "", &ShortageError{Shortage{ProductID: productID, Requested: -delta, Available: p.stock}}
	}
	prev := p.status
	p.stock += delta
	p.status = StatusFor(p.stock, p.lowThreshold)
	return Level{ProductID: productID, Stock: p.stock, Status: p.status}, prev, nil
}

type recordingSink struct {
	mu     sync.Mutex
	levels []Level
}

func (s *recordingSink) StockStatusChanged(ctx context.Context, level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append(s.levels, level)
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, StatusOutOfStock, StatusFor(0, 5))
	require.Equal(t, StatusLowStock, StatusFor(1, 5))
	require.Equal(t, StatusLowStock, StatusFor(5, 5))
	require.Equal(t, StatusInStock, StatusFor(6, 5))
	require.Equal(t, StatusOutOfStock, StatusFor(0, 0))
}

func TestAdjustUpdatesStockAndStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 5)
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()

	level, err := svc.Adjust(ctx, 1, -5)
	require.NoError(t, err)
	require.Equal(t, 5, level.Stock)
	require.Equal(t, StatusLowStock, level.Status)

	level, err = svc.Adjust(ctx, 1, -5)
	require.NoError(t, err)
	require.Equal(t, 0, level.Stock)
	require.Equal(t, StatusOutOfStock, level.Status)
}

func TestShortageFailsImmediately(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 3, 5)
	svc := NewService(repo, nil, nil, ServiceConfig{})

	_, err := svc.Adjust(context.Background(), 1, -5)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Equal(t, 5, shortage.Requested)
	require.Equal(t, 3, shortage.Available)

	require.Equal(t, 3, repo.products[1].stock, "stock untouched after shortage")
}

func TestUnknownProduct(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, ServiceConfig{})

	_, err := svc.Adjust(context.Background(), 99, 1)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestZeroDeltaRefreshesStatus(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 4, 5)
	// Simulate a threshold edit that left status stale.
	repo.products[1].lowThreshold = 2
	repo.products[1].status = StatusLowStock

	sink := &recordingSink{}
	svc := NewService(repo, sink, nil, ServiceConfig{})

	level, err := svc.Adjust(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Equal(t, 4, level.Stock)
	require.Equal(t, StatusInStock, level.Status)
	require.Len(t, sink.levels, 1, "status transition published")
}

func TestConflictRetried(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 5)
	repo.failures = 2
	svc := NewService(repo, nil, nil, ServiceConfig{MaxRetries: 3, RetryBackoff: time.Millisecond})

	level, err := svc.Adjust(context.Background(), 1, -1)
	require.NoError(t, err)
	require.Equal(t, 9, level.Stock)
}

func TestConflictSurfacedAfterRetriesExhaust(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 5)
	repo.failures = 10
	svc := NewService(repo, nil, nil, ServiceConfig{MaxRetries: 2, RetryBackoff: time.Millisecond})

	_, err := svc.Adjust(context.Background(), 1, -1)
	require.ErrorIs(t, err, ErrConflict)
}

func TestConcurrentDecrementsNeverGoNegative(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 10, 5)
	svc := NewService(repo, nil, nil, ServiceConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Adjust(ctx, 1, -6)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var failed, succeeded int
	for err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientStock)
			failed++
		} else {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded, "exactly one decrement wins")
	require.Equal(t, 1, failed)
	require.Equal(t, 4, repo.products[1].stock)
}

func TestStatusPublishedOnlyOnTransition(t *testing.T) {
	repo := newMemoryRepo()
	repo.seed(1, 20, 5)
	sink := &recordingSink{}
	svc := NewService(repo, sink, nil, ServiceConfig{})
	ctx := context.Background()

	_, err := svc.Adjust(ctx, 1, -5) // 15, still in-stock
	require.NoError(t, err)
	require.Empty(t, sink.levels)

	_, err = svc.Adjust(ctx, 1, -10) // 5, in-stock -> low-stock
	require.NoError(t, err)
	require.Len(t, sink.levels, 1)
	require.Equal(t, StatusLowStock, sink.levels[0].Status)
}
