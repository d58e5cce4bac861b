package purchases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/shared"
)

type fakeStore struct {
	mu        sync.Mutex
	stock     map[int64]int
	orders    map[int64]*PurchaseOrder
	nextOrder int64
	keys      map[string]bool

	adjustErr map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stock:     make(map[int64]int),
		orders:    make(map[int64]*PurchaseOrder),
		keys:      make(map[string]bool),
		adjustErr: make(map[int64]error),
	}
}

// LedgerPort.
func (f *fakeStore) Adjust(ctx context.Context, productID int64, delta int) (ledger.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.adjustErr[productID]; ok && delta > 0 {
		return ledger.Level{}, err
	}
	current, ok := f.stock[productID]
	if !ok {
		return ledger.Level{}, ledger.ErrProductNotFound
	}
	if current+delta < 0 {
		return ledger.Level{}, &ledger.ShortageError{Shortage: ledger.Shortage{
			ProductID: productID, Requested: -delta, Available: current,
		}}
	}
	f.stock[productID] = current + delta
	return ledger.Level{ProductID: productID, Stock: current + delta}, nil
}

// IdempotencyPort.
func (f *fakeStore) CheckAndInsert(ctx context.Context, key, module string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	f.keys[key] = true
	return nil
}

func (f *fakeStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	return nil
}

// RepositoryPort.
func (f *fakeStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, f)
}

func (f *fakeStore) InsertOrder(ctx context.Context, order PurchaseOrder) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextOrder++
	stored := order
	stored.ID = f.nextOrder
	stored.CreatedAt = time.Now()
	f.orders[stored.ID] = &stored
	return stored.ID, nil
}

func (f *fakeStore) InsertItems(ctx context.Context, orderID int64, items []PurchaseItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[orderID]; ok {
		order.Items = items
	}
	return nil
}

func (f *fakeStore) GetOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrOrderNotFound
	}
	return *order, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []PurchaseOrder
	for _, order := range f.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		out = append(out, *order)
	}
	return out, len(out), nil
}

func (f *fakeStore) MarkReceived(ctx context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != StatusPending {
		return false, nil
	}
	order.Status = StatusReceived
	order.ReceivedAt = &at
	return true, nil
}

func (f *fakeStore) MarkCancelled(ctx context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.Status != StatusPending {
		return false, nil
	}
	order.Status = StatusCancelled
	return true, nil
}

func newService(store *fakeStore) *Service {
	return NewService(store, store, store, nil, nil, nil)
}

func item(productID int64, qty int, cost int64) ItemInput {
	return ItemInput{ProductID: productID, Quantity: qty, UnitCost: decimal.NewFromInt(cost)}
}

func createOrder(t *testing.T, svc *Service, items ...ItemInput) PurchaseOrder {
	t.Helper()
	order, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		Reference:    "PO-001",
		SupplierName: "Acme Wholesale",
		Items:        items,
	})
	require.NoError(t, err)
	return order
}

func TestCreateOrderComputesTotal(t *testing.T) {
	store := newFakeStore()
	svc := newService(store)

	order := createOrder(t, svc, item(1, 10, 12), item(2, 5, 8))
	require.Equal(t, StatusPending, order.Status)
	require.True(t, order.TotalCost.Equal(decimal.NewFromInt(160)))
	require.Len(t, order.Items, 2)
}

func TestCreateOrderValidation(t *testing.T) {
	svc := newService(newFakeStore())
	ctx := context.Background()

	_, err := svc.CreateOrder(ctx, CreateOrderInput{Reference: "PO-002", SupplierName: "Acme"})
	require.ErrorIs(t, err, ErrEmptyOrder)

	_, err = svc.CreateOrder(ctx, CreateOrderInput{
		Reference:    "PO-003",
		SupplierName: "Acme",
		Items:        []ItemInput{{ProductID: 1, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidItem)

	_, err = svc.CreateOrder(ctx, CreateOrderInput{
		Reference:    "PO-004",
		SupplierName: "Acme",
		Items:        []ItemInput{{ProductID: 1, Quantity: 2, UnitCost: decimal.NewFromInt(-1)}},
	})
	require.ErrorIs(t, err, ErrInvalidItem)
}

func TestCreateOrderDoesNotTouchStock(t *testing.T) {
	store := newFakeStore()
	store.stock[1] = 3
	svc := newService(store)

	createOrder(t, svc, item(1, 10, 12))
	require.Equal(t, 3, store.stock[1])
}

func TestReceiveCreditsStockOnce(t *testing.T) {
	store := newFakeStore()
	store.stock[1] = 3
	store.stock[2] = 0
	svc := newService(store)
	ctx := context.Background()

	order := createOrder(t, svc, item(1, 10, 12), item(2, 4, 8))

	result, err := svc.Receive(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, result.Order.Status)
	require.NotNil(t, result.Order.ReceivedAt)
	require.Empty(t, result.SkippedProducts)
	require.Equal(t, 13, store.stock[1])
	require.Equal(t, 4, store.stock[2])

	_, err = svc.Receive(ctx, order.ID)
	require.ErrorIs(t, err, ErrAlreadyReceived)
	require.Equal(t, 13, store.stock[1], "second receive does not credit again")
	require.Equal(t, 4, store.stock[2])
}

func TestReceiveSkipsMissingProducts(t *testing.T) {
	// Product 2 was deleted after the order was placed; its item is skipped
	// but the rest of the delivery still lands.
	store := newFakeStore()
	store.stock[1] = 0
	svc := newService(store)

	order := createOrder(t, svc, item(1, 5, 10), item(2, 3, 7))

	result, err := svc.Receive(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, result.Order.Status)
	require.Equal(t, []int64{2}, result.SkippedProducts)
	require.Equal(t, 5, store.stock[1])
}

func TestReceiveUnwindsOnLedgerFailure(t *testing.T) {
	store := newFakeStore()
	store.stock[1] = 0
	store.stock[2] = 0
	store.adjustErr[2] = ledger.ErrConflict
	svc := newService(store)

	order := createOrder(t, svc, item(1, 5, 10), item(2, 3, 7))

	_, err := svc.Receive(context.Background(), order.ID)
	require.Error(t, err)
	require.Equal(t, 0, store.stock[1], "partial credit rolled back")
	require.Equal(t, StatusPending, store.orders[order.ID].Status)

	// The key was released, so a retry after the conflict clears succeeds.
	delete(store.adjustErr, 2)
	result, err := svc.Receive(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, result.Order.Status)
	require.Equal(t, 5, store.stock[1])
	require.Equal(t, 3, store.stock[2])
}

func TestConcurrentReceiveCreditsOnce(t *testing.T) {
	store := newFakeStore()
	store.stock[1] = 0
	svc := newService(store)
	order := createOrder(t, svc, item(1, 5, 10))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Receive(context.Background(), order.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrAlreadyReceived)
		}
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 5, store.stock[1])
}

func TestCancelOnlyPending(t *testing.T) {
	store := newFakeStore()
	store.stock[1] = 0
	svc := newService(store)
	ctx := context.Background()

	order := createOrder(t, svc, item(1, 5, 10))
	cancelled, err := svc.Cancel(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Receive(ctx, order.ID)
	require.ErrorIs(t, err, ErrNotPending)
	require.Equal(t, 0, store.stock[1])

	received := createOrder(t, svc, item(1, 2, 10))
	_, err = svc.Receive(ctx, received.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, received.ID)
	require.ErrorIs(t, err, ErrNotPending)
}

func TestReceiveUnknownOrder(t *testing.T) {
	svc := newService(newFakeStore())
	_, err := svc.Receive(context.Background(), 99)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestPendingListsOnlyPending(t *testing.T) {
	store := newFakeStore()
	store.stock[1] = 0
	svc := newService(store)
	ctx := context.Background()

	first := createOrder(t, svc, item(1, 5, 10))
	createOrder(t, svc, item(1, 2, 10))
	_, err := svc.Receive(ctx, first.ID)
	require.NoError(t, err)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, StatusPending, pending[0].Status)
}
