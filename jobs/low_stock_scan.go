package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stockline/stockline/internal/catalog"
	jobmetrics "github.com/stockline/stockline/internal/jobs"
	"github.com/stockline/stockline/internal/ledger"
)

// CatalogPort lists products for the scan.
type CatalogPort interface {
	ListLowStock(ctx context.Context) ([]catalog.Product, error)
}

// LedgerPort refreshes product status.
type LedgerPort interface {
	Adjust(ctx context.Context, productID int64, delta int) (ledger.Level, error)
}

// LowStockScanner walks products at or below their threshold and pushes
// each through a zero-delta adjustment. That recomputes the stored status
// and fans out an alert for any product whose status drifted, e.g. after a
// threshold edit that bypassed the ledger.
type LowStockScanner struct {
	catalog CatalogPort
	ledger  LedgerPort
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewLowStockScanner builds the scanner.
func NewLowStockScanner(catalog CatalogPort, ledger LedgerPort, metrics *jobmetrics.Metrics, logger *slog.Logger) *LowStockScanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockScanner{catalog: catalog, ledger: ledger, metrics: metrics, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (s *LowStockScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := s.metrics.Track("low_stock_scan")
	return tracker.End(s.scan(ctx))
}

func (s *LowStockScanner) scan(ctx context.Context) error {
	products, err := s.catalog.ListLowStock(ctx)
	if err != nil {
		return err
	}
	s.metrics.SetLowStockCount(len(products))
	for _, product := range products {
		if _, err := s.ledger.Adjust(ctx, product.ID, 0); err != nil {
			s.logger.Warn("low-stock scan skipped product",
				slog.Int64("product_id", product.ID),
				slog.Any("error", err))
		}
	}
	s.logger.Info("low-stock scan complete", slog.Int("products", len(products)))
	return nil
}
