// Package ledger is the single entry point for product stock mutation.
//
// Every stock change in the system, sales reservations, purchase credits and
// administrative corrections, flows through Service.Adjust. Correctness under
// concurrent access comes from the repository's atomic conditional update,
// never from an in-process mutex: multiple service instances may run against
// the same database.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RepositoryPort applies a signed delta as one atomic conditional update.
type RepositoryPort interface {
	// Adjust mutates stock only if stock+delta >= 0, evaluated against the
	// persisted value at mutation time, and recomputes status in the same
	// statement. The returned previous status lets callers detect transitions.
	Adjust(ctx context.Context, productID int64, delta int) (Level, Status, error)
}

// StatusSink receives stock status transitions, e.g. for low-stock alerting.
type StatusSink interface {
	StockStatusChanged(ctx context.Context, level Level)
}

// ConflictCounter counts retried serialization conflicts.
type ConflictCounter interface {
	StockConflict()
}

// Service coordinates stock adjustments with retry and status publication.
type Service struct {
	repo      RepositoryPort
	sink      StatusSink
	logger    *slog.Logger
	retries   int
	backoff   time.Duration
	conflicts ConflictCounter
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// MaxRetries bounds retries of transient conflicts. Defaults to 3.
	MaxRetries int
	// RetryBackoff is the base delay between retries. Defaults to 25ms.
	RetryBackoff time.Duration
	// Conflicts, when set, counts retried conflicts.
	Conflicts ConflictCounter
}

// NewService builds Service.
func NewService(repo RepositoryPort, sink StatusSink, logger *slog.Logger, cfg ServiceConfig) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 25 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		sink:      sink,
		logger:    logger,
		retries:   cfg.MaxRetries,
		backoff:   cfg.RetryBackoff,
		conflicts: cfg.Conflicts,
	}
}

// Adjust applies a signed quantity delta to a product's stock.
//
// A delta of 0 is a no-op that still recomputes status, used after
// low-stock threshold edits. Transient storage conflicts are retried with
// backoff; a genuine shortage fails immediately and is never retried.
func (s *Service) Adjust(ctx context.Context, productID int64, delta int) (Level, error) {
	var (
		level Level
		prev  Status
		err   error
	)
	for attempt := 0; ; attempt++ {
		level, prev, err = s.repo.Adjust(ctx, productID, delta)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConflict) || attempt >= s.retries {
			return Level{}, err
		}
		if s.conflicts != nil {
			s.conflicts.StockConflict()
		}
		s.logger.Warn("stock adjustment conflict, retrying",
			slog.Int64("product_id", productID),
			slog.Int("delta", delta),
			slog.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return Level{}, ctx.Err()
		case <-time.After(s.backoff << attempt):
		}
	}
	if s.sink != nil && level.Status != prev {
		s.sink.StockStatusChanged(ctx, level)
	}
	return level, nil
}
