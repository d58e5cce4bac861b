package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/stockline/stockline/internal/jobs"
)

// KeyStore prunes processed idempotency keys past their retention window.
type KeyStore interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencySweep removes stale idempotency keys so the table stays small.
// Keys only need to survive long enough to catch client retries.
type IdempotencySweep struct {
	store   KeyStore
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewIdempotencySweep builds the sweep job.
func NewIdempotencySweep(store KeyStore, metrics *jobmetrics.Metrics, logger *slog.Logger) *IdempotencySweep {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencySweep{store: store, metrics: metrics, logger: logger}
}

// Handle processes TaskIdempotencySweep tasks.
func (s *IdempotencySweep) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		payload.RetentionHours = 72
	}
	tracker := s.metrics.Track("idempotency_sweep")
	return tracker.End(s.sweep(ctx, time.Duration(payload.RetentionHours)*time.Hour))
}

func (s *IdempotencySweep) sweep(ctx context.Context, retention time.Duration) error {
	if err := s.store.Cleanup(ctx, retention); err != nil {
		s.logger.Error("idempotency sweep failed", slog.Any("error", err))
		return err
	}
	s.logger.Info("idempotency sweep completed", slog.Duration("retention", retention))
	return nil
}
