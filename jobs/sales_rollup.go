package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/stockline/stockline/internal/jobs"
	"github.com/stockline/stockline/internal/sales"
)

// RollupCacheKey is where the precomputed daily stats live in Redis.
const RollupCacheKey = "stockline:rollup:daily"

// StatsPort provides the aggregated sales figures.
type StatsPort interface {
	DailyStats(ctx context.Context, limit int) ([]sales.DailyStat, error)
}

// SalesRollup precomputes daily totals so dashboard reads never hit the
// sales table directly.
type SalesRollup struct {
	stats   StatsPort
	cache   *redis.Client
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	ttl     time.Duration
}

// NewSalesRollup builds the rollup job.
func NewSalesRollup(stats StatsPort, cache *redis.Client, metrics *jobmetrics.Metrics, logger *slog.Logger) *SalesRollup {
	if logger == nil {
		logger = slog.Default()
	}
	return &SalesRollup{stats: stats, cache: cache, metrics: metrics, logger: logger, ttl: 2 * time.Hour}
}

type rollupEntry struct {
	Day          string `json:"day"`
	Total        string `json:"total"`
	Transactions int    `json:"transactions"`
}

// Handle processes TaskSalesRollup tasks.
func (r *SalesRollup) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SalesRollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Days <= 0 {
		payload.Days = 30
	}
	tracker := r.metrics.Track("sales_rollup")
	return tracker.End(r.rollup(ctx, payload.Days))
}

func (r *SalesRollup) rollup(ctx context.Context, days int) error {
	stats, err := r.stats.DailyStats(ctx, days)
	if err != nil {
		return err
	}
	entries := make([]rollupEntry, len(stats))
	for i, stat := range stats {
		entries[i] = rollupEntry{
			Day:          stat.Day.Format("2006-01-02"),
			Total:        stat.Total.String(),
			Transactions: stat.Transactions,
		}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := r.cache.Set(ctx, RollupCacheKey, payload, r.ttl).Err(); err != nil {
		return err
	}
	r.logger.Info("sales rollup cached", slog.Int("days", len(entries)))
	return nil
}
