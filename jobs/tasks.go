// Package jobs contains the background tasks run by the worker process.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockScan refreshes product statuses and alerts on low stock.
	TaskLowStockScan = "stock:low-stock-scan"
	// TaskSalesRollup caches daily sales totals for dashboards.
	TaskSalesRollup = "sales:daily-rollup"
	// TaskIdempotencySweep prunes expired idempotency keys.
	TaskIdempotencySweep = "maintenance:idempotency-sweep"
)

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs the low-stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// SalesRollupPayload carries the number of days to aggregate.
type SalesRollupPayload struct {
	Days int `json:"days"`
}

// NewSalesRollupTask constructs the daily rollup task.
func NewSalesRollupTask(days int) (*asynq.Task, error) {
	if days <= 0 {
		days = 30
	}
	body, err := json.Marshal(SalesRollupPayload{Days: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSalesRollup, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencySweepPayload carries the key retention window.
type IdempotencySweepPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencySweepTask constructs the idempotency key sweep task.
func NewIdempotencySweepTask(retentionHours int) (*asynq.Task, error) {
	if retentionHours <= 0 {
		retentionHours = 72
	}
	body, err := json.Marshal(IdempotencySweepPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencySweep, body, asynq.Queue(QueueDefault)), nil
}
