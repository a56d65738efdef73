package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/payables/internal/jobs"
)

const defaultRetention = 7 * 24 * time.Hour

// Warmer refills cached reports.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// ReportsWarmupJob handles TaskReportsWarmup.
type ReportsWarmupJob struct {
	Reports Warmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// Handle warms the dashboard, aging and vendor summary caches.
func (j *ReportsWarmupJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskReportsWarmup)
	defer func() { err = tracker.End(err) }()

	timeout := j.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := j.Reports.Warmup(ctx); err != nil {
		loggerFor(j.Logger, TaskReportsWarmup).Error("reports warmup failed", slog.Any("error", err))
		return err
	}
	loggerFor(j.Logger, TaskReportsWarmup).Info("reports warmed", slog.Duration("duration", time.Since(start)))
	return nil
}

// KeyPurger deletes idempotency keys older than a retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob handles TaskIdempotencyCleanup.
type IdempotencyCleanupJob struct {
	Store   KeyPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle purges expired idempotency keys.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := defaultRetention
	if len(t.Payload()) > 0 {
		var payload CleanupPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetentionHours > 0 {
			retention = time.Duration(payload.RetentionHours) * time.Hour
		}
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	n, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	loggerFor(j.Logger, TaskIdempotencyCleanup).Info("idempotency keys purged", slog.Int64("deleted", n), slog.Duration("retention", retention))
	return nil
}
