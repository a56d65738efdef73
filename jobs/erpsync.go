package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/payables/internal/erpsync"
	jobmetrics "github.com/odyssey-erp/payables/internal/jobs"
	"github.com/odyssey-erp/payables/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Syncer runs one ERP import.
type Syncer interface {
	Run(ctx context.Context, kind string) (erpsync.Result, error)
}

// ERPSyncJob handles TaskERPSync.
type ERPSyncJob struct {
	Sync    Syncer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewERPSyncJob wires dependencies for the sync handler.
func NewERPSyncJob(sync Syncer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ERPSyncJob {
	return &ERPSyncJob{Sync: sync, Logger: logger, Metrics: metrics}
}

// Handle processes ERP sync tasks.
func (j *ERPSyncJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sync == nil {
		return errors.New("erp sync: handler not configured")
	}
	var payload ERPSyncPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	kinds := []string{erpsync.KindVendors, erpsync.KindInvoices}
	if payload.Kind != "" {
		if payload.Kind != erpsync.KindVendors && payload.Kind != erpsync.KindInvoices {
			return asynq.SkipRetry
		}
		kinds = []string{payload.Kind}
	}
	if payload.ActorID > 0 {
		ctx = shared.ContextWithActor(ctx, shared.Actor{UserID: payload.ActorID})
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskERPSync)
	defer func() { err = tracker.End(err) }()

	logger := loggerFor(j.Logger, TaskERPSync)
	for _, kind := range kinds {
		res, err := j.Sync.Run(ctx, kind)
		if errors.Is(err, erpsync.ErrSyncRunning) {
			logger.Info("sync already running, skipping", slog.String("kind", kind))
			continue
		}
		if err != nil {
			return err
		}
		logger.Info("sync task done", slog.String("kind", kind), slog.Int("imported", res.Imported))
	}
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func loggerFor(l *slog.Logger, job string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", job))
}
