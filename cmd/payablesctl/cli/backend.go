package cli

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/payables/internal/app"
	"github.com/odyssey-erp/payables/internal/erpsync"
	"github.com/odyssey-erp/payables/internal/platform/cache"
	"github.com/odyssey-erp/payables/internal/platform/db"
	"github.com/odyssey-erp/payables/internal/users"
	"github.com/odyssey-erp/payables/jobs"
)

// liveBackend talks to the configured Postgres, Redis and queue.
type liveBackend struct {
	cfg       *app.Config
	pool      *pgxpool.Pool
	redis     *redis.Client
	services  *app.Services
	client    *jobs.Client
	inspector *asynq.Inspector
}

// OpenLive loads configuration from the environment and connects.
func OpenLive(ctx context.Context) (Backend, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.Pool("ctl"))
	if err != nil {
		return nil, err
	}
	rdb, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, err
	}
	svc, err := app.NewServices(ctx, cfg, app.Infra{Pool: pool, Redis: rdb, Logger: logger})
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	opts := cfg.Queue()
	client, err := jobs.NewClient(opts)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, err
	}
	return &liveBackend{
		cfg:       cfg,
		pool:      pool,
		redis:     rdb,
		services:  svc,
		client:    client,
		inspector: asynq.NewInspector(opts),
	}, nil
}

func (b *liveBackend) Migrate(ctx context.Context) ([]string, error) {
	return db.Migrate(ctx, b.pool, nil)
}

func (b *liveBackend) BootstrapUser(ctx context.Context, req users.CreateUserRequest) (users.User, error) {
	return b.services.Users.Bootstrap(ctx, req)
}

func (b *liveBackend) RunSync(ctx context.Context, kind string) (erpsync.Result, error) {
	return b.services.ERPSync.Run(ctx, kind)
}

func (b *liveBackend) EnqueueSync(ctx context.Context, kind string, actorID int64) (string, error) {
	return b.client.EnqueueSync(ctx, kind, actorID)
}

func (b *liveBackend) Warmup(ctx context.Context) error {
	return b.services.Reports.Warmup(ctx)
}

func (b *liveBackend) EnqueueWarmup(ctx context.Context) (string, error) {
	return b.client.EnqueueWarmup(ctx)
}

func (b *liveBackend) EnqueueCleanup(ctx context.Context, retentionHours int) (string, error) {
	return b.client.EnqueueCleanup(ctx, retentionHours)
}

func (b *liveBackend) QueueStats(_ context.Context) (QueueStats, error) {
	info, err := b.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

func (b *liveBackend) Close() error {
	var errs []error
	if b.inspector != nil {
		errs = append(errs, b.inspector.Close())
	}
	if b.client != nil {
		errs = append(errs, b.client.Close())
	}
	if b.redis != nil {
		errs = append(errs, b.redis.Close())
	}
	if b.pool != nil {
		b.pool.Close()
	}
	return errors.Join(errs...)
}
