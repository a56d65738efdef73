package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/erpsync"
	jobmetrics "github.com/odyssey-erp/payables/internal/jobs"
	"github.com/odyssey-erp/payables/internal/shared"
)

type recordingSyncer struct {
	kinds  []string
	actors []int64
	errs   map[string]error
}

func (s *recordingSyncer) Run(ctx context.Context, kind string) (erpsync.Result, error) {
	s.kinds = append(s.kinds, kind)
	actor, _ := shared.ActorFromContext(ctx)
	s.actors = append(s.actors, actor.UserID)
	return erpsync.Result{Kind: kind, Imported: 1}, s.errs[kind]
}

func syncTask(t *testing.T, payload ERPSyncPayload) *asynq.Task {
	t.Helper()
	task, err := NewERPSyncTask(payload)
	require.NoError(t, err)
	return task
}

func TestERPSyncJobRunsBothKindsByDefault(t *testing.T) {
	syncer := &recordingSyncer{}
	job := NewERPSyncJob(syncer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), syncTask(t, ERPSyncPayload{})))
	require.Equal(t, []string{erpsync.KindVendors, erpsync.KindInvoices}, syncer.kinds)
	require.Equal(t, []int64{0, 0}, syncer.actors)
}

func TestERPSyncJobCarriesActor(t *testing.T) {
	syncer := &recordingSyncer{}
	job := NewERPSyncJob(syncer, nil, nil)

	require.NoError(t, job.Handle(context.Background(), syncTask(t, ERPSyncPayload{Kind: erpsync.KindInvoices, ActorID: 7})))
	require.Equal(t, []string{erpsync.KindInvoices}, syncer.kinds)
	require.Equal(t, []int64{7}, syncer.actors)
}

func TestERPSyncJobErrors(t *testing.T) {
	boom := errors.New("tally offline")
	syncer := &recordingSyncer{errs: map[string]error{erpsync.KindVendors: erpsync.ErrSyncRunning, erpsync.KindInvoices: boom}}
	job := NewERPSyncJob(syncer, nil, nil)

	err := job.Handle(context.Background(), syncTask(t, ERPSyncPayload{}))
	require.ErrorIs(t, err, boom)
	require.Len(t, syncer.kinds, 2)

	err = job.Handle(context.Background(), asynq.NewTask(TaskERPSync, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), syncTask(t, ERPSyncPayload{Kind: "ledgers"}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type warmer struct {
	calls int
	err   error
}

func (w *warmer) Warmup(ctx context.Context) error {
	w.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected deadline")
	}
	return w.err
}

func TestReportsWarmupJob(t *testing.T) {
	w := &warmer{}
	job := &ReportsWarmupJob{Reports: w, Timeout: time.Second}
	require.NoError(t, job.Handle(context.Background(), NewReportsWarmupTask()))
	require.Equal(t, 1, w.calls)

	w.err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), NewReportsWarmupTask()))

	var empty *ReportsWarmupJob
	require.Error(t, empty.Handle(context.Background(), NewReportsWarmupTask()))
}

type purger struct{ got time.Duration }

func (p *purger) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	p.got = olderThan
	return 3, nil
}

func TestIdempotencyCleanupJob(t *testing.T) {
	p := &purger{}
	job := &IdempotencyCleanupJob{Store: p}

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, defaultRetention, p.got)

	task, err := NewIdempotencyCleanupTask(CleanupPayload{RetentionHours: 48})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, p.got)
}

func TestTaskPayloads(t *testing.T) {
	task := syncTask(t, ERPSyncPayload{Kind: erpsync.KindVendors, ActorID: 2})
	require.Equal(t, TaskERPSync, task.Type())
	var payload ERPSyncPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, ERPSyncPayload{Kind: erpsync.KindVendors, ActorID: 2}, payload)
	require.Equal(t, TaskReportsWarmup, NewReportsWarmupTask().Type())
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, nil).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0,"failed":0}`, rec.Body.String())
}
