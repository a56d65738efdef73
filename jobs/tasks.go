package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskERPSync imports vendors and pending bills from the ERP.
	TaskERPSync = "erpsync:run"
	// TaskReportsWarmup refills the report cache.
	TaskReportsWarmup = "reports:warmup"
	// TaskIdempotencyCleanup purges old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// ERPSyncPayload selects what to import. An empty Kind imports vendors
// and then invoices.
type ERPSyncPayload struct {
	Kind    string `json:"kind,omitempty"`
	ActorID int64  `json:"actor_id,omitempty"`
}

// NewERPSyncTask constructs an Asynq task.
func NewERPSyncTask(payload ERPSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskERPSync, data, asynq.MaxRetry(3)), nil
}

// NewReportsWarmupTask constructs an Asynq task.
func NewReportsWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskReportsWarmup, nil, asynq.MaxRetry(1))
}

// CleanupPayload configures an idempotency cleanup run.
type CleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
