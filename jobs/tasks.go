package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeRunExecute executes an admitted discovery run.
	TaskTypeRunExecute = "copilot:run"
	// TaskTypeRetentionCleanup purges discovery artifacts past their
	// retention window.
	TaskTypeRetentionCleanup = "retention:cleanup"
)

// RunExecutePayload identifies the run to execute.
type RunExecutePayload struct {
	RunID uuid.UUID `json:"runId"`
}

// RetentionCleanupPayload tunes one cleanup sweep. The zero value sweeps
// every tenant.
type RetentionCleanupPayload struct {
	TenantID string `json:"tenantId,omitempty"`
}

// NewRunExecuteTask constructs an Asynq task for a run.
func NewRunExecuteTask(payload RunExecutePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRunExecute, data), nil
}

// NewRetentionCleanupTask constructs an Asynq task for a retention sweep.
func NewRetentionCleanupTask(payload RetentionCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRetentionCleanup, data), nil
}
