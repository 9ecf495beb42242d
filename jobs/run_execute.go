package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/dsarhub/dsarhub/internal/jobs"
	"github.com/dsarhub/dsarhub/internal/runs"
)

// RunExecuteJob drives an admitted discovery run to completion.
type RunExecuteJob struct {
	Runs    *runs.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRunExecuteJob initialises the run execution handler.
func NewRunExecuteJob(svc *runs.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *RunExecuteJob {
	return &RunExecuteJob{Runs: svc, Logger: logger, Metrics: metrics}
}

// Handle executes the run referenced by the task payload.
func (j *RunExecuteJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runs == nil {
		return errors.New("run execute: handler not configured")
	}
	var payload RunExecutePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RunID == uuid.Nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTypeRunExecute)
	logger := j.logger().With(slog.String("run_id", payload.RunID.String()))
	if err := tracker.End(j.Runs.Execute(ctx, payload.RunID)); err != nil {
		logger.Error("run execution failed", slog.Any("error", err))
		return err
	}
	logger.Info("run execution finished")
	return nil
}

func (j *RunExecuteJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *RunExecuteJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeRunExecute))
	}
	return slog.Default().With(slog.String("job", TaskTypeRunExecute))
}
