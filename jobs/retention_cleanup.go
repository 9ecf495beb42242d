package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsarhub/dsarhub/internal/audit"
	"github.com/dsarhub/dsarhub/internal/governance"
	jobmetrics "github.com/dsarhub/dsarhub/internal/jobs"
	"github.com/dsarhub/dsarhub/internal/platform/db"
)

// SettingsSource resolves tenant governance settings for the sweep.
type SettingsSource interface {
	Get(ctx context.Context, tenantID string) (governance.Settings, error)
}

// AuditRecorder persists governance events.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Event) error
}

// targetTables maps each retention artifact kind to its table. All six tables
// carry (tenant_id, case_id) columns.
var targetTables = map[governance.DeletionTarget]string{
	governance.TargetEvidenceItems:        "evidence_items",
	governance.TargetDetectorResults:      "detector_results",
	governance.TargetFindings:             "findings",
	governance.TargetGeneratedSummaries:   "generated_summaries",
	governance.TargetExportArtifacts:      "export_artifacts",
	governance.TargetRedactionSuggestions: "redaction_suggestions",
}

// RetentionCleanupJob purges discovery artifacts for cases whose retention
// window has elapsed. Each case is purged in a single transaction so a crash
// mid-sweep never leaves a case half-deleted.
type RetentionCleanupJob struct {
	Pool     *pgxpool.Pool
	Settings SettingsSource
	Audit    AuditRecorder
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewRetentionCleanupJob initialises the retention sweep handler.
func NewRetentionCleanupJob(pool *pgxpool.Pool, settings SettingsSource, recorder AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *RetentionCleanupJob {
	return &RetentionCleanupJob{
		Pool:     pool,
		Settings: settings,
		Audit:    recorder,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one retention sweep.
func (j *RetentionCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil || j.Settings == nil {
		return errors.New("retention cleanup: handler not configured")
	}
	var payload RetentionCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	now := j.now()
	logger := j.logger()
	tracker := j.metrics().Track(TaskTypeRetentionCleanup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	tenants, err := j.tenants(ctx, payload.TenantID)
	if err != nil {
		resultErr = err
		logger.Error("list tenants", slog.Any("error", err))
		return resultErr
	}

	var purged int
	for _, tenantID := range tenants {
		n, err := j.sweepTenant(ctx, tenantID, now)
		if err != nil {
			// One tenant failing must not starve the rest of the sweep.
			logger.Error("tenant sweep failed", slog.String("tenant_id", tenantID), slog.Any("error", err))
			continue
		}
		j.metrics().AddPurgedCases(tenantID, n)
		purged += n
	}

	logger.Info("retention sweep finished",
		slog.Int("tenants", len(tenants)),
		slog.Int("cases_purged", purged),
		slog.Duration("duration", time.Since(now)),
	)
	return resultErr
}

func (j *RetentionCleanupJob) tenants(ctx context.Context, only string) ([]string, error) {
	if only != "" {
		return []string{only}, nil
	}
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT tenant_id FROM dsar_cases WHERE closed_at IS NOT NULL AND artifacts_purged_at IS NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

func (j *RetentionCleanupJob) sweepTenant(ctx context.Context, tenantID string, now time.Time) (int, error) {
	settings, err := j.Settings.Get(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("load settings: %w", err)
	}

	rows, err := j.Pool.Query(ctx, `SELECT id, closed_at FROM dsar_cases
WHERE tenant_id = $1 AND closed_at IS NOT NULL AND artifacts_purged_at IS NULL`, tenantID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type closedCase struct {
		ID       string
		ClosedAt time.Time
	}
	var due []closedCase
	for rows.Next() {
		var c closedCase
		if err := rows.Scan(&c.ID, &c.ClosedAt); err != nil {
			return 0, err
		}
		if governance.EligibleForDeletion(&c.ClosedAt, settings.RetentionDays, now) {
			due = append(due, c)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	purged := 0
	for _, c := range due {
		deleted, err := j.purgeCase(ctx, tenantID, c.ID, now)
		if err != nil {
			return purged, fmt.Errorf("purge case %s: %w", c.ID, err)
		}
		purged++

		if j.Audit != nil {
			_ = j.Audit.Record(ctx, audit.Event{
				TenantID: tenantID,
				ActorID:  "system",
				Kind:     audit.EventRetentionPurge,
				Entity:   "case",
				EntityID: c.ID,
				Meta:     map[string]any{"deleted": deleted, "retentionDays": settings.RetentionDays},
				At:       now,
			})
		}
	}
	return purged, nil
}

// purgeCase deletes every artifact kind for one case and marks the case
// purged, all inside one transaction. Returns per-target delete counts.
func (j *RetentionCleanupJob) purgeCase(ctx context.Context, tenantID, caseID string, now time.Time) (map[string]int64, error) {
	deleted := make(map[string]int64, len(targetTables))
	err := db.WithTx(ctx, j.Pool, func(tx pgx.Tx) error {
		for _, target := range governance.DeletionTargets() {
			table := targetTables[target]
			tag, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE tenant_id = $1 AND case_id = $2`, table), tenantID, caseID)
			if err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
			deleted[string(target)] = tag.RowsAffected()
		}
		_, err := tx.Exec(ctx, `UPDATE dsar_cases SET artifacts_purged_at = $1 WHERE tenant_id = $2 AND id = $3`, now, tenantID, caseID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (j *RetentionCleanupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *RetentionCleanupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeRetentionCleanup))
	}
	return slog.Default().With(slog.String("job", TaskTypeRetentionCleanup))
}

func (j *RetentionCleanupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
