package governance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSettingsNotFound indicates the tenant never stored settings; callers
// fall back to DefaultSettings.
var ErrSettingsNotFound = errors.New("governance: settings not found")

// SettingsRepository persists tenant governance settings.
type SettingsRepository interface {
	Get(ctx context.Context, tenantID string) (Settings, error)
	Upsert(ctx context.Context, settings Settings) error
}

// PGSettingsRepository is the Postgres-backed settings store. One row per
// tenant; rows are upserted, never deleted.
type PGSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewPGSettingsRepository constructs the repository.
func NewPGSettingsRepository(pool *pgxpool.Pool) *PGSettingsRepository {
	return &PGSettingsRepository{pool: pool}
}

const settingsColumns = `tenant_id, copilot_enabled, allowed_modes,
allow_content_scanning, allow_ocr, allow_llm_analysis,
max_runs_per_day_tenant, max_runs_per_day_user, max_concurrent_runs,
max_evidence_items_per_run, max_bytes_scanned_per_run, retention_days,
require_two_person_export_approval, require_justification, require_confirmation,
anomaly_max_runs_per_hour, anomaly_max_subjects_per_hour, anomaly_max_denied_per_hour`

// Get loads the tenant's settings row.
func (r *PGSettingsRepository) Get(ctx context.Context, tenantID string) (Settings, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+settingsColumns+`
FROM governance_settings WHERE tenant_id = $1`, tenantID)

	var s Settings
	var modes []string
	err := row.Scan(
		&s.TenantID, &s.CopilotEnabled, &modes,
		&s.AllowContentScanning, &s.AllowOCR, &s.AllowLLMAnalysis,
		&s.MaxRunsPerDayTenant, &s.MaxRunsPerDayUser, &s.MaxConcurrentRuns,
		&s.MaxEvidenceItemsPerRun, &s.MaxBytesScannedPerRun, &s.RetentionDays,
		&s.RequireTwoPersonExportApproval, &s.RequireJustification, &s.RequireConfirmation,
		&s.Anomaly.MaxRunsPerHour, &s.Anomaly.MaxDistinctSubjectsPerHour, &s.Anomaly.MaxPermissionDeniedPerHour,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settings{}, ErrSettingsNotFound
		}
		return Settings{}, err
	}
	s.AllowedModes = make([]RunMode, 0, len(modes))
	for _, m := range modes {
		s.AllowedModes = append(s.AllowedModes, RunMode(m))
	}
	return s, nil
}

// Upsert writes the tenant's settings row, replacing any previous values.
func (r *PGSettingsRepository) Upsert(ctx context.Context, s Settings) error {
	modes := make([]string, 0, len(s.AllowedModes))
	for _, m := range s.AllowedModes {
		modes = append(modes, string(m))
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO governance_settings (`+settingsColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
ON CONFLICT (tenant_id) DO UPDATE SET
copilot_enabled = EXCLUDED.copilot_enabled,
allowed_modes = EXCLUDED.allowed_modes,
allow_content_scanning = EXCLUDED.allow_content_scanning,
allow_ocr = EXCLUDED.allow_ocr,
allow_llm_analysis = EXCLUDED.allow_llm_analysis,
max_runs_per_day_tenant = EXCLUDED.max_runs_per_day_tenant,
max_runs_per_day_user = EXCLUDED.max_runs_per_day_user,
max_concurrent_runs = EXCLUDED.max_concurrent_runs,
max_evidence_items_per_run = EXCLUDED.max_evidence_items_per_run,
max_bytes_scanned_per_run = EXCLUDED.max_bytes_scanned_per_run,
retention_days = EXCLUDED.retention_days,
require_two_person_export_approval = EXCLUDED.require_two_person_export_approval,
require_justification = EXCLUDED.require_justification,
require_confirmation = EXCLUDED.require_confirmation,
anomaly_max_runs_per_hour = EXCLUDED.anomaly_max_runs_per_hour,
anomaly_max_subjects_per_hour = EXCLUDED.anomaly_max_subjects_per_hour,
anomaly_max_denied_per_hour = EXCLUDED.anomaly_max_denied_per_hour,
updated_at = NOW()`,
		s.TenantID, s.CopilotEnabled, modes,
		s.AllowContentScanning, s.AllowOCR, s.AllowLLMAnalysis,
		s.MaxRunsPerDayTenant, s.MaxRunsPerDayUser, s.MaxConcurrentRuns,
		s.MaxEvidenceItemsPerRun, s.MaxBytesScannedPerRun, s.RetentionDays,
		s.RequireTwoPersonExportApproval, s.RequireJustification, s.RequireConfirmation,
		s.Anomaly.MaxRunsPerHour, s.Anomaly.MaxDistinctSubjectsPerHour, s.Anomaly.MaxPermissionDeniedPerHour,
	)
	return err
}
