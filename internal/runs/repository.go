package runs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsarhub/dsarhub/internal/governance"
)

// ErrRunNotFound indicates the run does not exist.
var ErrRunNotFound = errors.New("runs: not found")

// Repository is the persistence boundary for runs, denials and the rolling
// aggregates the governance engine consumes.
type Repository interface {
	InsertRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, finishedAt time.Time) error
	RecordDenial(ctx context.Context, denial Denial) error
	IdentityProfileExists(ctx context.Context, tenantID, caseID string) (bool, error)
	HourlyActivity(ctx context.Context, tenantID, userID string, since time.Time) (governance.AnomalyInput, error)
}

// PGRepository is the Postgres implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// InsertRun persists a freshly admitted run.
func (r *PGRepository) InsertRun(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO copilot_runs
(id, tenant_id, case_id, user_id, role_name, purpose, justification, content_scan, ocr, llm_analysis, status, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		run.ID, run.TenantID, run.CaseID, run.UserID, run.RoleName, run.Purpose, run.Justification,
		run.ContentScan, run.OCR, run.LLMAnalysis, string(run.Status), run.StartedAt)
	return err
}

// GetRun loads one run by id.
func (r *PGRepository) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, case_id, user_id, role_name, purpose, justification,
content_scan, ocr, llm_analysis, status, started_at, finished_at
FROM copilot_runs WHERE id = $1`, id)

	var run Run
	var status string
	err := row.Scan(&run.ID, &run.TenantID, &run.CaseID, &run.UserID, &run.RoleName, &run.Purpose,
		&run.Justification, &run.ContentScan, &run.OCR, &run.LLMAnalysis, &status, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, ErrRunNotFound
		}
		return Run{}, err
	}
	run.Status = RunStatus(status)
	return run, nil
}

// FinishRun records the terminal status of a run.
func (r *PGRepository) FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, finishedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE copilot_runs SET status = $2, finished_at = $3 WHERE id = $1`,
		id, string(status), finishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// RecordDenial persists a preflight denial.
func (r *PGRepository) RecordDenial(ctx context.Context, denial Denial) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO governance_denials (tenant_id, case_id, user_id, code, denied_at)
VALUES ($1, $2, $3, $4, $5)`,
		denial.TenantID, denial.CaseID, denial.UserID, string(denial.Code), denial.At)
	return err
}

// IdentityProfileExists reports whether the case has a resolved data subject.
func (r *PGRepository) IdentityProfileExists(ctx context.Context, tenantID, caseID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM identity_profiles WHERE tenant_id = $1 AND case_id = $2)`, tenantID, caseID).Scan(&exists)
	return exists, err
}

// HourlyActivity computes the rolling aggregates for one (tenant, user) pair.
func (r *PGRepository) HourlyActivity(ctx context.Context, tenantID, userID string, since time.Time) (governance.AnomalyInput, error) {
	in := governance.AnomalyInput{TenantID: tenantID, UserID: userID}

	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(DISTINCT case_id)
FROM copilot_runs WHERE tenant_id = $1 AND user_id = $2 AND started_at >= $3`,
		tenantID, userID, since).Scan(&in.RunsInLastHour, &in.DistinctSubjectsInLastHour)
	if err != nil {
		return governance.AnomalyInput{}, err
	}

	err = r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM governance_denials WHERE tenant_id = $1 AND user_id = $2 AND denied_at >= $3`,
		tenantID, userID, since).Scan(&in.PermissionDeniedInLastHour)
	if err != nil {
		return governance.AnomalyInput{}, err
	}
	return in, nil
}
