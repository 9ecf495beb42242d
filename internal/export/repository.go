package export

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsarhub/dsarhub/internal/governance"
)

var (
	// ErrRequestNotFound indicates the export request does not exist.
	ErrRequestNotFound = errors.New("export: request not found")
	// ErrDuplicateVote indicates the approver already voted on this request.
	ErrDuplicateVote = errors.New("export: approver already voted")
)

// Repository is the persistence boundary for export requests and votes.
type Repository interface {
	CreateRequest(ctx context.Context, req Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (Request, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, finalizedAt time.Time) error
	AddVote(ctx context.Context, requestID uuid.UUID, vote governance.ApprovalVote) error
	ListVotes(ctx context.Context, requestID uuid.UUID) ([]governance.ApprovalVote, error)
}

// PGRepository is the Postgres implementation.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateRequest persists a new export request.
func (r *PGRepository) CreateRequest(ctx context.Context, req Request) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO export_requests
(id, tenant_id, case_id, requester_id, requester_role, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		req.ID, req.TenantID, req.CaseID, req.RequesterID, req.RequesterRole, string(req.Status), req.CreatedAt)
	return err
}

// GetRequest loads one export request.
func (r *PGRepository) GetRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, case_id, requester_id, requester_role, status, created_at, finalized_at
FROM export_requests WHERE id = $1`, id)

	var req Request
	var status string
	err := row.Scan(&req.ID, &req.TenantID, &req.CaseID, &req.RequesterID, &req.RequesterRole,
		&status, &req.CreatedAt, &req.FinalizedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrRequestNotFound
		}
		return Request{}, err
	}
	req.Status = Status(status)
	return req, nil
}

// UpdateStatus transitions the request.
func (r *PGRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, finalizedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE export_requests SET status = $2, finalized_at = $3 WHERE id = $1`,
		id, string(status), finalizedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

// AddVote records one approver's position. The (request, approver) pair is
// unique; a second vote by the same approver maps to ErrDuplicateVote.
func (r *PGRepository) AddVote(ctx context.Context, requestID uuid.UUID, vote governance.ApprovalVote) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO export_approvals
(export_request_id, approver_id, approver_role, approved, voted_at)
VALUES ($1, $2, $3, $4, $5)`,
		requestID, vote.ApproverID, vote.RoleName, vote.Approved, vote.VotedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateVote
		}
		return err
	}
	return nil
}

// ListVotes returns the full approval set in one read, giving the gate a
// consistent snapshot.
func (r *PGRepository) ListVotes(ctx context.Context, requestID uuid.UUID) ([]governance.ApprovalVote, error) {
	rows, err := r.pool.Query(ctx, `SELECT approver_id, approver_role, approved, voted_at
FROM export_approvals WHERE export_request_id = $1 ORDER BY voted_at ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []governance.ApprovalVote
	for rows.Next() {
		var v governance.ApprovalVote
		if err := rows.Scan(&v.ApproverID, &v.RoleName, &v.Approved, &v.VotedAt); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return votes, nil
}
