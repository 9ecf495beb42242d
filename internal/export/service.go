package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dsarhub/dsarhub/internal/audit"
	"github.com/dsarhub/dsarhub/internal/governance"
)

// SettingsSource resolves tenant governance settings.
type SettingsSource interface {
	Get(ctx context.Context, tenantID string) (governance.Settings, error)
}

// AuditRecorder persists governance events.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Event) error
}

// Service owns the export-approval workflow around the two-person gate.
type Service struct {
	repo     Repository
	settings SettingsSource
	audit    AuditRecorder
	logger   *slog.Logger
	clock    func() time.Time
}

// NewService constructs the export service.
func NewService(repo Repository, settings SettingsSource, recorder AuditRecorder, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		settings: settings,
		audit:    recorder,
		logger:   logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RequestResult reports the authorization decision and the created request.
type RequestResult struct {
	Decision governance.Decision
	Request  Request
}

// Request creates an export request for a case. The requester's role must
// carry the export capability; when the tenant requires two-person approval
// the request starts pending, otherwise it is immediately ready.
func (s *Service) Request(ctx context.Context, tenantID, caseID, requesterID, requesterRole string) (RequestResult, error) {
	if d := governance.AuthorizeExport(requesterRole); !d.Allowed {
		return RequestResult{Decision: d}, nil
	}
	settings, err := s.settings.Get(ctx, tenantID)
	if err != nil {
		return RequestResult{}, fmt.Errorf("export: load settings: %w", err)
	}

	status := StatusReady
	if settings.RequireTwoPersonExportApproval {
		status = StatusPendingApproval
	}
	req := Request{
		ID:            uuid.New(),
		TenantID:      tenantID,
		CaseID:        caseID,
		RequesterID:   requesterID,
		RequesterRole: requesterRole,
		Status:        status,
		CreatedAt:     s.clock(),
	}
	if err := s.repo.CreateRequest(ctx, req); err != nil {
		return RequestResult{}, fmt.Errorf("export: create request: %w", err)
	}
	return RequestResult{Decision: governance.Allow(), Request: req}, nil
}

// Vote records an approver's position on a pending request. Approvers need
// the approve capability; duplicate votes surface ErrDuplicateVote.
func (s *Service) Vote(ctx context.Context, requestID uuid.UUID, approverID, approverRole string, approve bool) (governance.Decision, error) {
	if !governance.ScopeFor(approverRole).CanApproveExport {
		return governance.Deny(governance.CodeExportForbidden,
			"role "+approverRole+" may not approve exports"), nil
	}
	if _, err := s.repo.GetRequest(ctx, requestID); err != nil {
		return governance.Decision{}, err
	}
	vote := governance.ApprovalVote{
		ApproverID: approverID,
		RoleName:   approverRole,
		Approved:   approve,
		VotedAt:    s.clock(),
	}
	if err := s.repo.AddVote(ctx, requestID, vote); err != nil {
		return governance.Decision{}, err
	}
	return governance.Allow(), nil
}

// Finalize applies the two-person approval gate to the current vote set and,
// on allow, transitions the request to ready. The denial decision comes back
// verbatim so callers can surface the exact quorum state.
func (s *Service) Finalize(ctx context.Context, requestID uuid.UUID) (governance.Decision, error) {
	req, err := s.repo.GetRequest(ctx, requestID)
	if err != nil {
		return governance.Decision{}, err
	}
	if req.Status == StatusReady {
		return governance.Allow(), nil
	}
	settings, err := s.settings.Get(ctx, req.TenantID)
	if err != nil {
		return governance.Decision{}, fmt.Errorf("export: load settings: %w", err)
	}
	votes, err := s.repo.ListVotes(ctx, requestID)
	if err != nil {
		return governance.Decision{}, fmt.Errorf("export: load votes: %w", err)
	}

	decision := governance.CheckTwoPersonApproval(votes, req.RequesterID, settings)
	if err := s.audit.Record(ctx, audit.Event{
		TenantID: req.TenantID,
		ActorID:  req.RequesterID,
		Kind:     audit.EventExportDecision,
		Entity:   "export_request",
		EntityID: requestID.String(),
		Meta:     map[string]any{"allowed": decision.Allowed, "code": string(decision.Code)},
	}); err != nil {
		s.logger.Warn("audit export decision", slog.Any("error", err))
	}
	if !decision.Allowed {
		return decision, nil
	}
	if err := s.repo.UpdateStatus(ctx, requestID, StatusReady, s.clock()); err != nil {
		return governance.Decision{}, fmt.Errorf("export: finalize: %w", err)
	}
	return decision, nil
}
