package runs

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

// Enqueuer hands admitted runs to the background worker.
type Enqueuer interface {
	EnqueueRunExecute(ctx context.Context, runID uuid.UUID) error
}

// Connector performs the actual data discovery. It is an external
// collaborator; this service only decides whether and when it runs.
type Connector interface {
	Discover(ctx context.Context, run Run) error
}

// Service owns run initiation and execution around the governance preflight.
type Service struct {
	repo      Repository
	settings  SettingsSource
	preflight *governance.Preflight
	limiter   *governance.RateLimiter
	audit     AuditRecorder
	enqueuer  Enqueuer
	connector Connector
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService constructs the run service.
func NewService(repo Repository, settings SettingsSource, limiter *governance.RateLimiter,
	recorder AuditRecorder, enqueuer Enqueuer, connector Connector, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		settings:  settings,
		preflight: governance.NewPreflight(limiter),
		limiter:   limiter,
		audit:     recorder,
		enqueuer:  enqueuer,
		connector: connector,
		logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// WithClock overrides the clock for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// StartResult reports the preflight decision and, when admitted, the run id.
type StartResult struct {
	Decision governance.Decision
	RunID    uuid.UUID
}

// Start runs the full preflight pipeline and, on allow, persists the run and
// hands it to the worker. An allow means a concurrency slot is held; every
// failure path after the reservation releases it before returning.
func (s *Service) Start(ctx context.Context, req governance.RunRequest) (StartResult, error) {
	settings, err := s.settings.Get(ctx, req.TenantID)
	if err != nil {
		return StartResult{}, fmt.Errorf("runs: load settings: %w", err)
	}

	// The linkage flag is only meaningful for a bound request; preflight
	// denies unbound requests before it looks at the flag.
	linked := false
	if governance.ValidateBinding(req.TenantID, req.CaseID).Allowed {
		linked, err = s.repo.IdentityProfileExists(ctx, req.TenantID, req.CaseID)
		if err != nil {
			return StartResult{}, fmt.Errorf("runs: check identity linkage: %w", err)
		}
	}

	decision, err := s.preflight.Run(ctx, req, settings, linked)
	if err != nil {
		// Counter-store failure: the decision already denies (fail closed).
		s.logger.Error("preflight infrastructure failure",
			slog.String("tenant", req.TenantID), slog.Any("error", err))
	}
	if !decision.Allowed {
		s.recordDenial(ctx, req, decision)
		s.checkAnomalies(ctx, req.TenantID, req.UserID, settings)
		return StartResult{Decision: decision}, nil
	}

	run := Run{
		ID:            uuid.New(),
		TenantID:      req.TenantID,
		CaseID:        req.CaseID,
		UserID:        req.UserID,
		RoleName:      req.RoleName,
		Purpose:       req.Purpose,
		Justification: req.Justification,
		ContentScan:   req.ContentScan,
		OCR:           req.OCR,
		LLMAnalysis:   req.LLMAnalysis,
		Status:        StatusRunning,
		StartedAt:     s.clock(),
	}
	if err := s.repo.InsertRun(ctx, run); err != nil {
		s.release(ctx, req.TenantID, req.UserID)
		return StartResult{}, fmt.Errorf("runs: insert run: %w", err)
	}
	if err := s.enqueuer.EnqueueRunExecute(ctx, run.ID); err != nil {
		now := s.clock()
		if ferr := s.repo.FinishRun(ctx, run.ID, StatusFailed, now); ferr != nil {
			s.logger.Error("mark run failed", slog.String("run", run.ID.String()), slog.Any("error", ferr))
		}
		s.release(ctx, req.TenantID, req.UserID)
		return StartResult{}, fmt.Errorf("runs: enqueue execution: %w", err)
	}

	if err := s.audit.Record(ctx, audit.Event{
		TenantID: req.TenantID,
		ActorID:  req.UserID,
		Kind:     audit.EventRunStarted,
		Entity:   "copilot_run",
		EntityID: run.ID.String(),
		Meta:     map[string]any{"caseId": req.CaseID, "contentScan": req.ContentScan},
	}); err != nil {
		s.logger.Warn("audit run start", slog.Any("error", err))
	}

	s.checkAnomalies(ctx, req.TenantID, req.UserID, settings)
	return StartResult{Decision: decision, RunID: run.ID}, nil
}

// Execute performs the discovery work for an admitted run. The concurrency
// slot is released on every exit path, including connector panics unwinding
// through the deferred release.
func (s *Service) Execute(ctx context.Context, runID uuid.UUID) error {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("runs: load run: %w", err)
	}
	if run.Status != StatusRunning {
		// Re-delivered task; the slot was already released.
		return nil
	}
	defer s.release(ctx, run.TenantID, run.UserID)

	var discoverErr error
	if s.connector != nil {
		discoverErr = s.connector.Discover(ctx, run)
	}

	status := StatusCompleted
	if discoverErr != nil {
		status = StatusFailed
		s.logger.Error("discovery failed", slog.String("run", runID.String()), slog.Any("error", discoverErr))
	}
	if err := s.repo.FinishRun(ctx, runID, status, s.clock()); err != nil {
		return fmt.Errorf("runs: finish run: %w", err)
	}
	return discoverErr
}

func (s *Service) release(ctx context.Context, tenantID, userID string) {
	if err := s.limiter.Release(ctx, tenantID, userID); err != nil {
		s.logger.Error("release concurrency slot",
			slog.String("tenant", tenantID), slog.Any("error", err))
	}
}

func (s *Service) recordDenial(ctx context.Context, req governance.RunRequest, decision governance.Decision) {
	denial := Denial{
		TenantID: req.TenantID,
		CaseID:   req.CaseID,
		UserID:   req.UserID,
		Code:     decision.Code,
		At:       s.clock(),
	}
	if err := s.repo.RecordDenial(ctx, denial); err != nil {
		s.logger.Error("record denial", slog.Any("error", err))
	}
	if err := s.audit.Record(ctx, audit.Event{
		TenantID: req.TenantID,
		ActorID:  req.UserID,
		Kind:     audit.EventPreflightDenied,
		Entity:   "copilot_run",
		EntityID: req.CaseID,
		Meta:     map[string]any{"code": string(decision.Code), "reason": decision.Reason},
	}); err != nil {
		s.logger.Warn("audit preflight denial", slog.Any("error", err))
	}
}

// checkAnomalies evaluates the rolling-window thresholds and raises a
// break-glass record on a positive result. It never blocks the request that
// triggered it; failures here are logged and dropped.
func (s *Service) checkAnomalies(ctx context.Context, tenantID, userID string, settings governance.Settings) {
	since := s.clock().Add(-time.Hour)
	input, err := s.repo.HourlyActivity(ctx, tenantID, userID, since)
	if err != nil {
		s.logger.Error("load hourly activity", slog.Any("error", err))
		return
	}
	result := governance.DetectAnomalies(input, settings.Anomaly)
	if !result.Anomalous {
		return
	}
	s.logger.Warn("usage anomaly detected",
		slog.String("tenant", tenantID),
		slog.String("user", userID),
		slog.String("event", string(result.Event)),
	)
	if err := s.audit.Record(ctx, audit.Event{
		TenantID: tenantID,
		ActorID:  userID,
		Kind:     audit.EventBreakGlass,
		Entity:   "copilot_usage",
		EntityID: userID,
		Meta:     map[string]any{"event": string(result.Event), "description": result.Description},
	}); err != nil {
		s.logger.Error("audit break-glass", slog.Any("error", err))
	}
}
