package runs

import (
	"time"

	"github.com/google/uuid"

	"github.com/dsarhub/dsarhub/internal/governance"
)

// RunStatus tracks the lifecycle of an executed Copilot run. Requests denied
// in preflight never become runs; they are recorded as denials instead.
type RunStatus string

const (
	// StatusRunning marks a run holding a concurrency slot.
	StatusRunning RunStatus = "RUNNING"
	// StatusCompleted marks a successfully finished run.
	StatusCompleted RunStatus = "COMPLETED"
	// StatusFailed marks a run that errored during discovery.
	StatusFailed RunStatus = "FAILED"
)

// Run is one admitted Copilot run.
type Run struct {
	ID            uuid.UUID
	TenantID      string
	CaseID        string
	UserID        string
	RoleName      string
	Purpose       string
	Justification string
	ContentScan   bool
	OCR           bool
	LLMAnalysis   bool
	Status        RunStatus
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// Denial records a preflight denial. Denials feed the permission-denied
// rolling window consumed by anomaly detection.
type Denial struct {
	TenantID string
	CaseID   string
	UserID   string
	Code     governance.Code
	At       time.Time
}
