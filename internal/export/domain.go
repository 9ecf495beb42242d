package export

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks an export request through the approval workflow.
type Status string

const (
	// StatusPendingApproval waits on the two-person quorum.
	StatusPendingApproval Status = "PENDING_APPROVAL"
	// StatusReady means the export may be produced and delivered.
	StatusReady Status = "READY"
)

// Request is one case-export request.
type Request struct {
	ID            uuid.UUID
	TenantID      string
	CaseID        string
	RequesterID   string
	RequesterRole string
	Status        Status
	CreatedAt     time.Time
	FinalizedAt   *time.Time
}
