package governance

import "time"

// Role is the closed set of roles known to the governance engine. Anything
// outside this set resolves to the read-only scope.
type Role string

const (
	// RoleSuperAdmin is the platform operator role.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleTenantAdmin administers a single tenant.
	RoleTenantAdmin Role = "TENANT_ADMIN"
	// RoleDPO is the tenant's data-protection officer.
	RoleDPO Role = "DPO"
	// RoleCaseManager owns cases end to end.
	RoleCaseManager Role = "CASE_MANAGER"
	// RoleAnalyst reviews findings and drafts responses.
	RoleAnalyst Role = "ANALYST"
	// RoleContributor uploads documents and works tasks.
	RoleContributor Role = "CONTRIBUTOR"
	// RoleReadOnly can only observe.
	RoleReadOnly Role = "READ_ONLY"
)

// Code identifies a denial reason in a machine-checkable way. Codes are part
// of the API contract and must stay stable.
type Code string

const (
	CodeMissingTenantID           Code = "MISSING_TENANT_ID"
	CodeMissingCaseID             Code = "MISSING_CASE_ID"
	CodeSubjectNotLinked          Code = "SUBJECT_NOT_LINKED"
	CodeMissingJustification      Code = "MISSING_JUSTIFICATION"
	CodeRoleForbidden             Code = "ROLE_FORBIDDEN"
	CodeContentScanForbidden      Code = "CONTENT_SCAN_FORBIDDEN"
	CodeContentScanDisabled       Code = "CONTENT_SCAN_DISABLED"
	CodeConcurrencyLimit          Code = "CONCURRENCY_LIMIT"
	CodeTenantDailyLimit          Code = "TENANT_DAILY_LIMIT"
	CodeUserDailyLimit            Code = "USER_DAILY_LIMIT"
	CodeCopilotDisabled           Code = "COPILOT_DISABLED"
	CodeTwoPersonApprovalRequired Code = "TWO_PERSON_APPROVAL_REQUIRED"
	CodeTwoPersonApprovalNeedsDPO Code = "TWO_PERSON_APPROVAL_REQUIRES_DPO"
	CodeSettingsForbidden         Code = "SETTINGS_FORBIDDEN"
	CodeExportForbidden           Code = "EXPORT_FORBIDDEN"
	CodeRateLimitUnavailable      Code = "RATE_LIMIT_UNAVAILABLE"
)

// Decision is the outcome of a single governance check. Denials are values,
// not errors; infrastructure failures fail closed into a denial as well.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Code    Code   `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denial carrying a stable code and human-readable reason.
func Deny(code Code, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}

// RunMode describes how a Copilot run inspects evidence.
type RunMode string

const (
	// RunModeMetadata limits discovery to metadata and file names.
	RunModeMetadata RunMode = "METADATA_ONLY"
	// RunModeContent permits full content scanning.
	RunModeContent RunMode = "CONTENT_SCAN"
)

// AnomalyThresholds are the rolling one-hour ceilings that classify usage as
// anomalous. Tenants may tune them; zero values fall back to defaults.
type AnomalyThresholds struct {
	MaxRunsPerHour             int `json:"maxRunsPerHour"`
	MaxDistinctSubjectsPerHour int `json:"maxDistinctSubjectsPerHour"`
	MaxPermissionDeniedPerHour int `json:"maxPermissionDeniedPerHour"`
}

// Settings is the tenant-scoped governance configuration. It is threaded
// explicitly through every check; there is no ambient default instance.
type Settings struct {
	TenantID string `json:"tenantId"`

	CopilotEnabled bool      `json:"copilotEnabled"`
	AllowedModes   []RunMode `json:"allowedModes"`

	AllowContentScanning bool `json:"allowContentScanning"`
	AllowOCR             bool `json:"allowOcr"`
	AllowLLMAnalysis     bool `json:"allowLlmAnalysis"`

	MaxRunsPerDayTenant    int   `json:"maxRunsPerDayTenant"`
	MaxRunsPerDayUser      int   `json:"maxRunsPerDayUser"`
	MaxConcurrentRuns      int   `json:"maxConcurrentRuns"`
	MaxEvidenceItemsPerRun int   `json:"maxEvidenceItemsPerRun"`
	MaxBytesScannedPerRun  int64 `json:"maxBytesScannedPerRun"`

	RetentionDays int `json:"retentionDays"`

	RequireTwoPersonExportApproval bool `json:"requireTwoPersonExportApproval"`
	RequireJustification           bool `json:"requireJustification"`
	RequireConfirmation            bool `json:"requireConfirmation"`

	Anomaly AnomalyThresholds `json:"anomaly"`
}

// DefaultSettings returns the restrictive configuration applied to tenants
// that never changed anything.
func DefaultSettings(tenantID string) Settings {
	return Settings{
		TenantID:                       tenantID,
		CopilotEnabled:                 true,
		AllowedModes:                   []RunMode{RunModeMetadata, RunModeContent},
		AllowContentScanning:           true,
		AllowOCR:                       false,
		AllowLLMAnalysis:               false,
		MaxRunsPerDayTenant:            50,
		MaxRunsPerDayUser:              10,
		MaxConcurrentRuns:              3,
		MaxEvidenceItemsPerRun:         500,
		MaxBytesScannedPerRun:          1 << 30,
		RetentionDays:                  90,
		RequireTwoPersonExportApproval: true,
		RequireJustification:           true,
		RequireConfirmation:            true,
		Anomaly: AnomalyThresholds{
			MaxRunsPerHour:             10,
			MaxDistinctSubjectsPerHour: 5,
			MaxPermissionDeniedPerHour: 5,
		},
	}
}

// ModeAllowed reports whether the tenant permits the given run mode.
func (s Settings) ModeAllowed(mode RunMode) bool {
	for _, m := range s.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// RunRequest is the ephemeral description of one Copilot run attempt. It is
// built per attempt and consumed exactly once by the preflight pipeline.
type RunRequest struct {
	TenantID      string
	CaseID        string
	UserID        string
	RoleName      string
	Justification string
	Purpose       string
	ContentScan   bool
	OCR           bool
	LLMAnalysis   bool
}

// ApprovalVote is one approver's recorded position on an export request.
type ApprovalVote struct {
	ApproverID string
	RoleName   string
	Approved   bool
	VotedAt    time.Time
}
