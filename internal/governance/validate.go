package governance

import (
	"fmt"
	"strings"
)

// MinJustificationLength is the minimum trimmed length accepted when a tenant
// requires a justification.
const MinJustificationLength = 10

// ValidateBinding confirms the request is scoped to one tenant and one case.
// The tenant check runs first so callers get a deterministic code when both
// identifiers are blank.
func ValidateBinding(tenantID, caseID string) Decision {
	if strings.TrimSpace(tenantID) == "" {
		return Deny(CodeMissingTenantID, "run request is not bound to a tenant")
	}
	if strings.TrimSpace(caseID) == "" {
		return Deny(CodeMissingCaseID, "run request is not bound to a case")
	}
	return Allow()
}

// ValidateSubjectLinkage denies runs against a case whose data subject has no
// resolved identity profile.
func ValidateSubjectLinkage(identityProfileExists bool) Decision {
	if !identityProfileExists {
		return Deny(CodeSubjectNotLinked, "case has no linked identity profile")
	}
	return Allow()
}

// ValidateJustification enforces the tenant's justification policy. The check
// is bypassed entirely when the tenant disabled the requirement.
func ValidateJustification(text string, settings Settings) Decision {
	if !settings.RequireJustification {
		return Allow()
	}
	if len(strings.TrimSpace(text)) < MinJustificationLength {
		return Deny(CodeMissingJustification,
			fmt.Sprintf("justification must be at least %d characters", MinJustificationLength))
	}
	return Allow()
}
