package governance

// RoleScope is the immutable capability vector attached to a role. It is
// derived from the role enum, never stored.
type RoleScope struct {
	CanStartRun               bool `json:"canStartRun"`
	CanConfigureRun           bool `json:"canConfigureRun"`
	CanRequestContentScan     bool `json:"canRequestContentScan"`
	CanGenerateSummaries      bool `json:"canGenerateSummaries"`
	CanViewFindings           bool `json:"canViewFindings"`
	CanRequestExport          bool `json:"canRequestExport"`
	CanApproveExport          bool `json:"canApproveExport"`
	CanApproveSpecialCategory bool `json:"canApproveSpecialCategory"`
	CanChangeSettings         bool `json:"canChangeSettings"`
	CanViewGovernanceReport   bool `json:"canViewGovernanceReport"`
}

// readOnlyScope is the most restrictive scope. Unknown roles resolve to it so
// that a typo in a role string can never grant access.
var readOnlyScope = RoleScope{
	CanViewFindings: true,
}

// ScopeFor resolves a role string to its capability vector. The switch is
// exhaustive over the closed role set; every other input fails closed to the
// read-only scope.
func ScopeFor(role string) RoleScope {
	switch Role(role) {
	case RoleSuperAdmin, RoleTenantAdmin:
		return RoleScope{
			CanStartRun:               true,
			CanConfigureRun:           true,
			CanRequestContentScan:     true,
			CanGenerateSummaries:      true,
			CanViewFindings:           true,
			CanRequestExport:          true,
			CanApproveExport:          true,
			CanApproveSpecialCategory: true,
			CanChangeSettings:         true,
			CanViewGovernanceReport:   true,
		}
	case RoleDPO:
		return RoleScope{
			CanStartRun:               true,
			CanConfigureRun:           true,
			CanRequestContentScan:     true,
			CanGenerateSummaries:      true,
			CanViewFindings:           true,
			CanRequestExport:          true,
			CanApproveExport:          true,
			CanApproveSpecialCategory: true,
			CanViewGovernanceReport:   true,
		}
	case RoleCaseManager:
		return RoleScope{
			CanStartRun:           true,
			CanConfigureRun:       true,
			CanRequestContentScan: true,
			CanGenerateSummaries:  true,
			CanViewFindings:       true,
			CanRequestExport:      true,
			CanApproveExport:      true,
		}
	case RoleAnalyst:
		return RoleScope{
			CanStartRun:          true,
			CanGenerateSummaries: true,
			CanViewFindings:      true,
		}
	case RoleContributor:
		return RoleScope{
			CanViewFindings: true,
		}
	case RoleReadOnly:
		return readOnlyScope
	default:
		return readOnlyScope
	}
}

// privilegedApprover reports whether a role may satisfy the privileged-seat
// requirement of two-person export approval.
func privilegedApprover(role string) bool {
	switch Role(role) {
	case RoleDPO, RoleTenantAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// AuthorizeRun checks the role capability to start a Copilot run.
func AuthorizeRun(role string) Decision {
	if !ScopeFor(role).CanStartRun {
		return Deny(CodeRoleForbidden, "role "+role+" may not start Copilot runs")
	}
	return Allow()
}

// AuthorizeContentScan checks content-scan permission. Both the role
// capability and the tenant-level toggle must allow it; a run that does not
// request scanning passes trivially.
func AuthorizeContentScan(role string, requested bool, settings Settings) Decision {
	if !requested {
		return Allow()
	}
	if !settings.AllowContentScanning {
		return Deny(CodeContentScanDisabled, "content scanning is disabled for this tenant")
	}
	if !ScopeFor(role).CanRequestContentScan {
		return Deny(CodeContentScanForbidden, "role "+role+" may not request content scanning")
	}
	return Allow()
}

// AuthorizeExport checks the role capability to request an export.
func AuthorizeExport(role string) Decision {
	if !ScopeFor(role).CanRequestExport {
		return Deny(CodeExportForbidden, "role "+role+" may not request exports")
	}
	return Allow()
}

// AuthorizeSettingsChange checks the role capability to mutate governance
// settings.
func AuthorizeSettingsChange(role string) Decision {
	if !ScopeFor(role).CanChangeSettings {
		return Deny(CodeSettingsForbidden, "role "+role+" may not change governance settings")
	}
	return Allow()
}
