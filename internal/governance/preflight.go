package governance

import "context"

// Preflight is the ordered, short-circuiting decision pipeline evaluated
// before every Copilot run. The first failing gate's decision is returned
// verbatim and no further gate executes. Checks are ordered cheapest first;
// the rate-limit reservation runs last so a request that would fail a pure
// check never consumes budget.
//
// Two-person approval and anomaly detection are deliberately not part of this
// pipeline: the former gates the export action, the latter is an escalation
// path evaluated after the run decision.
type Preflight struct {
	limiter *RateLimiter
}

// NewPreflight builds the orchestrator around the shared rate limiter.
func NewPreflight(limiter *RateLimiter) *Preflight {
	return &Preflight{limiter: limiter}
}

// Run evaluates the full gate sequence for one run request. An allow implies
// a held concurrency slot that the caller must release when the run ends.
// The returned error is non-nil only for counter-store failures, and in that
// case the decision is already a denial (fail closed).
func (p *Preflight) Run(ctx context.Context, req RunRequest, settings Settings, identityProfileExists bool) (Decision, error) {
	if !settings.CopilotEnabled {
		return Deny(CodeCopilotDisabled, "Copilot is disabled for this tenant"), nil
	}
	if d := ValidateBinding(req.TenantID, req.CaseID); !d.Allowed {
		return d, nil
	}
	if d := ValidateSubjectLinkage(identityProfileExists); !d.Allowed {
		return d, nil
	}
	if d := ValidateJustification(req.Justification, settings); !d.Allowed {
		return d, nil
	}
	if d := AuthorizeRun(req.RoleName); !d.Allowed {
		return d, nil
	}
	if d := AuthorizeContentScan(req.RoleName, req.ContentScan, settings); !d.Allowed {
		return d, nil
	}
	return p.limiter.CheckAndReserve(ctx, req.TenantID, req.UserID, settings)
}
