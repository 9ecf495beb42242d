package governance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func validRunRequest() RunRequest {
	return RunRequest{
		TenantID:      "t1",
		CaseID:        "c1",
		UserID:        "u1",
		RoleName:      "CASE_MANAGER",
		Justification: "subject requested access to HR emails",
	}
}

func TestPreflightKillswitchWinsOverEverything(t *testing.T) {
	p := NewPreflight(newBrokenLimiter(t))
	settings := DefaultSettings("t1")
	settings.CopilotEnabled = false

	// Even a request that fails every other gate reports the killswitch.
	d, err := p.Run(context.Background(), RunRequest{}, settings, false)
	require.NoError(t, err)
	require.Equal(t, CodeCopilotDisabled, d.Code)
}

func TestPreflightGateOrder(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	p := NewPreflight(limiter)
	ctx := context.Background()
	settings := DefaultSettings("t1")

	req := validRunRequest()
	req.TenantID = ""
	d, err := p.Run(ctx, req, settings, false)
	require.NoError(t, err)
	require.Equal(t, CodeMissingTenantID, d.Code, "binding precedes linkage")

	req = validRunRequest()
	d, err = p.Run(ctx, req, settings, false)
	require.NoError(t, err)
	require.Equal(t, CodeSubjectNotLinked, d.Code, "linkage precedes justification")

	req = validRunRequest()
	req.Justification = "ok"
	req.RoleName = "CONTRIBUTOR"
	d, err = p.Run(ctx, req, settings, true)
	require.NoError(t, err)
	require.Equal(t, CodeMissingJustification, d.Code, "justification precedes the role check")

	req = validRunRequest()
	req.RoleName = "CONTRIBUTOR"
	d, err = p.Run(ctx, req, settings, true)
	require.NoError(t, err)
	require.Equal(t, CodeRoleForbidden, d.Code)

	req = validRunRequest()
	req.RoleName = "ANALYST"
	req.ContentScan = true
	d, err = p.Run(ctx, req, settings, true)
	require.NoError(t, err)
	require.Equal(t, CodeContentScanForbidden, d.Code)
}

func TestPreflightDeniedBeforeReserveConsumesNoBudget(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	p := NewPreflight(limiter)
	ctx := context.Background()
	settings := DefaultSettings("t1")

	req := validRunRequest()
	req.RoleName = "CONTRIBUTOR"
	d, err := p.Run(ctx, req, settings, true)
	require.NoError(t, err)
	require.Equal(t, CodeRoleForbidden, d.Code)
	require.False(t, mr.Exists("gov:rl:conc:t1"),
		"a request denied by a pure gate must not reach the counter store")
}

func TestPreflightAllowReservesSlot(t *testing.T) {
	limiter, mr := newTestLimiter(t)
	p := NewPreflight(limiter)
	ctx := context.Background()
	settings := DefaultSettings("t1")
	settings.MaxConcurrentRuns = 1

	d, err := p.Run(ctx, validRunRequest(), settings, true)
	require.NoError(t, err)
	require.True(t, d.Allowed)

	got, err := mr.Get("gov:rl:conc:t1")
	require.NoError(t, err)
	require.Equal(t, "1", got)

	d, err = p.Run(ctx, validRunRequest(), settings, true)
	require.NoError(t, err)
	require.Equal(t, CodeConcurrencyLimit, d.Code)
}

func TestPreflightStoreFailureFailsClosed(t *testing.T) {
	p := NewPreflight(newBrokenLimiter(t))
	d, err := p.Run(context.Background(), validRunRequest(), DefaultSettings("t1"), true)
	require.Error(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, CodeRateLimitUnavailable, d.Code)
}

func newBrokenLimiter(t *testing.T) *RateLimiter {
	t.Helper()
	limiter, mr := newTestLimiter(t)
	mr.Close()
	return limiter
}
