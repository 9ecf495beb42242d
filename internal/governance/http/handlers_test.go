package govhttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dsarhub/dsarhub/internal/audit"
	"github.com/dsarhub/dsarhub/internal/governance"
	"github.com/dsarhub/dsarhub/internal/shared"
)

type memorySettingsRepo struct {
	mu   sync.Mutex
	rows map[string]governance.Settings
}

func (r *memorySettingsRepo) Get(_ context.Context, tenantID string) (governance.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[tenantID]
	if !ok {
		return governance.Settings{}, governance.ErrSettingsNotFound
	}
	return s, nil
}

func (r *memorySettingsRepo) Upsert(_ context.Context, s governance.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = map[string]governance.Settings{}
	}
	r.rows[s.TenantID] = s
	return nil
}

type memoryAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *memoryAudit) Record(_ context.Context, e audit.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
	return nil
}

func (a *memoryAudit) kinds() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Kind)
	}
	return out
}

func newTestRouter(t *testing.T) (chi.Router, *memorySettingsRepo, *memoryAudit) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := &memorySettingsRepo{}
	recorder := &memoryAudit{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := governance.NewSettingsService(repo, client, 30*time.Second, logger)

	r := chi.NewRouter()
	NewHandler(logger, service, recorder).MountRoutes(r)
	return r, repo, recorder
}

func asActor(req *http.Request, actor shared.Actor) *http.Request {
	return req.WithContext(shared.ContextWithActor(req.Context(), actor))
}

func TestScopeLookup(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/governance/scopes/DPO", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var scope governance.RoleScope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &scope))
	require.True(t, scope.CanApproveExport)
	require.True(t, scope.CanApproveSpecialCategory)
	require.False(t, scope.CanChangeSettings)
}

func TestScopeLookupUnknownRoleFailsClosed(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/governance/scopes/WIZARD", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var scope governance.RoleScope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &scope))
	require.False(t, scope.CanStartRun)
	require.True(t, scope.CanViewFindings)
}

func TestGetSettingsRequiresIdentity(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/governance/settings", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetSettingsFallsBackToDefaults(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := asActor(httptest.NewRequest(http.MethodGet, "/governance/settings", nil),
		shared.Actor{TenantID: "t1", UserID: "u1", Role: string(governance.RoleDPO)})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got governance.Settings
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, governance.DefaultSettings("t1"), got)
}

func TestGetSettingsForbiddenWithoutReportCapability(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := asActor(httptest.NewRequest(http.MethodGet, "/governance/settings", nil),
		shared.Actor{TenantID: "t1", UserID: "u1", Role: string(governance.RoleContributor)})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func validUpdateBody() string {
	return `{
		"copilotEnabled": true,
		"allowedModes": ["METADATA_ONLY"],
		"allowContentScanning": false,
		"maxRunsPerDayTenant": 20,
		"maxRunsPerDayUser": 5,
		"maxConcurrentRuns": 2,
		"retentionDays": 30,
		"requireTwoPersonExportApproval": true,
		"requireJustification": true,
		"anomaly": {"maxRunsPerHour": 10, "maxDistinctSubjectsPerHour": 5, "maxPermissionDeniedPerHour": 5}
	}`
}

func TestUpdateSettingsPersistsAndAudits(t *testing.T) {
	r, repo, recorder := newTestRouter(t)

	req := asActor(httptest.NewRequest(http.MethodPut, "/governance/settings", strings.NewReader(validUpdateBody())),
		shared.Actor{TenantID: "t1", UserID: "admin-1", Role: string(governance.RoleTenantAdmin)})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	stored, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, 20, stored.MaxRunsPerDayTenant)
	require.Equal(t, 2, stored.MaxConcurrentRuns)
	require.False(t, stored.AllowContentScanning)
	require.Equal(t, []string{audit.EventSettingsChanged}, recorder.kinds())
}

func TestUpdateSettingsDeniedForNonAdmin(t *testing.T) {
	r, repo, recorder := newTestRouter(t)

	req := asActor(httptest.NewRequest(http.MethodPut, "/governance/settings", strings.NewReader(validUpdateBody())),
		shared.Actor{TenantID: "t1", UserID: "dpo-1", Role: string(governance.RoleDPO)})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
	var decision governance.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	require.False(t, decision.Allowed)
	require.Equal(t, governance.CodeSettingsForbidden, decision.Code)

	_, err := repo.Get(context.Background(), "t1")
	require.ErrorIs(t, err, governance.ErrSettingsNotFound)
	require.Empty(t, recorder.kinds())
}

func TestUpdateSettingsRejectsInvalidBody(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := asActor(httptest.NewRequest(http.MethodPut, "/governance/settings", strings.NewReader(`{"allowedModes": []}`)),
		shared.Actor{TenantID: "t1", UserID: "admin-1", Role: string(governance.RoleTenantAdmin)})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResetSettingsRestoresDefaults(t *testing.T) {
	r, repo, recorder := newTestRouter(t)

	custom := governance.DefaultSettings("t1")
	custom.MaxConcurrentRuns = 1
	require.NoError(t, repo.Upsert(context.Background(), custom))

	req := asActor(httptest.NewRequest(http.MethodPost, "/governance/settings/reset", nil),
		shared.Actor{TenantID: "t1", UserID: "admin-1", Role: string(governance.RoleSuperAdmin)})
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	stored, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, governance.DefaultSettings("t1"), stored)
	require.Equal(t, []string{audit.EventSettingsReset}, recorder.kinds())
}
