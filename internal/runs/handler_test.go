package runs

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/dsarhub/dsarhub/internal/governance"
	"github.com/dsarhub/dsarhub/internal/shared"
)

func newTestHandlerRouter(t *testing.T, settings governance.Settings) (chi.Router, *runFixture) {
	t.Helper()
	f := newRunFixture(t, settings)
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, nil).MountRoutes(r)
	return r, f
}

func startRunRequest(body string, actor shared.Actor) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(shared.ContextWithActor(req.Context(), actor))
}

func TestHandleStartAcceptsAdmittedRun(t *testing.T) {
	r, f := newTestHandlerRouter(t, governance.DefaultSettings("t1"))

	body := `{"caseId": "c1", "purpose": "locate subject emails", "justification": "subject requested access to HR emails"}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, startRunRequest(body, shared.Actor{TenantID: "t1", UserID: "u1", Role: "CASE_MANAGER"}))

	require.Equal(t, http.StatusAccepted, rr.Code)
	var resp struct {
		Allowed bool   `json:"allowed"`
		RunID   string `json:"runId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Allowed)
	require.NotEmpty(t, resp.RunID)
	require.Len(t, f.enqueuer.enqueued, 1)
}

func TestHandleStartReturnsDenialDecision(t *testing.T) {
	r, f := newTestHandlerRouter(t, governance.DefaultSettings("t1"))

	body := `{"caseId": "c1", "purpose": "locate subject emails", "justification": "subject requested access to HR emails"}`
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, startRunRequest(body, shared.Actor{TenantID: "t1", UserID: "u1", Role: "READ_ONLY"}))

	require.Equal(t, http.StatusForbidden, rr.Code)
	var decision governance.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decision))
	require.False(t, decision.Allowed)
	require.Equal(t, governance.CodeRoleForbidden, decision.Code)
	require.Empty(t, f.enqueuer.enqueued)
}

func TestHandleStartRequiresIdentity(t *testing.T) {
	r, _ := newTestHandlerRouter(t, governance.DefaultSettings("t1"))

	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(`{"caseId":"c1","purpose":"x"}`))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandleStartRejectsMissingCaseID(t *testing.T) {
	r, _ := newTestHandlerRouter(t, governance.DefaultSettings("t1"))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, startRunRequest(`{"purpose": "locate subject emails"}`,
		shared.Actor{TenantID: "t1", UserID: "u1", Role: "CASE_MANAGER"}))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}
