package govhttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dsarhub/dsarhub/internal/audit"
	"github.com/dsarhub/dsarhub/internal/governance"
	"github.com/dsarhub/dsarhub/internal/platform/httpx"
	"github.com/dsarhub/dsarhub/internal/shared"
)

// AuditRecorder persists governance events.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Event) error
}

// Handler exposes tenant governance settings and the read-only scope lookup.
type Handler struct {
	logger    *slog.Logger
	settings  *governance.SettingsService
	audit     AuditRecorder
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, settings *governance.SettingsService, recorder AuditRecorder) *Handler {
	return &Handler{logger: logger, settings: settings, audit: recorder, validator: validator.New()}
}

// handleScope serves the capability vector for a role. UI layers use it to
// pre-render available actions; the server re-validates on every operation.
func (h *Handler) handleScope(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	httpx.JSON(w, http.StatusOK, governance.ScopeFor(role))
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.TenantID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if !governance.ScopeFor(actor.Role).CanViewGovernanceReport {
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	settings, err := h.settings.Get(r.Context(), actor.TenantID)
	if err != nil {
		h.logger.Error("load settings failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

type updateSettingsForm struct {
	CopilotEnabled                 bool                         `json:"copilotEnabled"`
	AllowedModes                   []governance.RunMode         `json:"allowedModes" validate:"required,min=1"`
	AllowContentScanning           bool                         `json:"allowContentScanning"`
	AllowOCR                       bool                         `json:"allowOcr"`
	AllowLLMAnalysis               bool                         `json:"allowLlmAnalysis"`
	MaxRunsPerDayTenant            int                          `json:"maxRunsPerDayTenant" validate:"required,min=1,max=10000"`
	MaxRunsPerDayUser              int                          `json:"maxRunsPerDayUser" validate:"required,min=1,max=1000"`
	MaxConcurrentRuns              int                          `json:"maxConcurrentRuns" validate:"required,min=1,max=100"`
	MaxEvidenceItemsPerRun         int                          `json:"maxEvidenceItemsPerRun" validate:"min=0"`
	MaxBytesScannedPerRun          int64                        `json:"maxBytesScannedPerRun" validate:"min=0"`
	RetentionDays                  int                          `json:"retentionDays" validate:"min=0,max=3650"`
	RequireTwoPersonExportApproval bool                         `json:"requireTwoPersonExportApproval"`
	RequireJustification           bool                         `json:"requireJustification"`
	RequireConfirmation            bool                         `json:"requireConfirmation"`
	Anomaly                        governance.AnomalyThresholds `json:"anomaly"`
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.TenantID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var form updateSettingsForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	settings := governance.Settings{
		TenantID:                       actor.TenantID,
		CopilotEnabled:                 form.CopilotEnabled,
		AllowedModes:                   form.AllowedModes,
		AllowContentScanning:           form.AllowContentScanning,
		AllowOCR:                       form.AllowOCR,
		AllowLLMAnalysis:               form.AllowLLMAnalysis,
		MaxRunsPerDayTenant:            form.MaxRunsPerDayTenant,
		MaxRunsPerDayUser:              form.MaxRunsPerDayUser,
		MaxConcurrentRuns:              form.MaxConcurrentRuns,
		MaxEvidenceItemsPerRun:         form.MaxEvidenceItemsPerRun,
		MaxBytesScannedPerRun:          form.MaxBytesScannedPerRun,
		RetentionDays:                  form.RetentionDays,
		RequireTwoPersonExportApproval: form.RequireTwoPersonExportApproval,
		RequireJustification:           form.RequireJustification,
		RequireConfirmation:            form.RequireConfirmation,
		Anomaly:                        form.Anomaly,
	}
	decision, err := h.settings.Update(r.Context(), actor.Role, settings)
	if err != nil {
		h.logger.Error("update settings failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !decision.Allowed {
		httpx.JSON(w, http.StatusForbidden, decision)
		return
	}
	h.recordSettingsEvent(r, actor, audit.EventSettingsChanged)
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.TenantID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	decision, err := h.settings.Reset(r.Context(), actor.Role, actor.TenantID)
	if err != nil {
		h.logger.Error("reset settings failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !decision.Allowed {
		httpx.JSON(w, http.StatusForbidden, decision)
		return
	}
	h.recordSettingsEvent(r, actor, audit.EventSettingsReset)
	httpx.JSON(w, http.StatusOK, governance.DefaultSettings(actor.TenantID))
}

func (h *Handler) recordSettingsEvent(r *http.Request, actor shared.Actor, kind string) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Record(r.Context(), audit.Event{
		TenantID: actor.TenantID,
		ActorID:  actor.UserID,
		Kind:     kind,
		Entity:   "governance_settings",
		EntityID: actor.TenantID,
	}); err != nil {
		h.logger.Warn("audit settings change", slog.Any("error", err))
	}
}
