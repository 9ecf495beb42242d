package runs

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dsarhub/dsarhub/internal/governance"
	"github.com/dsarhub/dsarhub/internal/observability"
	"github.com/dsarhub/dsarhub/internal/platform/httpx"
	"github.com/dsarhub/dsarhub/internal/shared"
)

// Handler exposes the run-initiation API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers the run endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/runs", h.handleStart)
}

type startRunForm struct {
	CaseID        string `json:"caseId" validate:"required"`
	Purpose       string `json:"purpose" validate:"required,max=500"`
	Justification string `json:"justification" validate:"max=2000"`
	ContentScan   bool   `json:"contentScan"`
	OCR           bool   `json:"ocr"`
	LLMAnalysis   bool   `json:"llmAnalysis"`
}

type startRunResponse struct {
	governance.Decision
	RunID string `json:"runId,omitempty"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.TenantID == "" || actor.UserID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	var form startRunForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Start(r.Context(), governance.RunRequest{
		TenantID:      actor.TenantID,
		CaseID:        form.CaseID,
		UserID:        actor.UserID,
		RoleName:      actor.Role,
		Purpose:       form.Purpose,
		Justification: form.Justification,
		ContentScan:   form.ContentScan,
		OCR:           form.OCR,
		LLMAnalysis:   form.LLMAnalysis,
	})
	if err != nil {
		h.logger.Error("start run failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	h.metrics.RecordDecision(result.Decision.Allowed, string(result.Decision.Code))

	resp := startRunResponse{Decision: result.Decision}
	if result.Decision.Allowed {
		resp.RunID = result.RunID.String()
		httpx.JSON(w, http.StatusAccepted, resp)
		return
	}
	httpx.JSON(w, http.StatusForbidden, resp)
}
