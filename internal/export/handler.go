package export

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dsarhub/dsarhub/internal/platform/httpx"
	"github.com/dsarhub/dsarhub/internal/shared"
)

// Handler exposes the export workflow API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers the export endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/exports", h.handleRequest)
	r.Post("/exports/{id}/votes", h.handleVote)
	r.Post("/exports/{id}/finalize", h.handleFinalize)
}

type createExportForm struct {
	CaseID string `json:"caseId" validate:"required"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.TenantID == "" || actor.UserID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var form createExportForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Request(r.Context(), actor.TenantID, form.CaseID, actor.UserID, actor.Role)
	if err != nil {
		h.logger.Error("create export request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !result.Decision.Allowed {
		httpx.JSON(w, http.StatusForbidden, result.Decision)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":     result.Request.ID.String(),
		"status": result.Request.Status,
	})
}

type voteForm struct {
	Approve *bool `json:"approve" validate:"required"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.TenantID == "" || actor.UserID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "export id must be a UUID")
		return
	}
	var form voteForm
	if err := httpx.DecodeJSON(r, &form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return
	}
	if err := h.validator.Struct(form); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	decision, err := h.service.Vote(r.Context(), id, actor.UserID, actor.Role, *form.Approve)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			httpx.RespondError(w, httpx.ErrNotFound)
		case errors.Is(err, ErrDuplicateVote):
			httpx.RespondError(w, httpx.ErrDuplicate)
		default:
			h.logger.Error("record export vote failed", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	if !decision.Allowed {
		httpx.JSON(w, http.StatusForbidden, decision)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.TenantID == "" || actor.UserID == "" {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "export id must be a UUID")
		return
	}

	decision, err := h.service.Finalize(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("finalize export failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !decision.Allowed {
		httpx.JSON(w, http.StatusConflict, decision)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}
