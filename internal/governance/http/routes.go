package govhttp

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the governance endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/governance/scopes/{role}", h.handleScope)
	r.Get("/governance/settings", h.handleGetSettings)
	r.Put("/governance/settings", h.handleUpdateSettings)
	r.Post("/governance/settings/reset", h.handleResetSettings)
}
