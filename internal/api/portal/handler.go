// Package portal implements the tenant-facing surface behind the full
// gating pipeline. The business application proper lives elsewhere; this
// handler exposes the request's gate context so tenant frontends can
// bootstrap themselves.
package portal

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plexary/tenantgate/internal/api"
	"github.com/plexary/tenantgate/internal/api/middleware"
	"github.com/plexary/tenantgate/internal/auth"
)

// Handler handles portal API requests.
type Handler struct{}

// NewHandler creates a portal handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes registers portal routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/me", h.Me)
	r.Get("/", h.Root)
}

// Me returns the caller's gate context: the resolved tenant and the
// authenticated identity, as the pipeline established them.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	resolution := middleware.ResolutionFrom(r.Context())
	user := auth.UserFrom(r.Context())

	resp := map[string]interface{}{
		"authenticated": user != nil,
	}
	if user != nil {
		resp["user"] = user
	}
	if resolution != nil {
		resp["tenantId"] = resolution.TenantID
		resp["resolutionMethod"] = resolution.Method
		if resolution.Tenant != nil {
			resp["tenant"] = map[string]interface{}{
				"id":     resolution.Tenant.ID,
				"name":   resolution.Tenant.Name,
				"domain": resolution.Tenant.Domain,
				"status": resolution.Tenant.Status,
			}
		}
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// Root answers tenant health probes with a minimal landing document.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	resolution := middleware.ResolutionFrom(r.Context())

	resp := map[string]interface{}{"service": "tenantgate"}
	if resolution != nil && resolution.Tenant != nil {
		resp["tenant"] = resolution.Tenant.Name
	}

	api.WriteJSON(w, http.StatusOK, resp)
}
