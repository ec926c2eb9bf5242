// Package admin implements the back-office HTTP API: resolution and
// validation diagnostics, rate-limit rule management, and thin tenant and
// user record management.
package admin

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/plexary/tenantgate/internal/api"
	"github.com/plexary/tenantgate/internal/api/middleware"
	"github.com/plexary/tenantgate/internal/apperror"
	"github.com/plexary/tenantgate/internal/auth"
	"github.com/plexary/tenantgate/internal/config"
	"github.com/plexary/tenantgate/internal/ratelimit"
	"github.com/plexary/tenantgate/internal/resolver"
	"github.com/plexary/tenantgate/internal/security"
	"github.com/plexary/tenantgate/internal/store"
	"github.com/plexary/tenantgate/internal/validator"
)

// Handler handles admin API requests.
type Handler struct {
	cfg       *config.Config
	resolver  *resolver.Resolver
	validator *validator.Validator
	limiter   *ratelimit.Engine
	screen    *security.Screen
	store     store.Store
	gate      *middleware.Gate
}

// NewHandler creates an admin API handler.
func NewHandler(cfg *config.Config, res *resolver.Resolver, val *validator.Validator, limiter *ratelimit.Engine, screen *security.Screen, s store.Store, gate *middleware.Gate) *Handler {
	return &Handler{
		cfg:       cfg,
		resolver:  res,
		validator: val,
		limiter:   limiter,
		screen:    screen,
		store:     s,
		gate:      gate,
	}
}

// RegisterRoutes registers admin API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	// Format-only checks are not gated: signup flows call them before any
	// session exists.
	r.Post("/tenant-resolution/validate-domain", h.ValidateDomain)
	r.Post("/tenant-resolution/generate-subdomain", h.GenerateSubdomain)

	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireSuperAdmin)

		// Resolution
		r.Get("/tenant-resolution/stats", h.ResolutionStats)
		r.Get("/tenant-resolution/config", h.ResolutionConfig)
		r.Get("/tenant-resolution/health", h.ResolutionHealth)
		r.Delete("/tenant-resolution/cache", h.ClearResolutionCache)
		r.Post("/tenant-resolution/check-domain", h.CheckDomain)
		r.Post("/tenant-resolution/test", h.TestResolution)

		// Validation
		r.Get("/tenant-validation/config", h.ValidationConfig)
		r.Put("/tenant-validation/config", h.UpdateValidationConfig)
		r.Get("/tenant-validation/health", h.ValidationHealth)
		r.Delete("/tenant-validation/cache", h.ClearValidationCache)
		r.Post("/tenant-validation/validate", h.ValidateAccess)
		r.Post("/tenant-validation/limits", h.TenantLimits)

		// Rate limiting
		r.Get("/rate-limit/rules", h.ListRules)
		r.Post("/rate-limit/rules", h.CreateRule)
		r.Get("/rate-limit/rules/{id}", h.GetRule)
		r.Put("/rate-limit/rules/{id}", h.UpdateRule)
		r.Delete("/rate-limit/rules/{id}", h.DeleteRule)
		r.Get("/rate-limit/stats", h.RateLimitStats)
		r.Get("/rate-limit/violations", h.RateLimitViolations)
		r.Delete("/rate-limit/violations", h.ClearRateLimitViolations)
		r.Get("/rate-limit/keys/{key}", h.KeyStatus)
		r.Delete("/rate-limit/keys/{key}", h.UnblockKey)

		// Security screen
		r.Get("/security/violations", h.SecurityViolations)
		r.Delete("/security/violations", h.ClearSecurityViolations)
		r.Delete("/security/blocks/{ip}", h.UnblockIP)

		// Tenant records
		r.Get("/tenants", h.ListTenants)
		r.Post("/tenants", h.CreateTenant)
		r.Get("/tenants/{id}", h.GetTenant)
		r.Put("/tenants/{id}", h.UpdateTenant)
		r.Delete("/tenants/{id}", h.DeleteTenant)

		// User records
		r.Get("/users", h.ListUsers)
		r.Post("/users", h.CreateUser)
		r.Get("/users/{id}", h.GetUser)
		r.Put("/users/{id}", h.UpdateUser)
	})
}

// --- Tenant resolution ---

// domainPattern is a conservative hostname check: lowercase labels of
// letters, digits, and inner hyphens, at least two labels.
var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

// subdomainPattern matches a single valid label.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateDomain checks domain name format only; it never touches records.
func (h *Handler) ValidateDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := api.Decode(r, &req); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	valid := domainPattern.MatchString(domain)

	resp := map[string]interface{}{"domain": domain, "valid": valid}
	if !valid {
		resp["reason"] = "domain must be a fully qualified lowercase hostname"
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// GenerateSubdomain derives an available subdomain slug from a display
// name.
func (h *Handler) GenerateSubdomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := api.Decode(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		api.WriteErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}

	base := slugify(req.Name)
	if base == "" || !subdomainPattern.MatchString(base) {
		api.WriteErrorMessage(w, http.StatusBadRequest, "name yields no usable subdomain")
		return
	}

	candidate := base
	for i := 2; i <= 20; i++ {
		if _, err := h.store.TenantByName(r.Context(), candidate); err == store.ErrNotFound {
			api.WriteJSON(w, http.StatusOK, map[string]string{
				"subdomain": candidate,
				"domain":    candidate + "." + h.cfg.Domain.MainDomain,
			})
			return
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}

	api.WriteErrorMessage(w, http.StatusConflict, "no available subdomain variant found")
}

func slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastHyphen := true
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			b.WriteRune(c)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// CheckDomain reports whether a domain is already claimed by a tenant.
func (h *Handler) CheckDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := api.Decode(r, &req); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	domain := strings.ToLower(strings.TrimSpace(req.Domain))
	resp := map[string]interface{}{"domain": domain, "available": true}

	if t, err := h.store.TenantByDomain(r.Context(), domain); err == nil {
		resp["available"] = false
		resp["tenantId"] = t.ID
	} else if t, err := h.store.TenantByCustomDomain(r.Context(), domain); err == nil {
		resp["available"] = false
		resp["tenantId"] = t.ID
	}

	api.WriteJSON(w, http.StatusOK, resp)
}

// TestResolution resolves an arbitrary host as if it had arrived as a
// request, without the admin call's own host interfering.
func (h *Handler) TestResolution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
	}
	if err := api.Decode(r, &req); err != nil || req.Host == "" {
		api.WriteErrorMessage(w, http.StatusBadRequest, "host is required")
		return
	}

	probe, err := http.NewRequestWithContext(r.Context(), http.MethodGet, "http://"+req.Host+"/", nil)
	if err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid host")
		return
	}
	probe.Host = req.Host

	result, err := h.resolver.Resolve(r.Context(), probe)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, result)
}

// ResolutionStats reports resolver counters and cache state.
func (h *Handler) ResolutionStats(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"resolution": h.resolver.Stats(),
		"cache":      h.resolver.CacheStats(),
	})
}

// ResolutionConfig reports the active domain layout.
func (h *Handler) ResolutionConfig(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.cfg.Domain)
}

// ResolutionHealth is a cheap aliveness view of the resolution pipeline.
func (h *Handler) ResolutionHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.resolver.Stats()
	api.WriteRaw(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"resolutions": stats.Total,
		"cache":       h.resolver.CacheStats(),
	})
}

// ClearResolutionCache drops all cached resolutions.
func (h *Handler) ClearResolutionCache(w http.ResponseWriter, r *http.Request) {
	cleared := h.resolver.ClearCache()
	log.Info().Int("cleared", cleared).Msg("resolution cache cleared via admin api")
	api.WriteJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// --- Tenant validation ---

// ValidationConfig reports the active validator settings.
func (h *Handler) ValidationConfig(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.validator.CurrentSettings())
}

// UpdateValidationConfig swaps the validator settings atomically.
func (h *Handler) UpdateValidationConfig(w http.ResponseWriter, r *http.Request) {
	var settings validator.Settings
	if err := api.Decode(r, &settings); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.validator.Configure(settings)
	api.WriteJSON(w, http.StatusOK, settings)
}

// ValidationHealth is a cheap aliveness view of the validator.
func (h *Handler) ValidationHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.validator.Stats()
	api.WriteRaw(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"validations": stats.Total,
		"cache":       h.validator.CacheStats(),
	})
}

// ClearValidationCache drops all cached verdicts.
func (h *Handler) ClearValidationCache(w http.ResponseWriter, r *http.Request) {
	cleared := h.validator.ClearCache()
	log.Info().Int("cleared", cleared).Msg("validation cache cleared via admin api")
	api.WriteJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// ValidateAccess runs a validation for the given identifiers and returns
// the full verdict, warnings included.
func (h *Handler) ValidateAccess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenantId"`
		UserID   string `json:"userId"`
		Host     string `json:"host"`
		Method   string `json:"method"`
		Path     string `json:"path"`
	}
	if err := api.Decode(r, &req); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	vreq := validator.Request{
		TenantID: req.TenantID,
		Host:     req.Host,
		Method:   req.Method,
		Path:     req.Path,
	}
	if req.UserID != "" {
		vreq.User = &auth.UserContext{UserID: req.UserID}
	}

	api.WriteJSON(w, http.StatusOK, h.validator.Validate(r.Context(), vreq))
}

// TenantLimits reports a tenant's plan limits against current usage.
func (h *Handler) TenantLimits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenantId"`
	}
	if err := api.Decode(r, &req); err != nil || req.TenantID == "" {
		api.WriteErrorMessage(w, http.StatusBadRequest, "tenantId is required")
		return
	}

	tenant, err := h.store.GetTenant(r.Context(), req.TenantID)
	if err != nil {
		if err == store.ErrNotFound {
			api.WriteError(w, apperror.ErrTenantNotFound)
			return
		}
		api.WriteError(w, err)
		return
	}

	within := tenant.Subscription.MaxUsers <= 0 || tenant.UserCount <= tenant.Subscription.MaxUsers
	api.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tenantId":     tenant.ID,
		"maxUsers":     tenant.Subscription.MaxUsers,
		"userCount":    tenant.UserCount,
		"withinLimits": within,
	})
}

// --- Rate limiting ---

// ListRules returns all rules, highest priority first.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.limiter.ListRules())
}

// CreateRule installs a new rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule store.Rule
	if err := api.Decode(r, &rule); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if rule.Name == "" {
		api.WriteErrorMessage(w, http.StatusBadRequest, "name is required")
		return
	}
	rule.ID = ""

	created, err := h.limiter.AddRule(r.Context(), &rule)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, created)
}

// GetRule returns one rule.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.limiter.GetRule(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, rule)
}

// UpdateRule replaces an existing rule.
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule store.Rule
	if err := api.Decode(r, &rule); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rule.ID = chi.URLParam(r, "id")

	updated, err := h.limiter.UpdateRule(r.Context(), &rule)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, updated)
}

// DeleteRule removes a rule.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.limiter.DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// RateLimitStats aggregates recent violations. The timeframe query
// parameter accepts Go duration syntax and defaults to 24h.
func (h *Handler) RateLimitStats(w http.ResponseWriter, r *http.Request) {
	timeframe := 24 * time.Hour
	if raw := r.URL.Query().Get("timeframe"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			api.WriteErrorMessage(w, http.StatusBadRequest, "timeframe must be a positive duration")
			return
		}
		timeframe = parsed
	}

	api.WriteJSON(w, http.StatusOK, h.limiter.Stats(timeframe))
}

// RateLimitViolations lists retained rate-limit violations, oldest first.
func (h *Handler) RateLimitViolations(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.limiter.Violations())
}

// ClearRateLimitViolations drops retained rate-limit violations.
func (h *Handler) ClearRateLimitViolations(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]int{"cleared": h.limiter.ClearViolations()})
}

// KeyStatus reports whether a composite key is hard blocked.
func (h *Handler) KeyStatus(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	blocked, until := h.limiter.BlockStatus(key)

	resp := map[string]interface{}{"key": key, "blocked": blocked}
	if blocked {
		resp["until"] = until
	}
	api.WriteJSON(w, http.StatusOK, resp)
}

// UnblockKey lifts a hard block on a composite key.
func (h *Handler) UnblockKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	h.limiter.Unblock(key)
	log.Info().Str("key", key).Msg("rate limit block lifted via admin api")
	api.WriteJSON(w, http.StatusOK, map[string]bool{"unblocked": true})
}

// --- Security screen ---

// SecurityViolations lists retained security violations, oldest first.
func (h *Handler) SecurityViolations(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.screen.Violations())
}

// ClearSecurityViolations drops retained security violations.
func (h *Handler) ClearSecurityViolations(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]int{"cleared": h.screen.ClearViolations()})
}

// UnblockIP lifts a brute-force block.
func (h *Handler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	h.screen.Unblock(ip)
	log.Info().Str("ip", ip).Msg("brute force block lifted via admin api")
	api.WriteJSON(w, http.StatusOK, map[string]bool{"unblocked": true})
}

// --- Tenant records ---

// ListTenants returns all tenant records.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.store.ListTenants(r.Context())
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, tenants)
}

// CreateTenant saves a new tenant record.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var tenant store.Tenant
	if err := api.Decode(r, &tenant); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if tenant.Name == "" || tenant.Domain == "" {
		api.WriteErrorMessage(w, http.StatusBadRequest, "name and domain are required")
		return
	}

	tenant.ID = uuid.New().String()
	if tenant.Status == "" {
		tenant.Status = store.TenantStatusTrial
	}
	now := time.Now()
	tenant.CreatedAt = now
	tenant.UpdatedAt = now

	if err := h.store.SaveTenant(r.Context(), &tenant); err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, tenant)
}

// GetTenant returns one tenant record.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.store.GetTenant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if err == store.ErrNotFound {
			api.WriteError(w, apperror.ErrTenantNotFound)
			return
		}
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, tenant)
}

// UpdateTenant replaces a tenant record and invalidates its cached
// resolutions.
func (h *Handler) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			api.WriteError(w, apperror.ErrTenantNotFound)
			return
		}
		api.WriteError(w, err)
		return
	}

	var tenant store.Tenant
	if err := api.Decode(r, &tenant); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tenant.ID = id
	tenant.CreatedAt = existing.CreatedAt
	tenant.UpdatedAt = time.Now()

	if err := h.store.SaveTenant(r.Context(), &tenant); err != nil {
		api.WriteError(w, err)
		return
	}

	h.invalidateTenantHosts(existing)
	h.invalidateTenantHosts(&tenant)
	api.WriteJSON(w, http.StatusOK, tenant)
}

// DeleteTenant marks a tenant deleted so it stops resolving, keeping the
// record for audit.
func (h *Handler) DeleteTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tenant, err := h.store.GetTenant(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			api.WriteError(w, apperror.ErrTenantNotFound)
			return
		}
		api.WriteError(w, err)
		return
	}

	tenant.Status = store.TenantStatusDeleted
	tenant.UpdatedAt = time.Now()
	if err := h.store.SaveTenant(r.Context(), tenant); err != nil {
		api.WriteError(w, err)
		return
	}

	h.invalidateTenantHosts(tenant)
	api.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (h *Handler) invalidateTenantHosts(t *store.Tenant) {
	if t.Domain != "" {
		h.resolver.InvalidateHost(t.Domain)
	}
	for _, d := range t.CustomDomains {
		h.resolver.InvalidateHost(d)
	}
}

// --- User records ---

// ListUsers returns user records, optionally filtered by tenantId.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context(), r.URL.Query().Get("tenantId"))
	if err != nil {
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, users)
}

// CreateUser saves a new user record.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user store.User
	if err := api.Decode(r, &user); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if user.Email == "" || user.TenantID == "" {
		api.WriteErrorMessage(w, http.StatusBadRequest, "email and tenantId are required")
		return
	}

	user.ID = uuid.New().String()
	user.CreatedAt = time.Now()

	if err := h.store.SaveUser(r.Context(), &user); err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, user)
}

// GetUser returns one user record.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if err == store.ErrNotFound {
			api.WriteErrorMessage(w, http.StatusNotFound, "user not found")
			return
		}
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, user)
}

// UpdateUser replaces a user record.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			api.WriteErrorMessage(w, http.StatusNotFound, "user not found")
			return
		}
		api.WriteError(w, err)
		return
	}

	var user store.User
	if err := api.Decode(r, &user); err != nil {
		api.WriteErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user.ID = id
	user.CreatedAt = existing.CreatedAt

	if err := h.store.SaveUser(r.Context(), &user); err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, user)
}
