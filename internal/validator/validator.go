// Package validator decides whether an authenticated caller may act on a
// resolved tenant. Checks run in a fixed short-circuit order and any
// internal failure denies the request.
package validator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plexary/tenantgate/internal/apperror"
	"github.com/plexary/tenantgate/internal/auth"
	"github.com/plexary/tenantgate/internal/cache"
	"github.com/plexary/tenantgate/internal/metrics"
	"github.com/plexary/tenantgate/internal/store"
)

// Settings control which checks run and how strictly. They are swapped
// atomically by Configure so in-flight validations see a consistent set.
type Settings struct {
	StrictMode               bool `json:"strictMode"`
	RequireActiveTenant      bool `json:"requireActiveTenant"`
	ValidateUserTenantAccess bool `json:"validateUserTenantAccess"`
	AllowSuperAdmin          bool `json:"allowSuperAdmin"`
	LogValidationFailures    bool `json:"logValidationFailures"`
	CacheValidationResults   bool `json:"cacheValidationResults"`
}

// Request is one validation input.
type Request struct {
	TenantID string
	User     *auth.UserContext

	// Host, Method, and Path feed the domain-consistency check and the
	// cache key.
	Host   string
	Method string
	Path   string
}

// Result is the validation verdict with its supporting metadata.
type Result struct {
	Valid bool `json:"valid"`

	// Code and Reason are set on denial.
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	// Warnings carry degraded conditions that did not deny in lenient mode.
	Warnings []string `json:"warnings,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Metadata accompanies every verdict, allowed or denied.
type Metadata struct {
	TenantStatus string        `json:"tenantStatus,omitempty"`
	UserRole     string        `json:"userRole,omitempty"`
	Duration     time.Duration `json:"duration"`
	CacheHit     bool          `json:"cacheHit"`
}

// Validator validates caller access to tenants.
type Validator struct {
	store store.Store
	cache *cache.Cache[Result]

	mu       sync.RWMutex
	settings Settings

	stats *statsCollector
}

// Config holds validator construction parameters.
type Config struct {
	Settings     Settings
	CacheTTL     time.Duration
	CacheMaxSize int
}

// New creates a validator backed by the given store.
func New(config Config, s store.Store) *Validator {
	return &Validator{
		store:    s,
		cache:    cache.New[Result](config.CacheMaxSize, config.CacheTTL),
		settings: config.Settings,
		stats:    newStatsCollector(),
	}
}

// Configure atomically replaces the validator settings.
func (v *Validator) Configure(s Settings) {
	v.mu.Lock()
	v.settings = s
	v.mu.Unlock()

	log.Info().
		Bool("strict_mode", s.StrictMode).
		Bool("require_active_tenant", s.RequireActiveTenant).
		Bool("validate_user_tenant_access", s.ValidateUserTenantAccess).
		Msg("validation settings updated")
}

// CurrentSettings returns the active settings.
func (v *Validator) CurrentSettings() Settings {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.settings
}

// Validate runs the check chain for one request. It never returns an error:
// internal failures surface as a denied Result with a system-error code.
func (v *Validator) Validate(ctx context.Context, req Request) Result {
	start := time.Now()
	settings := v.CurrentSettings()

	cacheKey := ""
	if settings.CacheValidationResults {
		cacheKey = validationCacheKey(req)
		if cached, ok := v.cache.Get(cacheKey); ok {
			cached.Metadata.CacheHit = true
			cached.Metadata.Duration = time.Since(start)
			v.finish(settings, req, cached)
			return cached
		}
	}

	result := v.validate(ctx, settings, req)
	result.Metadata.Duration = time.Since(start)

	if cacheKey != "" {
		v.cache.Set(cacheKey, result)
	}

	v.finish(settings, req, result)
	return result
}

func (v *Validator) validate(ctx context.Context, settings Settings, req Request) Result {
	var result Result

	// Super admins bypass tenant checks entirely, with a trace of the
	// bypass left in the verdict.
	if req.User.IsSuperAdmin() {
		if settings.AllowSuperAdmin {
			result.Valid = true
			result.Warnings = append(result.Warnings, "super admin bypassed tenant validation")
			result.Metadata.UserRole = req.User.Role
			return result
		}
		return denied(apperror.ErrCrossTenantAccess, "super admin access is disabled")
	}

	if req.TenantID == "" {
		return denied(apperror.ErrTenantNotFound, "tenant id required")
	}

	tenant, err := v.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		if err == store.ErrNotFound {
			return denied(apperror.ErrTenantNotFound, fmt.Sprintf("tenant %s not found", req.TenantID))
		}
		log.Error().Err(err).Str("tenant_id", req.TenantID).Msg("tenant lookup failed during validation")
		return denied(apperror.ErrValidationSystem, "validation system error")
	}

	result.Metadata.TenantStatus = string(tenant.Status)

	if settings.RequireActiveTenant {
		switch tenant.Status {
		case store.TenantStatusActive, store.TenantStatusTrial:
		default:
			d := denied(apperror.ErrTenantInactive, fmt.Sprintf("tenant is %s", tenant.Status))
			d.Metadata.TenantStatus = string(tenant.Status)
			return d
		}
	}

	// A stale trial flag on a paying tenant is not a denial: only an
	// expired trial without an active subscription gates access.
	if tenant.TrialExpired && tenant.Subscription.Status != "active" {
		if settings.StrictMode {
			d := denied(apperror.ErrTrialExpired, "tenant trial has expired")
			d.Metadata.TenantStatus = string(tenant.Status)
			return d
		}
		result.Warnings = append(result.Warnings, "tenant trial has expired")
	}

	if settings.ValidateUserTenantAccess && req.User != nil {
		userResult, ok := v.validateUser(ctx, settings, req, tenant, &result)
		if !ok {
			return userResult
		}
	}

	// Domain consistency is advisory: a mismatch suggests a stale DNS
	// entry or a crafted Host header, but resolution already decided the
	// tenant, so strict mode is required for it to deny.
	if req.Host != "" && !v.hostBelongsToTenant(req.Host, tenant) {
		if settings.StrictMode {
			d := denied(apperror.ErrDomainMismatch, "request host does not belong to tenant")
			d.Metadata.TenantStatus = string(tenant.Status)
			return d
		}
		result.Warnings = append(result.Warnings, "request host does not match tenant domains")
	}

	if tenant.Subscription.MaxUsers > 0 && tenant.UserCount > tenant.Subscription.MaxUsers {
		result.Warnings = append(result.Warnings, "tenant exceeds subscribed user limit")
	}

	result.Valid = true
	return result
}

// validateUser runs the user-scoped checks. ok is false when the returned
// result is a final denial.
func (v *Validator) validateUser(ctx context.Context, settings Settings, req Request, tenant *store.Tenant, result *Result) (Result, bool) {
	user, err := v.store.GetUser(ctx, req.User.UserID)
	if err != nil {
		if err == store.ErrNotFound {
			return denied(apperror.ErrCrossTenantAccess, "user not found"), false
		}
		log.Error().Err(err).Str("user_id", req.User.UserID).Msg("user lookup failed during validation")
		return denied(apperror.ErrValidationSystem, "validation system error"), false
	}

	result.Metadata.UserRole = user.Role

	if user.TenantID != tenant.ID {
		d := denied(apperror.ErrCrossTenantAccess, "User does not belong to this tenant")
		d.Metadata.UserRole = user.Role
		d.Metadata.TenantStatus = string(tenant.Status)
		return d, false
	}

	if !user.Active {
		if settings.StrictMode {
			d := denied(apperror.ErrCrossTenantAccess, "user account is deactivated")
			d.Metadata.UserRole = user.Role
			d.Metadata.TenantStatus = string(tenant.Status)
			return d, false
		}
		result.Warnings = append(result.Warnings, "user account is deactivated")
	}

	return Result{}, true
}

func (v *Validator) hostBelongsToTenant(host string, tenant *store.Tenant) bool {
	host = strings.ToLower(host)
	if strings.EqualFold(tenant.Domain, host) {
		return true
	}
	for _, d := range tenant.CustomDomains {
		if strings.EqualFold(d, host) {
			return true
		}
	}
	// Hosts under the tenant's registered domain also pass.
	return tenant.Domain != "" && strings.HasSuffix(host, "."+strings.ToLower(tenant.Domain))
}

func (v *Validator) finish(settings Settings, req Request, result Result) {
	v.stats.record(result)
	metrics.RecordValidation(result.Valid, result.Metadata.CacheHit)

	if !result.Valid && settings.LogValidationFailures {
		log.Warn().
			Str("tenant_id", req.TenantID).
			Str("code", result.Code).
			Str("reason", result.Reason).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("validation denied request")
	}
}

func denied(base *apperror.Error, reason string) Result {
	return Result{
		Valid:  false,
		Code:   base.Code,
		Reason: reason,
	}
}

// validationCacheKey is tenant-user-method-path; host intentionally
// excluded so one tenant's verdict is shared across its domains.
func validationCacheKey(req Request) string {
	userID := ""
	if req.User != nil {
		userID = req.User.UserID
	}
	return fmt.Sprintf("%s-%s-%s-%s", req.TenantID, userID, req.Method, req.Path)
}

// ClearCache drops cached verdicts and returns how many were removed.
func (v *Validator) ClearCache() int {
	return v.cache.Clear()
}

// CleanupExpired removes expired cache entries and returns the count.
func (v *Validator) CleanupExpired() int {
	return v.cache.CleanupExpired()
}

// CacheStats reports validation cache state.
func (v *Validator) CacheStats() cache.Stats {
	return v.cache.GetStats()
}

// Stats reports aggregate validation statistics.
func (v *Validator) Stats() Stats {
	return v.stats.snapshot()
}

// ResetStats zeroes the aggregate validation statistics.
func (v *Validator) ResetStats() {
	v.stats.reset()
}
