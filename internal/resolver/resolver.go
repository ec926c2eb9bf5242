// Package resolver maps incoming request hosts to tenants.
//
// Resolution order for a parsed host: super-admin allow-list, API
// allow-list, then store lookups by exact domain, tenant name or
// subdomain field, and finally custom domain. Outcomes are cached with
// a TTL so steady-state traffic resolves without touching the store.
package resolver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plexary/tenantgate/internal/apperror"
	"github.com/plexary/tenantgate/internal/cache"
	"github.com/plexary/tenantgate/internal/domainparse"
	"github.com/plexary/tenantgate/internal/metrics"
	"github.com/plexary/tenantgate/internal/store"
)

// Resolution methods.
const (
	MethodSubdomain    = "subdomain"
	MethodCustomDomain = "custom_domain"
	MethodSuperAdmin   = "super_admin"
	MethodAPI          = "api"
	MethodNone         = "none"
)

// Result is the outcome of resolving one request host.
type Result struct {
	// Tenant is nil for super-admin, API, and unresolved hosts.
	Tenant   *store.Tenant `json:"tenant,omitempty"`
	TenantID string        `json:"tenantId,omitempty"`

	IsSuperAdmin bool `json:"isSuperAdmin"`
	IsAPIDomain  bool `json:"isApiDomain"`

	Domain   domainparse.Descriptor `json:"domain"`
	Method   string                 `json:"method"`
	CacheHit bool                   `json:"cacheHit"`

	Duration time.Duration `json:"-"`
}

// Found reports whether the host resolved to a tenant.
func (r *Result) Found() bool {
	return r.Tenant != nil
}

// Config holds resolver settings.
type Config struct {
	MainDomain           string
	SuperAdminSubdomains []string
	SuperAdminDomains    []string
	APISubdomains        []string
	APIDomains           []string
	TenantDomainPrefix   string

	CacheTTL         time.Duration
	CacheMaxSize     int
	LookupTimeout    time.Duration
	RecentBufferSize int
}

// Resolver resolves request hosts to tenants.
type Resolver struct {
	config Config
	parser *domainparse.Parser
	lookup store.TenantLookup
	cache  *cache.Cache[Result]
	stats  *statsCollector
}

// New creates a resolver backed by the given tenant lookup.
func New(config Config, lookup store.TenantLookup) *Resolver {
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = 2 * time.Second
	}
	if config.RecentBufferSize <= 0 {
		config.RecentBufferSize = 100
	}

	return &Resolver{
		config: config,
		parser: domainparse.NewParser(config.MainDomain, config.TenantDomainPrefix),
		lookup: lookup,
		cache:  cache.New[Result](config.CacheMaxSize, config.CacheTTL),
		stats:  newStatsCollector(config.RecentBufferSize),
	}
}

// Resolve determines the tenant for an incoming request.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Result, error) {
	start := time.Now()

	host := requestHost(req)
	if host == "" {
		return nil, apperror.New(apperror.ErrMissingHost, "request carries no host header")
	}

	desc := r.parser.Parse(host, requestProtocol(req))
	if desc.Host == "" {
		return nil, apperror.New(apperror.ErrMissingHost, "request carries no host header")
	}

	result := r.resolveDescriptor(ctx, desc)
	result.Duration = time.Since(start)

	r.stats.record(result)
	metrics.RecordResolution(result.Method, result.Found(), result.CacheHit, result.Duration)
	metrics.ResolutionCacheEntries.Set(float64(r.cache.Len()))

	log.Debug().
		Str("host", desc.Host).
		Str("method", result.Method).
		Str("tenant_id", result.TenantID).
		Bool("cache_hit", result.CacheHit).
		Dur("duration", result.Duration).
		Msg("resolved request host")

	return result, nil
}

func (r *Resolver) resolveDescriptor(ctx context.Context, desc domainparse.Descriptor) *Result {
	if r.isSuperAdmin(desc) {
		return &Result{IsSuperAdmin: true, Domain: desc, Method: MethodSuperAdmin}
	}
	if r.isAPI(desc) {
		return &Result{IsAPIDomain: true, Domain: desc, Method: MethodAPI}
	}

	// The host fully determines the domain:subdomain pair, so it serves
	// as the cache key on its own.
	cacheKey := desc.Host
	if cached, ok := r.cache.Get(cacheKey); ok {
		out := cached
		out.CacheHit = true
		out.Domain = desc
		return &out
	}

	result := r.lookupTenant(ctx, desc)
	// Misses are not cached: a tenant onboarded a moment later must
	// resolve immediately, and unknown-host floods must not evict
	// legitimate entries.
	if result.Tenant != nil {
		r.cache.Set(cacheKey, *result)
	}
	return result
}

// lookupTenant runs the store lookup chain. Store errors are treated as
// not-found so a degraded store cannot take request routing down with it.
func (r *Resolver) lookupTenant(ctx context.Context, desc domainparse.Descriptor) *Result {
	ctx, cancel := context.WithTimeout(ctx, r.config.LookupTimeout)
	defer cancel()

	if tenant := r.tryLookup(ctx, desc.Host, r.lookup.TenantByDomain); tenant != nil {
		method := MethodCustomDomain
		if desc.IsSubdomain {
			method = MethodSubdomain
		}
		return tenantResult(tenant, desc, method)
	}

	if desc.IsSubdomain && desc.TenantCandidate != "" {
		if tenant := r.tryLookup(ctx, desc.TenantCandidate, r.lookup.TenantByName); tenant != nil {
			return tenantResult(tenant, desc, MethodSubdomain)
		}
	}

	if desc.IsCustomDomain {
		if tenant := r.tryLookup(ctx, desc.Host, r.lookup.TenantByCustomDomain); tenant != nil {
			return tenantResult(tenant, desc, MethodCustomDomain)
		}
		if desc.TenantCandidate != "" {
			if tenant := r.tryLookup(ctx, desc.TenantCandidate, r.lookup.TenantByName); tenant != nil {
				return tenantResult(tenant, desc, MethodCustomDomain)
			}
		}
	}

	return &Result{Domain: desc, Method: MethodNone}
}

func (r *Resolver) tryLookup(ctx context.Context, key string, fn func(context.Context, string) (*store.Tenant, error)) *store.Tenant {
	tenant, err := fn(ctx, key)
	if err != nil {
		if err != store.ErrNotFound {
			log.Warn().Err(err).Str("key", key).Msg("tenant lookup failed, treating as not found")
		}
		return nil
	}

	switch tenant.Status {
	case store.TenantStatusActive, store.TenantStatusTrial:
		return tenant
	default:
		return nil
	}
}

func tenantResult(tenant *store.Tenant, desc domainparse.Descriptor, method string) *Result {
	return &Result{
		Tenant:   tenant,
		TenantID: tenant.ID,
		Domain:   desc,
		Method:   method,
	}
}

func (r *Resolver) isSuperAdmin(desc domainparse.Descriptor) bool {
	for _, d := range r.config.SuperAdminDomains {
		if strings.EqualFold(d, desc.Host) {
			return true
		}
	}
	if !desc.IsSubdomain {
		return false
	}
	for _, s := range r.config.SuperAdminSubdomains {
		if strings.EqualFold(s, desc.Subdomain) {
			return true
		}
	}
	return false
}

func (r *Resolver) isAPI(desc domainparse.Descriptor) bool {
	for _, d := range r.config.APIDomains {
		if strings.EqualFold(d, desc.Host) {
			return true
		}
	}
	if !desc.IsSubdomain {
		return false
	}
	for _, s := range r.config.APISubdomains {
		if strings.EqualFold(s, desc.Subdomain) {
			return true
		}
	}
	return false
}

// ParseHost classifies a hostname without resolving or caching it.
func (r *Resolver) ParseHost(host string) domainparse.Descriptor {
	return r.parser.Parse(host, "")
}

// InvalidateHost drops a single host from the resolution cache.
func (r *Resolver) InvalidateHost(host string) {
	r.cache.Delete(strings.ToLower(host))
}

// ClearCache drops all cached resolutions and returns how many were removed.
func (r *Resolver) ClearCache() int {
	cleared := r.cache.Clear()
	metrics.ResolutionCacheEntries.Set(0)
	return cleared
}

// CleanupExpired removes expired cache entries and returns the count.
func (r *Resolver) CleanupExpired() int {
	return r.cache.CleanupExpired()
}

// CacheStats reports the resolution cache state.
func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.GetStats()
}

// Stats reports aggregate resolution statistics.
func (r *Resolver) Stats() Stats {
	return r.stats.snapshot()
}

// ResetStats zeroes the aggregate resolution statistics.
func (r *Resolver) ResetStats() {
	r.stats.reset()
}

// requestHost extracts the effective host, preferring forwarded headers
// set by the edge proxy over the direct connection host.
func requestHost(req *http.Request) string {
	if h := req.Header.Get("X-Forwarded-Host"); h != "" {
		// May be a comma-separated chain; the first entry is the client-facing host.
		if i := strings.IndexByte(h, ','); i >= 0 {
			h = h[:i]
		}
		return strings.TrimSpace(h)
	}
	return req.Host
}

// requestProtocol reflects the client-facing scheme for diagnostics.
func requestProtocol(req *http.Request) string {
	if p := req.Header.Get("X-Forwarded-Proto"); p != "" {
		return p
	}
	if req.TLS != nil {
		return "https"
	}
	return "http"
}
