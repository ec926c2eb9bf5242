package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/plexary/tenantgate/internal/api"
	"github.com/plexary/tenantgate/internal/apperror"
	"github.com/plexary/tenantgate/internal/auth"
	"github.com/plexary/tenantgate/internal/ratelimit"
	"github.com/plexary/tenantgate/internal/resolver"
	"github.com/plexary/tenantgate/internal/security"
	"github.com/plexary/tenantgate/internal/validator"
	"github.com/plexary/tenantgate/internal/violation"
)

// Gate bundles the request-gating services into a middleware chain. The
// portal server runs the full chain in order: Resolve, Authenticate,
// Validate, RateLimit, Screen.
type Gate struct {
	Resolver  *resolver.Resolver
	Validator *validator.Validator
	Limiter   *ratelimit.Engine
	Screen    *security.Screen
	Auth      *auth.Service
}

// Resolve maps the request host to a tenant and stores the result in the
// request context.
func (g *Gate) Resolve(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := g.Resolver.Resolve(r.Context(), r)
		if err != nil {
			api.WriteError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), resolutionKey, result)
		ctx = context.WithValue(ctx, clientIPKey, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ResolutionFrom retrieves the resolution result, or nil.
func ResolutionFrom(ctx context.Context) *resolver.Result {
	result, _ := ctx.Value(resolutionKey).(*resolver.Result)
	return result
}

// ClientIPFrom retrieves the client IP captured by Resolve, or "".
func ClientIPFrom(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// Authenticate decodes the bearer token, if any, into the user context.
// Anonymous requests pass through; a present-but-invalid token is rejected.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.Auth.UserFromRequest(r)
		if err != nil {
			ip := ClientIPFrom(r.Context())
			if g.Screen != nil && g.Screen.RecordFailure(ip) {
				api.WriteError(w, apperror.ErrBruteForceBlocked)
				return
			}
			api.WriteErrorMessage(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// Validate enforces tenant state and user-tenant membership.
func (g *Gate) Validate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resolution := ResolutionFrom(r.Context())

		req := validator.Request{
			User:   auth.UserFrom(r.Context()),
			Method: r.Method,
			Path:   r.URL.Path,
		}
		if resolution != nil {
			req.TenantID = resolution.TenantID
			req.Host = resolution.Domain.Host
		}

		result := g.Validator.Validate(r.Context(), req)
		if !result.Valid {
			e := apperror.ByCode(result.Code)
			if result.Reason != "" {
				e = apperror.New(e, result.Reason)
			}
			api.WriteError(w, e)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimit enforces the rule table against the request's composite
// identity and exposes the standard limit headers.
func (g *Gate) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := g.Limiter.Check(r.Context(), ratelimit.Request{
			Identity: identityFrom(r),
			Endpoint: r.URL.Path,
			Method:   r.Method,
		})

		if d.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}

		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(d.RetryAfter.Seconds())+1))
			api.WriteError(w, apperror.ErrRateLimitExceeded)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Screen rejects brute-force-blocked sources and injection payloads.
func (g *Gate) ScreenRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identityFrom(r)

		if g.Screen.IsBlocked(id.IP) {
			api.WriteError(w, apperror.ErrBruteForceBlocked)
			return
		}

		if f := g.Screen.Inspect(r, id); f != nil && f.Blocked {
			api.WriteError(w, apperror.ErrSecurityViolation)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireSuperAdmin gates admin endpoints behind the platform-operator
// role.
func (g *Gate) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.Auth.UserFromRequest(r)
		if err != nil || user == nil {
			api.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !user.IsSuperAdmin() {
			api.WriteErrorMessage(w, http.StatusForbidden, "super admin access required")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

func identityFrom(r *http.Request) violation.Identity {
	id := violation.Identity{IP: ClientIPFrom(r.Context())}
	if id.IP == "" {
		id.IP = clientIP(r)
	}

	if resolution := ResolutionFrom(r.Context()); resolution != nil {
		id.TenantID = resolution.TenantID
	}
	if user := auth.UserFrom(r.Context()); user != nil {
		id.UserID = user.UserID
		id.APIKeyID = user.APIKeyID
		if id.TenantID == "" {
			id.TenantID = user.TenantID
		}
	}

	return id
}

// clientIP extracts the originating address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-Ip"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
