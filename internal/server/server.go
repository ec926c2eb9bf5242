// Package server wires the gate's services together and runs the portal
// and admin HTTP servers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/plexary/tenantgate/internal/api/admin"
	apimiddleware "github.com/plexary/tenantgate/internal/api/middleware"
	"github.com/plexary/tenantgate/internal/api/portal"
	"github.com/plexary/tenantgate/internal/auth"
	"github.com/plexary/tenantgate/internal/config"
	"github.com/plexary/tenantgate/internal/health"
	"github.com/plexary/tenantgate/internal/ratelimit"
	"github.com/plexary/tenantgate/internal/resolver"
	"github.com/plexary/tenantgate/internal/security"
	"github.com/plexary/tenantgate/internal/store"
	"github.com/plexary/tenantgate/internal/validator"
)

// Server is the assembled gate: shared services plus the two HTTP
// listeners.
type Server struct {
	cfg     *config.Config
	version string

	store       store.Store
	redisClient *redis.Client

	resolver  *resolver.Resolver
	validator *validator.Validator
	limiter   *ratelimit.Engine
	screen    *security.Screen
	auth      *auth.Service
	checker   *health.Checker
	gate      *apimiddleware.Gate

	portalServer *http.Server
	adminServer  *http.Server
}

// New builds all services from configuration.
func New(cfg *config.Config, version string) (*Server, error) {
	s := &Server{cfg: cfg, version: version}

	badgerStore, err := store.OpenBadger(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	s.store = badgerStore

	counters := ratelimit.NewMemoryCounters()
	if cfg.RateLimit.CounterBackend == "redis" {
		s.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		counters = ratelimit.NewRedisCounters(s.redisClient)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis rate limit counters")
	}

	s.resolver = resolver.New(resolver.Config{
		MainDomain:           cfg.Domain.MainDomain,
		SuperAdminSubdomains: cfg.Domain.SuperAdminSubdomains,
		SuperAdminDomains:    cfg.Domain.SuperAdminDomains,
		APISubdomains:        cfg.Domain.APISubdomains,
		APIDomains:           cfg.Domain.APIDomains,
		TenantDomainPrefix:   cfg.Domain.TenantDomainPrefix,
		CacheTTL:             cfg.Resolution.CacheTTL,
		CacheMaxSize:         cfg.Resolution.CacheMaxSize,
		LookupTimeout:        cfg.Resolution.LookupTimeout,
		RecentBufferSize:     cfg.Resolution.RecentBufferSize,
	}, s.store)

	s.validator = validator.New(validator.Config{
		Settings: validator.Settings{
			StrictMode:               cfg.Validation.StrictMode,
			RequireActiveTenant:      cfg.Validation.RequireActiveTenant,
			ValidateUserTenantAccess: cfg.Validation.ValidateUserTenantAccess,
			AllowSuperAdmin:          cfg.Validation.AllowSuperAdmin,
			LogValidationFailures:    cfg.Validation.LogValidationFailures,
			CacheValidationResults:   cfg.Validation.CacheValidationResults,
		},
		CacheTTL:     cfg.Validation.CacheTTL,
		CacheMaxSize: cfg.Validation.CacheMaxSize,
	}, s.store)

	s.limiter = ratelimit.NewEngine(ratelimit.Config{
		Enabled:             cfg.RateLimit.Enabled,
		DefaultWindow:       cfg.RateLimit.DefaultWindow,
		DefaultMaxRequests:  cfg.RateLimit.DefaultMaxRequests,
		MaxRules:            cfg.RateLimit.MaxRules,
		ViolationBufferSize: cfg.RateLimit.ViolationBufferSize,
		BlockThreshold:      cfg.RateLimit.BlockThreshold,
		BlockPeriod:         cfg.RateLimit.BlockPeriod,
		BlockDuration:       cfg.RateLimit.BlockDuration,
	}, counters, s.store)

	s.screen = security.New(security.Config{
		Enabled:                 cfg.Security.Enabled,
		AuditOnly:               cfg.Security.AuditOnly,
		BruteForceMaxAttempts:   cfg.Security.BruteForceMaxAttempts,
		BruteForceWindow:        cfg.Security.BruteForceWindow,
		BruteForceBlockDuration: cfg.Security.BruteForceBlockDuration,
	})

	s.auth = auth.NewService(auth.Config{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenExpiry: cfg.Auth.TokenExpiry,
	})

	s.gate = &apimiddleware.Gate{
		Resolver:  s.resolver,
		Validator: s.validator,
		Limiter:   s.limiter,
		Screen:    s.screen,
		Auth:      s.auth,
	}

	s.checker = health.NewChecker(version)
	s.checker.Register("store", func(ctx context.Context) error {
		_, err := s.store.ListRules(ctx)
		return err
	})
	if s.redisClient != nil {
		s.checker.RegisterOptional("redis", func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		})
	}

	s.setupPortalServer()
	s.setupAdminServer()

	return s, nil
}

// setupPortalServer builds the tenant-facing listener with the full
// gating pipeline in front of the business handlers.
func (s *Server) setupPortalServer() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.RequestID)
	r.Use(apimiddleware.Metrics("portal"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*." + s.cfg.Domain.MainDomain},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Gating pipeline, in pipeline order.
	r.Use(s.gate.Resolve)
	r.Use(s.gate.Authenticate)
	r.Use(s.gate.Validate)
	r.Use(s.gate.RateLimit)
	r.Use(s.gate.ScreenRequests)

	portal.NewHandler().RegisterRoutes(r)

	s.portalServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.PortalPort),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// setupAdminServer builds the operator listener: health, metrics, and the
// admin API. It sits behind the operator's network boundary and skips the
// tenant pipeline.
func (s *Server) setupAdminServer() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.RequestID)
	r.Use(apimiddleware.Metrics("admin"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.checker.Handler())
	r.Get("/health/live", s.checker.LiveHandler())
	r.Get("/health/ready", s.checker.ReadyHandler())

	handler := admin.NewHandler(s.cfg, s.resolver, s.validator, s.limiter, s.screen, s.store, s.gate)
	r.Route("/api/v1", handler.RegisterRoutes)

	s.adminServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.AdminPort),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// TokenService exposes the auth service for CLI token minting.
func (s *Server) TokenService() *auth.Service {
	return s.auth
}

// Start runs both servers until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	if err := s.limiter.LoadRules(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore rate limit rules, starting with an empty table")
	}

	g, ctx := errgroup.WithContext(ctx)

	// Periodic cache sweep keeps expired entries from lingering between
	// reads.
	g.Go(func() error {
		s.runCacheJanitor(ctx)
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", s.cfg.PortalPort).Msg("starting portal server")
		if err := s.portalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("portal server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", s.cfg.AdminPort).Msg("starting admin server")
		log.Info().Int("port", s.cfg.AdminPort).Msg("prometheus metrics available at /metrics")
		if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("admin server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.portalServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down portal server")
		}
		if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error shutting down admin server")
		}

		if s.redisClient != nil {
			if err := s.redisClient.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis client")
			}
		}
		if err := s.store.Close(); err != nil {
			log.Error().Err(err).Msg("error closing store")
		}

		return nil
	})

	return g.Wait()
}

func (s *Server) runCacheJanitor(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.resolver.CleanupExpired() + s.validator.CleanupExpired() +
				s.limiter.CleanupStale() + s.screen.CleanupStale()
			if removed > 0 {
				log.Debug().Int("removed", removed).Msg("cache janitor removed expired entries")
			}
		}
	}
}
