// Package health reports component liveness and readiness for the gate's
// admin surface.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status is an aggregate or per-component health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

// Component is one probe result.
type Component struct {
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// Report is the aggregate health snapshot.
type Report struct {
	Status     Status               `json:"status"`
	Version    string               `json:"version"`
	Uptime     string               `json:"uptime"`
	Components map[string]Component `json:"components,omitempty"`
}

// Checker aggregates registered component probes. Required components make
// the report unhealthy on failure; optional ones only degrade it.
type Checker struct {
	version   string
	startedAt time.Time

	mu       sync.RWMutex
	required map[string]CheckFunc
	optional map[string]CheckFunc
}

// NewChecker creates a checker reporting the given version string.
func NewChecker(version string) *Checker {
	return &Checker{
		version:   version,
		startedAt: time.Now(),
		required:  make(map[string]CheckFunc),
		optional:  make(map[string]CheckFunc),
	}
}

// Register adds a required component probe.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	c.required[name] = fn
	c.mu.Unlock()
}

// RegisterOptional adds a probe whose failure degrades rather than fails
// the report.
func (c *Checker) RegisterOptional(name string, fn CheckFunc) {
	c.mu.Lock()
	c.optional[name] = fn
	c.mu.Unlock()
}

// Check runs all probes with a bounded deadline.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c.mu.RLock()
	defer c.mu.RUnlock()

	report := Report{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startedAt).Round(time.Second).String(),
		Components: make(map[string]Component),
	}

	for name, fn := range c.required {
		comp := runCheck(ctx, fn)
		report.Components[name] = comp
		if comp.Status != StatusHealthy {
			report.Status = StatusUnhealthy
		}
	}

	for name, fn := range c.optional {
		comp := runCheck(ctx, fn)
		report.Components[name] = comp
		if comp.Status != StatusHealthy && report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}

	return report
}

func runCheck(ctx context.Context, fn CheckFunc) Component {
	start := time.Now()
	err := fn(ctx)
	comp := Component{Status: StatusHealthy, Latency: time.Since(start).String()}
	if err != nil {
		comp.Status = StatusUnhealthy
		comp.Error = err.Error()
	}
	return comp
}

// Handler serves the full health report. Unhealthy reports get a 503.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())

		status := http.StatusOK
		if report.Status == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}

// LiveHandler reports process liveness only.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler reports readiness: required components must be healthy.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())

		status := http.StatusOK
		ready := report.Status != StatusUnhealthy
		if !ready {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]bool{"ready": ready})
	}
}
