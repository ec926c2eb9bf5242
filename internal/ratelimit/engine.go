// Package ratelimit enforces per-identity request budgets over fixed time
// windows. Rules live in a bounded in-memory table with a best-effort
// durable mirror; counters are pluggable so multi-instance deployments can
// share windows through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/plexary/tenantgate/internal/apperror"
	"github.com/plexary/tenantgate/internal/cache"
	"github.com/plexary/tenantgate/internal/metrics"
	"github.com/plexary/tenantgate/internal/store"
	"github.com/plexary/tenantgate/internal/violation"
)

// Config holds engine tuning.
type Config struct {
	Enabled bool

	DefaultWindow      time.Duration
	DefaultMaxRequests int
	MaxRules           int

	ViolationBufferSize int

	// Repeated violations by one key within BlockPeriod escalate to a
	// hard block lasting BlockDuration.
	BlockThreshold int
	BlockPeriod    time.Duration
	BlockDuration  time.Duration
}

// Request is one rate-limit evaluation input.
type Request struct {
	Identity violation.Identity
	Endpoint string
	Method   string
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Allowed bool `json:"allowed"`

	// Blocked marks a hard block from repeated violations rather than a
	// single exhausted window.
	Blocked bool `json:"blocked"`

	RuleID   string `json:"ruleId,omitempty"`
	RuleName string `json:"ruleName,omitempty"`
	Key      string `json:"key,omitempty"`

	Limit      int           `json:"limit,omitempty"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

type blockInfo struct {
	Until  time.Time
	RuleID string
}

// maxTrackedKeys caps the violation-time map so churning identities
// cannot grow it without bound.
const maxTrackedKeys = 10000

// Engine evaluates requests against the rule table.
type Engine struct {
	config   Config
	counters CounterStore
	mirror   store.Store
	recorder *violation.Recorder

	mu        sync.RWMutex
	rules     map[string]*store.Rule
	ruleOrder []string // insertion order, oldest first

	blocks *cache.Cache[blockInfo]

	vmu            sync.Mutex
	violationTimes map[string][]time.Time
}

// NewEngine creates an engine. mirror may be nil to disable persistence.
func NewEngine(config Config, counters CounterStore, mirror store.Store) *Engine {
	if config.MaxRules <= 0 {
		config.MaxRules = 100
	}
	if config.ViolationBufferSize <= 0 {
		config.ViolationBufferSize = 1000
	}

	return &Engine{
		config:         config,
		counters:       counters,
		mirror:         mirror,
		recorder:       violation.NewRecorder(config.ViolationBufferSize),
		rules:          make(map[string]*store.Rule),
		blocks:         cache.New[blockInfo](10000, config.BlockDuration),
		violationTimes: make(map[string][]time.Time),
	}
}

// LoadRules restores the rule table from the mirror, oldest first so the
// eviction order survives restarts.
func (e *Engine) LoadRules(ctx context.Context) error {
	if e.mirror == nil {
		return nil
	}

	rules, err := e.mirror.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rate limit rules: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range rules {
		if len(e.rules) >= e.config.MaxRules {
			break
		}
		e.rules[r.ID] = r
		e.ruleOrder = append(e.ruleOrder, r.ID)
	}

	log.Info().Int("rules", len(e.rules)).Msg("restored rate limit rules")
	return nil
}

// AddRule validates, defaults, and installs a rule. When the table is full
// the oldest rule is evicted to make room.
func (e *Engine) AddRule(ctx context.Context, r *store.Rule) (*store.Rule, error) {
	if r.WindowMs <= 0 {
		r.WindowMs = e.config.DefaultWindow.Milliseconds()
	}
	if r.MaxRequests <= 0 {
		r.MaxRequests = e.config.DefaultMaxRequests
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now

	e.mu.Lock()
	if len(e.rules) >= e.config.MaxRules && e.rules[r.ID] == nil {
		oldest := e.ruleOrder[0]
		e.ruleOrder = e.ruleOrder[1:]
		delete(e.rules, oldest)
		log.Warn().Str("rule_id", oldest).Msg("rule table full, evicted oldest rule")
	}
	if e.rules[r.ID] == nil {
		e.ruleOrder = append(e.ruleOrder, r.ID)
	}
	e.rules[r.ID] = r
	e.mu.Unlock()

	e.mirrorSave(ctx, r)
	return r, nil
}

// UpdateRule replaces an existing rule in place, keeping its creation time
// and eviction position.
func (e *Engine) UpdateRule(ctx context.Context, r *store.Rule) (*store.Rule, error) {
	e.mu.Lock()
	existing, ok := e.rules[r.ID]
	if !ok {
		e.mu.Unlock()
		return nil, apperror.ErrRuleNotFound
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now()
	if r.WindowMs <= 0 {
		r.WindowMs = e.config.DefaultWindow.Milliseconds()
	}
	if r.MaxRequests <= 0 {
		r.MaxRequests = e.config.DefaultMaxRequests
	}
	e.rules[r.ID] = r
	e.mu.Unlock()

	e.mirrorSave(ctx, r)
	return r, nil
}

// DeleteRule removes a rule from the table and the mirror.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	e.mu.Lock()
	if _, ok := e.rules[id]; !ok {
		e.mu.Unlock()
		return apperror.ErrRuleNotFound
	}
	delete(e.rules, id)
	for i, rid := range e.ruleOrder {
		if rid == id {
			e.ruleOrder = append(e.ruleOrder[:i], e.ruleOrder[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	if e.mirror != nil {
		if err := e.mirror.DeleteRule(ctx, id); err != nil && err != store.ErrNotFound {
			log.Warn().Err(err).Str("rule_id", id).Msg("failed to delete rule from mirror")
		}
	}
	return nil
}

// GetRule returns a rule by id.
func (e *Engine) GetRule(id string) (*store.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	r, ok := e.rules[id]
	if !ok {
		return nil, apperror.ErrRuleNotFound
	}
	out := *r
	return &out, nil
}

// ListRules returns all rules, highest priority first.
func (e *Engine) ListRules() []*store.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*store.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		c := *r
		out = append(out, &c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

// Check evaluates one request. Exactly one rule, the highest-priority
// match, is enforced; lower-priority matches are neither checked nor
// counted.
func (e *Engine) Check(ctx context.Context, req Request) Decision {
	if !e.config.Enabled {
		return Decision{Allowed: true}
	}

	key := CompositeKey(req.Identity)

	if block, ok := e.blocks.Get(key); ok && time.Now().Before(block.Until) {
		d := Decision{
			Allowed:    false,
			Blocked:    true,
			Key:        key,
			RuleID:     block.RuleID,
			RetryAfter: time.Until(block.Until),
		}
		e.recordViolation(req, d, true)
		metrics.RecordRateLimit(false)
		return d
	}

	rule := e.matchRule(req)
	if rule == nil {
		metrics.RecordRateLimit(true)
		return Decision{Allowed: true, Key: key}
	}

	window := time.Duration(rule.WindowMs) * time.Millisecond
	now := time.Now()
	windowIdx := now.UnixMilli() / rule.WindowMs
	counterKey := fmt.Sprintf("%s:%s:%d", rule.ID, key, windowIdx)

	count, err := e.counters.Incr(ctx, counterKey, 2*window)
	if err != nil {
		// A broken counter backend must not take traffic down with it.
		log.Warn().Err(err).Str("rule_id", rule.ID).Msg("counter increment failed, allowing request")
		metrics.RecordRateLimit(true)
		return Decision{Allowed: true, Key: key, RuleID: rule.ID, RuleName: rule.Name}
	}

	windowEnd := time.UnixMilli((windowIdx + 1) * rule.WindowMs)

	d := Decision{
		Allowed:   count <= int64(rule.MaxRequests),
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Key:       key,
		Limit:     rule.MaxRequests,
		Remaining: rule.MaxRequests - int(count),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}

	if !d.Allowed {
		d.RetryAfter = windowEnd.Sub(now)
		e.recordViolation(req, d, false)
		e.maybeBlock(key, rule.ID)
	}

	metrics.RecordRateLimit(d.Allowed)
	return d
}

// matchRule returns the highest-priority active rule whose dimensions all
// match the request, or nil. Set dimensions must match; unset ones are
// wildcards.
func (e *Engine) matchRule(req Request) *store.Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var best *store.Rule
	for _, r := range e.rules {
		if !r.Active || !ruleMatches(r, req) {
			continue
		}
		if best == nil ||
			r.Priority > best.Priority ||
			(r.Priority == best.Priority && r.CreatedAt.Before(best.CreatedAt)) {
			best = r
		}
	}

	if best == nil {
		return nil
	}
	out := *best
	return &out
}

func ruleMatches(r *store.Rule, req Request) bool {
	if r.TenantID != "" && r.TenantID != req.Identity.TenantID {
		return false
	}
	if r.UserID != "" && r.UserID != req.Identity.UserID {
		return false
	}
	if r.APIKeyID != "" && r.APIKeyID != req.Identity.APIKeyID {
		return false
	}
	if r.IPAddress != "" && r.IPAddress != req.Identity.IP {
		return false
	}
	if r.Method != "" && !strings.EqualFold(r.Method, req.Method) {
		return false
	}
	if r.Endpoint != "" && !endpointMatches(r.Endpoint, req.Endpoint) {
		return false
	}
	return true
}

// endpointMatches compares paths exactly, with a trailing "*" on the rule
// acting as a prefix wildcard.
func endpointMatches(pattern, path string) bool {
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == path
}

// CompositeKey derives the counting identity: the most specific known
// identifier wins, so an API-key caller is never throttled under its
// tenant's shared budget.
func CompositeKey(id violation.Identity) string {
	switch {
	case id.APIKeyID != "":
		return "apikey:" + id.APIKeyID
	case id.UserID != "":
		return "user:" + id.UserID
	case id.TenantID != "":
		return "tenant:" + id.TenantID
	case id.IP != "":
		return "ip:" + id.IP
	}
	return "anonymous"
}

func (e *Engine) recordViolation(req Request, d Decision, blocked bool) {
	v := e.recorder.Record(violation.Violation{
		Kind:      violation.KindRateLimit,
		Identity:  req.Identity,
		Endpoint:  req.Endpoint,
		Method:    req.Method,
		Reference: d.RuleID,
		Blocked:   blocked,
	})
	metrics.RecordViolation(string(v.Kind), string(v.Severity))
}

// maybeBlock escalates a key to a hard block after repeated violations
// inside the block period.
func (e *Engine) maybeBlock(key, ruleID string) {
	if e.config.BlockThreshold <= 0 {
		return
	}

	e.vmu.Lock()
	defer e.vmu.Unlock()

	now := time.Now()
	cutoff := now.Add(-e.config.BlockPeriod)

	if _, tracked := e.violationTimes[key]; !tracked && len(e.violationTimes) >= maxTrackedKeys {
		if e.pruneViolationTimes(cutoff) == 0 {
			evictStalest(e.violationTimes)
		}
	}

	times := e.violationTimes[key]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	e.violationTimes[key] = kept

	if len(kept) >= e.config.BlockThreshold {
		e.blocks.Set(key, blockInfo{Until: now.Add(e.config.BlockDuration), RuleID: ruleID})
		delete(e.violationTimes, key)

		log.Warn().
			Str("key", key).
			Str("rule_id", ruleID).
			Dur("duration", e.config.BlockDuration).
			Msg("repeated rate limit violations, key blocked")
	}
}

// pruneViolationTimes drops keys whose newest violation is older than
// cutoff. Caller holds vmu.
func (e *Engine) pruneViolationTimes(cutoff time.Time) int {
	removed := 0
	for key, times := range e.violationTimes {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(e.violationTimes, key)
			removed++
		}
	}
	return removed
}

// evictStalest removes the entry whose newest timestamp is oldest.
func evictStalest(m map[string][]time.Time) {
	var victim string
	var oldest time.Time
	for key, times := range m {
		last := times[len(times)-1]
		if victim == "" || last.Before(oldest) {
			victim, oldest = key, last
		}
	}
	if victim != "" {
		delete(m, victim)
	}
}

// CleanupStale drops violation histories that can no longer contribute to
// a block and returns the count.
func (e *Engine) CleanupStale() int {
	e.vmu.Lock()
	defer e.vmu.Unlock()
	return e.pruneViolationTimes(time.Now().Add(-e.config.BlockPeriod))
}

// BlockStatus reports whether key is under a hard block and until when.
func (e *Engine) BlockStatus(key string) (bool, time.Time) {
	if b, ok := e.blocks.Get(key); ok && time.Now().Before(b.Until) {
		return true, b.Until
	}
	return false, time.Time{}
}

// Unblock lifts a hard block.
func (e *Engine) Unblock(key string) {
	e.blocks.Delete(key)
}

// ResetCounters clears all live windows.
func (e *Engine) ResetCounters(ctx context.Context) error {
	return e.counters.Reset(ctx)
}

// Violations returns the retained violations, oldest first.
func (e *Engine) Violations() []violation.Violation {
	return e.recorder.Recent()
}

// ClearViolations drops retained violations and returns the count.
func (e *Engine) ClearViolations() int {
	return e.recorder.Clear()
}

func (e *Engine) mirrorSave(ctx context.Context, r *store.Rule) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.SaveRule(ctx, r); err != nil {
		log.Warn().Err(err).Str("rule_id", r.ID).Msg("failed to persist rule to mirror")
	}
}
