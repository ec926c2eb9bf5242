// Package security screens requests for injection payloads and tracks
// brute-force behavior per source IP. Detection is a compiled regex
// ruleset over the request path, query string, and a bounded body prefix;
// it is a tripwire for obvious abuse, not a full WAF.
package security

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/plexary/tenantgate/internal/cache"
	"github.com/plexary/tenantgate/internal/metrics"
	"github.com/plexary/tenantgate/internal/violation"
)

// Target selects which request parts a rule inspects.
type Target uint8

const (
	TargetPath Target = 1 << iota
	TargetQuery
	TargetBody
)

// maxBodyInspect bounds how much of the body the screen reads.
const maxBodyInspect = 64 * 1024

// maxTrackedIPs caps the attempt map so churning source IPs cannot grow
// it without bound.
const maxTrackedIPs = 10000

type rule struct {
	name     string
	re       *regexp.Regexp
	targets  Target
	severity violation.Severity
}

// The ruleset trades recall for precision: patterns here are specific
// enough that a match on an ordinary SaaS request is almost certainly
// hostile.
var rules = []rule{
	{
		name:     "sql_injection",
		re:       regexp.MustCompile(`(?i)(union(\s+all)?\s+select|select\s+[\w\s,*]+\s+from\s|insert\s+into\s|drop\s+(table|database)\s|information_schema|sleep\s*\(\s*\d|benchmark\s*\(|'\s*or\s+'?\d+'?\s*=\s*'?\d)`),
		targets:  TargetPath | TargetQuery | TargetBody,
		severity: violation.SeverityCritical,
	},
	{
		name:     "xss",
		re:       regexp.MustCompile(`(?i)(<script\b|javascript\s*:|on(error|load|click|mouseover)\s*=|<iframe\b|document\.(cookie|write)|eval\s*\()`),
		targets:  TargetQuery | TargetBody,
		severity: violation.SeverityHigh,
	},
	{
		name:     "path_traversal",
		re:       regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e%2f|%2e%2e/|\.\.%2f)`),
		targets:  TargetPath | TargetQuery,
		severity: violation.SeverityHigh,
	},
	{
		name:     "null_byte",
		re:       regexp.MustCompile(`(%00|\x00)`),
		targets:  TargetPath | TargetQuery,
		severity: violation.SeverityMedium,
	},
}

// Finding describes a ruleset match.
type Finding struct {
	Rule     string             `json:"rule"`
	Target   string             `json:"target"`
	Severity violation.Severity `json:"severity"`

	// Blocked is false in audit-only mode.
	Blocked bool `json:"blocked"`
}

// Config holds screen tuning.
type Config struct {
	Enabled   bool
	AuditOnly bool

	BruteForceMaxAttempts   int
	BruteForceWindow        time.Duration
	BruteForceBlockDuration time.Duration

	ViolationBufferSize int
}

// Screen inspects requests and tracks brute-force attempts.
type Screen struct {
	config   Config
	recorder *violation.Recorder

	amu      sync.Mutex
	attempts map[string][]time.Time
	blocks   *cache.Cache[time.Time]
}

// New creates a screen.
func New(config Config) *Screen {
	if config.ViolationBufferSize <= 0 {
		config.ViolationBufferSize = 1000
	}

	return &Screen{
		config:   config,
		recorder: violation.NewRecorder(config.ViolationBufferSize),
		attempts: make(map[string][]time.Time),
		blocks:   cache.New[time.Time](10000, config.BruteForceBlockDuration),
	}
}

// Inspect runs the ruleset against one request. It returns nil for clean
// requests; in audit-only mode findings come back with Blocked false so
// the caller logs but does not deny.
func (s *Screen) Inspect(r *http.Request, id violation.Identity) *Finding {
	if !s.config.Enabled {
		return nil
	}

	path := r.URL.Path
	body := s.peekBody(r)

	// Match against the decoded query so percent- and plus-encoding do
	// not hide payloads from the ruleset.
	query := r.URL.RawQuery
	if decoded, err := url.QueryUnescape(query); err == nil {
		query = decoded
	}

	for _, rl := range rules {
		target := ""
		switch {
		case rl.targets&TargetPath != 0 && rl.re.MatchString(path):
			target = "path"
		case rl.targets&TargetQuery != 0 && query != "" && rl.re.MatchString(query):
			target = "query"
		case rl.targets&TargetBody != 0 && body != "" && rl.re.MatchString(body):
			target = "body"
		}
		if target == "" {
			continue
		}

		f := &Finding{
			Rule:     rl.name,
			Target:   target,
			Severity: rl.severity,
			Blocked:  !s.config.AuditOnly,
		}

		v := s.recorder.Record(violation.Violation{
			Kind:      violation.KindSecurity,
			Severity:  rl.severity,
			Identity:  id,
			Endpoint:  path,
			Method:    r.Method,
			Reference: rl.name,
			Blocked:   f.Blocked,
		})
		metrics.RecordViolation(string(v.Kind), string(v.Severity))

		log.Warn().
			Str("rule", rl.name).
			Str("target", target).
			Str("path", path).
			Str("ip", id.IP).
			Bool("blocked", f.Blocked).
			Msg("security screen match")

		return f
	}

	return nil
}

// peekBody reads a bounded prefix of the body and restores it for the
// downstream handler.
func (s *Screen) peekBody(r *http.Request) string {
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBodyInspect))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(buf), r.Body))

	return string(buf)
}

// RecordFailure notes one failed authentication attempt from ip. It
// returns true when the attempt crossed the threshold and the ip is now
// blocked.
func (s *Screen) RecordFailure(ip string) bool {
	if !s.config.Enabled || s.config.BruteForceMaxAttempts <= 0 || ip == "" {
		return false
	}

	s.amu.Lock()
	defer s.amu.Unlock()

	now := time.Now()
	cutoff := now.Add(-s.config.BruteForceWindow)

	if _, tracked := s.attempts[ip]; !tracked && len(s.attempts) >= maxTrackedIPs {
		if s.pruneAttempts(cutoff) == 0 {
			evictStalestIP(s.attempts)
		}
	}

	kept := s.attempts[ip][:0]
	for _, t := range s.attempts[ip] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.attempts[ip] = kept

	if len(kept) < s.config.BruteForceMaxAttempts {
		return false
	}

	s.blocks.Set(ip, now.Add(s.config.BruteForceBlockDuration))
	delete(s.attempts, ip)

	v := s.recorder.Record(violation.Violation{
		Kind:     violation.KindBruteForce,
		Severity: violation.SeverityCritical,
		Identity: violation.Identity{IP: ip},
		Blocked:  true,
	})
	metrics.RecordViolation(string(v.Kind), string(v.Severity))

	log.Warn().
		Str("ip", ip).
		Dur("duration", s.config.BruteForceBlockDuration).
		Msg("brute force threshold reached, ip blocked")

	return true
}

// pruneAttempts drops IPs whose newest failure is older than cutoff.
// Caller holds amu.
func (s *Screen) pruneAttempts(cutoff time.Time) int {
	removed := 0
	for ip, times := range s.attempts {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(s.attempts, ip)
			removed++
		}
	}
	return removed
}

// evictStalestIP removes the entry whose newest timestamp is oldest.
func evictStalestIP(m map[string][]time.Time) {
	var victim string
	var oldest time.Time
	for ip, times := range m {
		last := times[len(times)-1]
		if victim == "" || last.Before(oldest) {
			victim, oldest = ip, last
		}
	}
	if victim != "" {
		delete(m, victim)
	}
}

// CleanupStale drops failure histories outside the brute-force window and
// returns the count.
func (s *Screen) CleanupStale() int {
	s.amu.Lock()
	defer s.amu.Unlock()
	return s.pruneAttempts(time.Now().Add(-s.config.BruteForceWindow))
}

// RecordSuccess clears the failure history for ip.
func (s *Screen) RecordSuccess(ip string) {
	s.amu.Lock()
	delete(s.attempts, ip)
	s.amu.Unlock()
}

// IsBlocked reports whether ip is under a brute-force block.
func (s *Screen) IsBlocked(ip string) bool {
	until, ok := s.blocks.Get(ip)
	return ok && time.Now().Before(until)
}

// Unblock lifts a brute-force block.
func (s *Screen) Unblock(ip string) {
	s.blocks.Delete(ip)
}

// Violations returns retained security violations, oldest first.
func (s *Screen) Violations() []violation.Violation {
	return s.recorder.Recent()
}

// ClearViolations drops retained violations and returns the count.
func (s *Screen) ClearViolations() int {
	return s.recorder.Clear()
}
