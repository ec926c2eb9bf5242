// Package violation records denied or flagged requests in a bounded
// recent-window buffer. This is intentionally lossy observability state,
// not an audit trail: the oldest entries are dropped once the buffer is
// full, and nothing is persisted.
package violation

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plexary/tenantgate/internal/ring"
)

// Kind distinguishes the subsystems that record violations.
type Kind string

const (
	KindRateLimit  Kind = "rate_limit"
	KindSecurity   Kind = "security"
	KindBruteForce Kind = "brute_force"
)

// Severity buckets violations for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Identity carries whichever request identity fields were known at the
// time of the violation. All fields are optional.
type Identity struct {
	TenantID string `json:"tenantId,omitempty"`
	UserID   string `json:"userId,omitempty"`
	APIKeyID string `json:"apiKeyId,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// Violation is one recorded denial or security flag.
type Violation struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Identity  Identity  `json:"identity"`
	Endpoint  string    `json:"endpoint"`
	Method    string    `json:"method"`
	// Reference names the rule id or detection pattern that fired.
	Reference string `json:"reference,omitempty"`
	Blocked   bool   `json:"blocked"`
}

// DeriveSeverity applies the endpoint/identity heuristics: authentication
// endpoints are critical, admin endpoints high, API-key callers medium,
// everything else low.
func DeriveSeverity(endpoint string, id Identity) Severity {
	path := strings.ToLower(endpoint)

	switch {
	case strings.Contains(path, "/auth") || strings.Contains(path, "/login"):
		return SeverityCritical
	case strings.Contains(path, "/admin"):
		return SeverityHigh
	case id.APIKeyID != "":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Recorder keeps the most recent violations in a fixed-capacity ring.
type Recorder struct {
	ring *ring.Ring[Violation]
}

// NewRecorder creates a recorder retaining at most capacity violations.
func NewRecorder(capacity int) *Recorder {
	return &Recorder{ring: ring.New[Violation](capacity)}
}

// Record fills in id, timestamp, and severity, then appends v.
func (r *Recorder) Record(v Violation) Violation {
	v.ID = uuid.New().String()
	v.Timestamp = time.Now()
	if v.Severity == "" {
		v.Severity = DeriveSeverity(v.Endpoint, v.Identity)
	}

	r.ring.Append(v)

	return v
}

// Recent returns the retained violations, oldest first.
func (r *Recorder) Recent() []Violation {
	return r.ring.Snapshot()
}

// Since returns retained violations recorded at or after cutoff.
func (r *Recorder) Since(cutoff time.Time) []Violation {
	all := r.ring.Snapshot()
	out := make([]Violation, 0, len(all))
	for _, v := range all {
		if !v.Timestamp.Before(cutoff) {
			out = append(out, v)
		}
	}

	return out
}

// Len returns the number of retained violations.
func (r *Recorder) Len() int { return r.ring.Len() }

// Clear drops all retained violations and returns the count.
func (r *Recorder) Clear() int { return r.ring.Clear() }

// CountEntry is one key with its occurrence count.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TopN returns the n highest counts, descending, ties broken by key for
// stable output.
func TopN(counts map[string]int, n int) []CountEntry {
	entries := make([]CountEntry, 0, len(counts))
	for k, c := range counts {
		entries = append(entries, CountEntry{Key: k, Count: c})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})

	if len(entries) > n {
		entries = entries[:n]
	}

	return entries
}
