package resolver

import (
	"sync"
	"time"

	"github.com/plexary/tenantgate/internal/ring"
	"github.com/plexary/tenantgate/internal/violation"
)

// RecentResolution is one entry in the recent-resolutions ring.
type RecentResolution struct {
	Timestamp time.Time     `json:"timestamp"`
	Host      string        `json:"host"`
	Method    string        `json:"method"`
	TenantID  string        `json:"tenantId,omitempty"`
	Found     bool          `json:"found"`
	CacheHit  bool          `json:"cacheHit"`
	Duration  time.Duration `json:"duration"`
}

// Stats is an aggregate snapshot of resolver activity since startup.
type Stats struct {
	Total       uint64 `json:"total"`
	Found       uint64 `json:"found"`
	NotFound    uint64 `json:"notFound"`
	CacheHits   uint64 `json:"cacheHits"`
	CacheMisses uint64 `json:"cacheMisses"`

	ByMethod map[string]uint64 `json:"byMethod"`

	// TopTenants lists the ten most-resolved tenants.
	TopTenants []violation.CountEntry `json:"topTenants"`

	AverageDuration time.Duration      `json:"averageDuration"`
	Recent          []RecentResolution `json:"recent"`
}

// statsCollector accumulates resolution statistics. The tenant counter map
// is capped to protect against unbounded host churn.
type statsCollector struct {
	mu sync.Mutex

	total       uint64
	found       uint64
	notFound    uint64
	cacheHits   uint64
	cacheMisses uint64

	byMethod  map[string]uint64
	byTenant  map[string]int
	avgMillis float64

	recent *ring.Ring[RecentResolution]
}

const maxTrackedTenants = 1000

func newStatsCollector(recentSize int) *statsCollector {
	return &statsCollector{
		byMethod: make(map[string]uint64),
		byTenant: make(map[string]int),
		recent:   ring.New[RecentResolution](recentSize),
	}
}

func (s *statsCollector) record(r *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if r.Found() {
		s.found++
	} else {
		s.notFound++
	}
	if r.CacheHit {
		s.cacheHits++
	} else {
		s.cacheMisses++
	}

	s.byMethod[r.Method]++
	if r.TenantID != "" {
		if _, tracked := s.byTenant[r.TenantID]; tracked || len(s.byTenant) < maxTrackedTenants {
			s.byTenant[r.TenantID]++
		}
	}

	// Running mean over all resolutions so far.
	n := float64(s.total)
	s.avgMillis = (s.avgMillis*(n-1) + float64(r.Duration.Milliseconds())) / n

	s.recent.Append(RecentResolution{
		Timestamp: time.Now(),
		Host:      r.Domain.Host,
		Method:    r.Method,
		TenantID:  r.TenantID,
		Found:     r.Found(),
		CacheHit:  r.CacheHit,
		Duration:  r.Duration,
	})
}

func (s *statsCollector) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byMethod := make(map[string]uint64, len(s.byMethod))
	for k, v := range s.byMethod {
		byMethod[k] = v
	}

	return Stats{
		Total:           s.total,
		Found:           s.found,
		NotFound:        s.notFound,
		CacheHits:       s.cacheHits,
		CacheMisses:     s.cacheMisses,
		ByMethod:        byMethod,
		TopTenants:      violation.TopN(s.byTenant, 10),
		AverageDuration: time.Duration(s.avgMillis * float64(time.Millisecond)),
		Recent:          s.recent.Snapshot(),
	}
}

func (s *statsCollector) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total, s.found, s.notFound = 0, 0, 0
	s.cacheHits, s.cacheMisses = 0, 0
	s.byMethod = make(map[string]uint64)
	s.byTenant = make(map[string]int)
	s.avgMillis = 0
	s.recent.Clear()
}
