package validator

import (
	"sync"
	"time"
)

// Stats is an aggregate snapshot of validator activity since startup.
type Stats struct {
	Total     uint64            `json:"total"`
	Allowed   uint64            `json:"allowed"`
	Denied    uint64            `json:"denied"`
	CacheHits uint64            `json:"cacheHits"`
	ByCode    map[string]uint64 `json:"byCode"`

	AverageDuration time.Duration `json:"averageDuration"`
}

type statsCollector struct {
	mu sync.Mutex

	total     uint64
	allowed   uint64
	denied    uint64
	cacheHits uint64
	byCode    map[string]uint64
	avgMillis float64
}

func newStatsCollector() *statsCollector {
	return &statsCollector{byCode: make(map[string]uint64)}
}

func (s *statsCollector) record(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if r.Valid {
		s.allowed++
	} else {
		s.denied++
		if r.Code != "" {
			s.byCode[r.Code]++
		}
	}
	if r.Metadata.CacheHit {
		s.cacheHits++
	}

	n := float64(s.total)
	s.avgMillis = (s.avgMillis*(n-1) + float64(r.Metadata.Duration.Milliseconds())) / n
}

func (s *statsCollector) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCode := make(map[string]uint64, len(s.byCode))
	for k, v := range s.byCode {
		byCode[k] = v
	}

	return Stats{
		Total:           s.total,
		Allowed:         s.allowed,
		Denied:          s.denied,
		CacheHits:       s.cacheHits,
		ByCode:          byCode,
		AverageDuration: time.Duration(s.avgMillis * float64(time.Millisecond)),
	}
}

func (s *statsCollector) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total, s.allowed, s.denied, s.cacheHits = 0, 0, 0, 0
	s.byCode = make(map[string]uint64)
	s.avgMillis = 0
}
