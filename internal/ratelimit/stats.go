package ratelimit

import (
	"time"

	"github.com/plexary/tenantgate/internal/violation"
)

// Stats summarizes violations recorded within a timeframe.
type Stats struct {
	Timeframe string `json:"timeframe"`

	Total   int `json:"total"`
	Blocked int `json:"blocked"`

	TopIPs       []violation.CountEntry `json:"topIps"`
	TopTenants   []violation.CountEntry `json:"topTenants"`
	TopUsers     []violation.CountEntry `json:"topUsers"`
	TopEndpoints []violation.CountEntry `json:"topEndpoints"`

	// Hourly buckets violations by hour, keyed "2006-01-02T15".
	Hourly map[string]int `json:"hourly"`
}

// Stats aggregates retained violations recorded within the last timeframe.
func (e *Engine) Stats(timeframe time.Duration) Stats {
	cutoff := time.Now().Add(-timeframe)
	recent := e.recorder.Since(cutoff)

	ips := make(map[string]int)
	tenants := make(map[string]int)
	users := make(map[string]int)
	endpoints := make(map[string]int)
	hourly := make(map[string]int)

	blocked := 0
	for _, v := range recent {
		if v.Blocked {
			blocked++
		}
		if v.Identity.IP != "" {
			ips[v.Identity.IP]++
		}
		if v.Identity.TenantID != "" {
			tenants[v.Identity.TenantID]++
		}
		if v.Identity.UserID != "" {
			users[v.Identity.UserID]++
		}
		if v.Endpoint != "" {
			endpoints[v.Endpoint]++
		}
		hourly[v.Timestamp.Format("2006-01-02T15")]++
	}

	return Stats{
		Timeframe:    timeframe.String(),
		Total:        len(recent),
		Blocked:      blocked,
		TopIPs:       violation.TopN(ips, 10),
		TopTenants:   violation.TopN(tenants, 10),
		TopUsers:     violation.TopN(users, 10),
		TopEndpoints: violation.TopN(endpoints, 10),
		Hourly:       hourly,
	}
}
