package violation

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSeverity(t *testing.T) {
	cases := []struct {
		endpoint string
		identity Identity
		want     Severity
	}{
		{"/api/v1/auth/login", Identity{}, SeverityCritical},
		{"/login", Identity{APIKeyID: "ak_1"}, SeverityCritical},
		{"/api/v1/admin/rules", Identity{}, SeverityHigh},
		{"/api/v1/reports", Identity{APIKeyID: "ak_1"}, SeverityMedium},
		{"/api/v1/reports", Identity{UserID: "u1"}, SeverityLow},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, DeriveSeverity(tc.endpoint, tc.identity), tc.endpoint)
	}
}

func TestRecorderBound(t *testing.T) {
	r := NewRecorder(5)

	for i := 0; i < 8; i++ {
		r.Record(Violation{
			Kind:     KindRateLimit,
			Endpoint: fmt.Sprintf("/e/%d", i),
			Identity: Identity{IP: "10.0.0.1"},
		})
	}

	// Exactly the configured maximum survives, most recent retained.
	recent := r.Recent()
	require.Len(t, recent, 5)
	assert.Equal(t, "/e/3", recent[0].Endpoint)
	assert.Equal(t, "/e/7", recent[4].Endpoint)
}

func TestRecorderFillsFields(t *testing.T) {
	r := NewRecorder(3)

	v := r.Record(Violation{Kind: KindSecurity, Endpoint: "/api/v1/admin/x"})

	assert.NotEmpty(t, v.ID)
	assert.False(t, v.Timestamp.IsZero())
	assert.Equal(t, SeverityHigh, v.Severity)
}

func TestRecorderSince(t *testing.T) {
	r := NewRecorder(10)

	r.Record(Violation{Kind: KindRateLimit, Endpoint: "/old"})
	cutoff := time.Now().Add(-time.Second)

	got := r.Since(cutoff)
	assert.Len(t, got, 1)

	got = r.Since(time.Now().Add(time.Hour))
	assert.Empty(t, got)
}

func TestTopN(t *testing.T) {
	counts := map[string]int{"a": 3, "b": 5, "c": 1, "d": 3}

	top := TopN(counts, 3)
	require.Len(t, top, 3)
	assert.Equal(t, CountEntry{Key: "b", Count: 5}, top[0])
	assert.Equal(t, CountEntry{Key: "a", Count: 3}, top[1])
	assert.Equal(t, CountEntry{Key: "d", Count: 3}, top[2])
}
