package security

import (
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexary/tenantgate/internal/violation"
)

func testScreen(t *testing.T) *Screen {
	t.Helper()
	return New(Config{
		Enabled:                 true,
		BruteForceMaxAttempts:   3,
		BruteForceWindow:        time.Minute,
		BruteForceBlockDuration: time.Minute,
	})
}

func TestInspectDetections(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		body     string
		wantRule string
	}{
		{
			name:     "sql injection in query",
			url:      "/search?q=1%27+or+%271%27%3D%271",
			wantRule: "sql_injection",
		},
		{
			name:     "union select in query",
			url:      "/items?id=1+UNION+SELECT+password+FROM+users",
			wantRule: "sql_injection",
		},
		{
			name:     "xss in body",
			url:      "/comments",
			body:     `{"text":"<script>alert(1)</script>"}`,
			wantRule: "xss",
		},
		{
			name:     "path traversal",
			url:      "/files/../../etc/passwd",
			wantRule: "path_traversal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScreen(t)

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			r := httptest.NewRequest("POST", tt.url, body)

			f := s.Inspect(r, violation.Identity{IP: "10.0.0.1"})
			require.NotNil(t, f)
			assert.Equal(t, tt.wantRule, f.Rule)
			assert.True(t, f.Blocked)

			vs := s.Violations()
			require.Len(t, vs, 1)
			assert.Equal(t, violation.KindSecurity, vs[0].Kind)
		})
	}
}

func TestInspectCleanRequests(t *testing.T) {
	s := testScreen(t)

	for _, url := range []string{
		"/dashboard",
		"/api/v1/users?page=2&sort=name",
		"/search?q=union+workers+rights",
		"/files/report-2024.pdf",
	} {
		r := httptest.NewRequest("GET", url, nil)
		assert.Nil(t, s.Inspect(r, violation.Identity{}), url)
	}
}

func TestInspectBodyRestored(t *testing.T) {
	s := testScreen(t)

	payload := `{"name":"ordinary payload"}`
	r := httptest.NewRequest("POST", "/api/v1/things", strings.NewReader(payload))

	require.Nil(t, s.Inspect(r, violation.Identity{}))

	// The handler downstream must still see the full body.
	got, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestInspectAuditOnly(t *testing.T) {
	s := New(Config{Enabled: true, AuditOnly: true})

	r := httptest.NewRequest("GET", "/files/../../etc/passwd", nil)
	f := s.Inspect(r, violation.Identity{})
	require.NotNil(t, f)
	assert.False(t, f.Blocked)

	vs := s.Violations()
	require.Len(t, vs, 1)
	assert.False(t, vs[0].Blocked)
}

func TestInspectDisabled(t *testing.T) {
	s := New(Config{Enabled: false})

	r := httptest.NewRequest("GET", "/files/../../etc/passwd", nil)
	assert.Nil(t, s.Inspect(r, violation.Identity{}))
}

func TestBruteForceBlocking(t *testing.T) {
	s := testScreen(t)

	assert.False(t, s.RecordFailure("10.0.0.1"))
	assert.False(t, s.RecordFailure("10.0.0.1"))
	assert.False(t, s.IsBlocked("10.0.0.1"))

	assert.True(t, s.RecordFailure("10.0.0.1"), "third failure crosses the threshold")
	assert.True(t, s.IsBlocked("10.0.0.1"))
	assert.False(t, s.IsBlocked("10.0.0.2"), "other ips unaffected")

	vs := s.Violations()
	require.Len(t, vs, 1)
	assert.Equal(t, violation.KindBruteForce, vs[0].Kind)
	assert.Equal(t, violation.SeverityCritical, vs[0].Severity)

	s.Unblock("10.0.0.1")
	assert.False(t, s.IsBlocked("10.0.0.1"))
}

func TestBruteForceSuccessResets(t *testing.T) {
	s := testScreen(t)

	s.RecordFailure("10.0.0.1")
	s.RecordFailure("10.0.0.1")
	s.RecordSuccess("10.0.0.1")

	assert.False(t, s.RecordFailure("10.0.0.1"), "history cleared by success")
	assert.False(t, s.IsBlocked("10.0.0.1"))
}

func TestBruteForceTrackingBounded(t *testing.T) {
	t.Run("stale histories are swept", func(t *testing.T) {
		s := New(Config{
			Enabled:                 true,
			BruteForceMaxAttempts:   3,
			BruteForceWindow:        20 * time.Millisecond,
			BruteForceBlockDuration: time.Minute,
		})

		s.RecordFailure("10.0.0.1")
		s.RecordFailure("10.0.0.2")
		require.Len(t, s.attempts, 2)

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, 2, s.CleanupStale())
		assert.Empty(t, s.attempts)
	})

	t.Run("capacity is enforced", func(t *testing.T) {
		s := testScreen(t)

		now := time.Now()
		s.amu.Lock()
		for i := 0; i < maxTrackedIPs; i++ {
			s.attempts["10.0."+strconv.Itoa(i/256)+"."+strconv.Itoa(i%256)] = []time.Time{now}
		}
		s.amu.Unlock()

		s.RecordFailure("192.0.2.99")

		s.amu.Lock()
		defer s.amu.Unlock()
		assert.LessOrEqual(t, len(s.attempts), maxTrackedIPs)
		assert.Contains(t, s.attempts, "192.0.2.99")
	})
}
