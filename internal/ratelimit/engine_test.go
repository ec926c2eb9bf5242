package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexary/tenantgate/internal/apperror"
	"github.com/plexary/tenantgate/internal/store"
	"github.com/plexary/tenantgate/internal/violation"
)

func testEngine(t *testing.T, mirror store.Store) *Engine {
	t.Helper()
	return NewEngine(Config{
		Enabled:             true,
		DefaultWindow:       time.Minute,
		DefaultMaxRequests:  100,
		MaxRules:            5,
		ViolationBufferSize: 100,
		BlockThreshold:      3,
		BlockPeriod:         time.Minute,
		BlockDuration:       time.Minute,
	}, NewMemoryCounters(), mirror)
}

func addRule(t *testing.T, e *Engine, r *store.Rule) *store.Rule {
	t.Helper()
	out, err := e.AddRule(context.Background(), r)
	require.NoError(t, err)
	return out
}

func TestCheckEnforcesWindow(t *testing.T) {
	e := testEngine(t, nil)
	addRule(t, e, &store.Rule{
		Name:        "ip limit",
		WindowMs:    60000,
		MaxRequests: 3,
		Active:      true,
	})

	req := Request{Identity: violation.Identity{IP: "10.0.0.1"}, Endpoint: "/x", Method: "GET"}

	for i := 0; i < 3; i++ {
		d := e.Check(context.Background(), req)
		assert.True(t, d.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3-i-1, d.Remaining)
	}

	d := e.Check(context.Background(), req)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	require.Len(t, e.Violations(), 1)
}

func TestCheckWindowRecovery(t *testing.T) {
	e := testEngine(t, nil)
	addRule(t, e, &store.Rule{
		Name:        "tiny window",
		WindowMs:    30,
		MaxRequests: 1,
		Active:      true,
	})

	req := Request{Identity: violation.Identity{IP: "10.0.0.1"}}

	assert.True(t, e.Check(context.Background(), req).Allowed)
	assert.False(t, e.Check(context.Background(), req).Allowed)

	time.Sleep(40 * time.Millisecond)
	assert.True(t, e.Check(context.Background(), req).Allowed, "new window starts fresh")
}

func TestCheckHighestPriorityRuleOnly(t *testing.T) {
	e := testEngine(t, nil)
	loose := addRule(t, e, &store.Rule{
		Name:        "loose",
		WindowMs:    60000,
		MaxRequests: 100,
		Priority:    1,
		Active:      true,
	})
	strict := addRule(t, e, &store.Rule{
		Name:        "strict",
		WindowMs:    60000,
		MaxRequests: 1,
		Priority:    10,
		Active:      true,
	})

	req := Request{Identity: violation.Identity{IP: "10.0.0.1"}}

	d := e.Check(context.Background(), req)
	assert.True(t, d.Allowed)
	assert.Equal(t, strict.ID, d.RuleID)

	d = e.Check(context.Background(), req)
	assert.False(t, d.Allowed, "strict rule exhausted")
	assert.Equal(t, strict.ID, d.RuleID)

	// The loose rule's counter was never touched: deleting the strict
	// rule makes its full budget available.
	require.NoError(t, e.DeleteRule(context.Background(), strict.ID))
	d = e.Check(context.Background(), req)
	assert.True(t, d.Allowed)
	assert.Equal(t, loose.ID, d.RuleID)
	assert.Equal(t, 99, d.Remaining)
}

func TestCheckDimensionMatching(t *testing.T) {
	e := testEngine(t, nil)
	addRule(t, e, &store.Rule{
		Name:        "tenant scoped",
		TenantID:    "t1",
		Endpoint:    "/api/*",
		Method:      "POST",
		WindowMs:    60000,
		MaxRequests: 1,
		Active:      true,
	})

	match := Request{Identity: violation.Identity{TenantID: "t1"}, Endpoint: "/api/things", Method: "POST"}
	assert.True(t, e.Check(context.Background(), match).Allowed)
	assert.False(t, e.Check(context.Background(), match).Allowed)

	t.Run("other tenant unaffected", func(t *testing.T) {
		d := e.Check(context.Background(), Request{
			Identity: violation.Identity{TenantID: "t2"}, Endpoint: "/api/things", Method: "POST",
		})
		assert.True(t, d.Allowed)
		assert.Empty(t, d.RuleID)
	})

	t.Run("other endpoint unaffected", func(t *testing.T) {
		d := e.Check(context.Background(), Request{
			Identity: violation.Identity{TenantID: "t1"}, Endpoint: "/other", Method: "POST",
		})
		assert.True(t, d.Allowed)
		assert.Empty(t, d.RuleID)
	})
}

func TestCheckInactiveRuleIgnored(t *testing.T) {
	e := testEngine(t, nil)
	addRule(t, e, &store.Rule{
		Name:        "disabled",
		WindowMs:    60000,
		MaxRequests: 1,
		Active:      false,
	})

	req := Request{Identity: violation.Identity{IP: "10.0.0.1"}}
	assert.True(t, e.Check(context.Background(), req).Allowed)
	assert.True(t, e.Check(context.Background(), req).Allowed)
}

func TestCompositeKeyPriority(t *testing.T) {
	tests := []struct {
		name string
		id   violation.Identity
		want string
	}{
		{"api key wins", violation.Identity{APIKeyID: "k", UserID: "u", TenantID: "t", IP: "i"}, "apikey:k"},
		{"then user", violation.Identity{UserID: "u", TenantID: "t", IP: "i"}, "user:u"},
		{"then tenant", violation.Identity{TenantID: "t", IP: "i"}, "tenant:t"},
		{"then ip", violation.Identity{IP: "i"}, "ip:i"},
		{"anonymous", violation.Identity{}, "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompositeKey(tt.id))
		})
	}
}

func TestRepeatedViolationsBlock(t *testing.T) {
	e := testEngine(t, nil)
	addRule(t, e, &store.Rule{
		Name:        "tight",
		WindowMs:    60000,
		MaxRequests: 1,
		Active:      true,
	})

	req := Request{Identity: violation.Identity{IP: "10.0.0.9"}}
	e.Check(context.Background(), req) // allowed

	// Three violations reach the block threshold.
	for i := 0; i < 3; i++ {
		d := e.Check(context.Background(), req)
		assert.False(t, d.Allowed)
	}

	d := e.Check(context.Background(), req)
	assert.False(t, d.Allowed)
	assert.True(t, d.Blocked)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	e.Unblock(d.Key)
	d = e.Check(context.Background(), req)
	assert.False(t, d.Blocked, "unblocked key is evaluated normally again")
}

func TestRuleTableEviction(t *testing.T) {
	e := testEngine(t, nil) // MaxRules: 5

	first := addRule(t, e, &store.Rule{Name: "r0", Active: true})
	for i := 1; i < 5; i++ {
		addRule(t, e, &store.Rule{Name: "rn", Active: true})
	}
	require.Len(t, e.ListRules(), 5)

	addRule(t, e, &store.Rule{Name: "overflow", Active: true})
	assert.Len(t, e.ListRules(), 5)

	_, err := e.GetRule(first.ID)
	assert.ErrorIs(t, err, apperror.ErrRuleNotFound, "oldest rule evicted")
}

func TestRuleCRUD(t *testing.T) {
	mirror := store.NewMemory()
	e := testEngine(t, mirror)

	r := addRule(t, e, &store.Rule{Name: "one", Active: true})
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, int64(60000), r.WindowMs, "defaults applied")
	assert.Equal(t, 100, r.MaxRequests)

	t.Run("persisted to mirror", func(t *testing.T) {
		rules, err := mirror.ListRules(context.Background())
		require.NoError(t, err)
		assert.Len(t, rules, 1)
	})

	t.Run("update", func(t *testing.T) {
		r.MaxRequests = 7
		updated, err := e.UpdateRule(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 7, updated.MaxRequests)

		_, err = e.UpdateRule(context.Background(), &store.Rule{ID: "ghost"})
		assert.ErrorIs(t, err, apperror.ErrRuleNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, e.DeleteRule(context.Background(), r.ID))
		assert.ErrorIs(t, e.DeleteRule(context.Background(), r.ID), apperror.ErrRuleNotFound)

		rules, err := mirror.ListRules(context.Background())
		require.NoError(t, err)
		assert.Empty(t, rules)
	})
}

func TestLoadRules(t *testing.T) {
	mirror := store.NewMemory()
	seed := testEngine(t, mirror)
	addRule(t, seed, &store.Rule{Name: "persisted", MaxRequests: 1, Active: true})

	restored := testEngine(t, mirror)
	require.NoError(t, restored.LoadRules(context.Background()))

	rules := restored.ListRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "persisted", rules[0].Name)
}

func TestDisabledEngineAllowsAll(t *testing.T) {
	e := NewEngine(Config{Enabled: false}, NewMemoryCounters(), nil)

	d := e.Check(context.Background(), Request{Identity: violation.Identity{IP: "10.0.0.1"}})
	assert.True(t, d.Allowed)
}

func TestStatsAggregation(t *testing.T) {
	e := testEngine(t, nil)
	addRule(t, e, &store.Rule{Name: "tight", WindowMs: 60000, MaxRequests: 1, Active: true})

	for _, ip := range []string{"10.0.0.1", "10.0.0.1", "10.0.0.2"} {
		req := Request{Identity: violation.Identity{IP: ip, TenantID: "t1"}, Endpoint: "/api/x"}
		e.Check(context.Background(), req)
	}
	// Budgets are shared per tenant key, so after the first allowed
	// request the remaining two violated.
	stats := e.Stats(time.Hour)
	assert.Equal(t, 2, stats.Total)
	require.NotEmpty(t, stats.TopTenants)
	assert.Equal(t, "t1", stats.TopTenants[0].Key)
	assert.NotEmpty(t, stats.Hourly)

	assert.Equal(t, 2, e.ClearViolations())
	assert.Equal(t, 0, e.Stats(time.Hour).Total)
}

func TestViolationTrackingBounded(t *testing.T) {
	t.Run("stale histories are swept", func(t *testing.T) {
		e := testEngine(t, nil)
		e.config.BlockPeriod = 20 * time.Millisecond

		e.maybeBlock("tenant:t1", "r1")
		e.maybeBlock("tenant:t2", "r1")
		require.Len(t, e.violationTimes, 2)

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, 2, e.CleanupStale())
		assert.Empty(t, e.violationTimes)
	})

	t.Run("capacity is enforced", func(t *testing.T) {
		e := testEngine(t, nil)

		now := time.Now()
		e.vmu.Lock()
		for i := 0; i < maxTrackedKeys; i++ {
			e.violationTimes["tenant:t"+strconv.Itoa(i)] = []time.Time{now}
		}
		e.vmu.Unlock()

		e.maybeBlock("tenant:fresh", "r1")

		e.vmu.Lock()
		defer e.vmu.Unlock()
		assert.LessOrEqual(t, len(e.violationTimes), maxTrackedKeys)
		assert.Contains(t, e.violationTimes, "tenant:fresh")
	})
}
