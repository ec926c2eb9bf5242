package health

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAggregation(t *testing.T) {
	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("connection refused") }

	t.Run("all healthy", func(t *testing.T) {
		c := NewChecker("test")
		c.Register("store", ok)
		c.RegisterOptional("redis", ok)

		report := c.Check(context.Background())
		assert.Equal(t, StatusHealthy, report.Status)
		assert.Len(t, report.Components, 2)
	})

	t.Run("optional failure degrades", func(t *testing.T) {
		c := NewChecker("test")
		c.Register("store", ok)
		c.RegisterOptional("redis", bad)

		report := c.Check(context.Background())
		assert.Equal(t, StatusDegraded, report.Status)
		assert.Equal(t, "connection refused", report.Components["redis"].Error)
	})

	t.Run("required failure is unhealthy", func(t *testing.T) {
		c := NewChecker("test")
		c.Register("store", bad)
		c.RegisterOptional("redis", ok)

		report := c.Check(context.Background())
		assert.Equal(t, StatusUnhealthy, report.Status)
	})
}

func TestHandlers(t *testing.T) {
	bad := func(context.Context) error { return errors.New("down") }

	t.Run("healthy report", func(t *testing.T) {
		c := NewChecker("test")
		w := httptest.NewRecorder()
		c.Handler()(w, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, 200, w.Code)
		assert.Contains(t, w.Body.String(), `"healthy"`)
	})

	t.Run("unhealthy report is 503", func(t *testing.T) {
		c := NewChecker("test")
		c.Register("store", bad)

		w := httptest.NewRecorder()
		c.Handler()(w, httptest.NewRequest("GET", "/health", nil))
		assert.Equal(t, 503, w.Code)
	})

	t.Run("liveness always ok", func(t *testing.T) {
		c := NewChecker("test")
		c.Register("store", bad)

		w := httptest.NewRecorder()
		c.LiveHandler()(w, httptest.NewRequest("GET", "/health/live", nil))
		assert.Equal(t, 200, w.Code)
	})

	t.Run("readiness follows required components", func(t *testing.T) {
		c := NewChecker("test")
		c.Register("store", bad)

		w := httptest.NewRecorder()
		c.ReadyHandler()(w, httptest.NewRequest("GET", "/health/ready", nil))
		require.Equal(t, 503, w.Code)
		assert.Contains(t, w.Body.String(), `"ready":false`)
	})
}
