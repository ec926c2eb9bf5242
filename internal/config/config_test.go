package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tenantgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", Options{})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.PortalPort)
	assert.Equal(t, 8081, cfg.AdminPort)
	assert.Equal(t, "localhost", cfg.Domain.MainDomain)
	assert.Equal(t, []string{"www", "admin"}, cfg.Domain.SuperAdminSubdomains)
	assert.Equal(t, "portal", cfg.Domain.TenantDomainPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Resolution.CacheTTL)
	assert.Equal(t, 2*time.Second, cfg.Resolution.LookupTimeout)
	assert.Equal(t, "memory", cfg.RateLimit.CounterBackend)
	assert.True(t, cfg.Validation.RequireActiveTenant)
	assert.False(t, cfg.Validation.StrictMode, "strict mode defaults off outside production")
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
environment: production
portal_port: 9090
domain:
  main_domain: saas.example
  tenant_domain_prefix: app
resolution:
  cache_ttl: 30s
auth:
  jwt_secret: s3cret
`)

	cfg, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.PortalPort)
	assert.Equal(t, "saas.example", cfg.Domain.MainDomain)
	assert.Equal(t, "app", cfg.Domain.TenantDomainPrefix)
	assert.Equal(t, 30*time.Second, cfg.Resolution.CacheTTL)
	assert.True(t, cfg.Validation.StrictMode, "strict mode defaults on in production")
	assert.True(t, cfg.IsProduction())
}

func TestStrictModeOverride(t *testing.T) {
	path := writeConfig(t, `
environment: production
validation:
  strict_mode: false
auth:
  jwt_secret: s3cret
`)

	cfg, err := Load(path, Options{})
	require.NoError(t, err)
	assert.False(t, cfg.Validation.StrictMode)
}

func TestOptionsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
portal_port: 9090
data_dir: /tmp/from-file
`)

	cfg, err := Load(path, Options{DataDir: "/tmp/from-flag", PortalPort: 7070})
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.PortalPort)
	assert.Equal(t, "/tmp/from-flag", cfg.DataDir)
	assert.Equal(t, 8081, cfg.AdminPort)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TENANTGATE_DOMAIN_MAIN_DOMAIN", "env.example")

	cfg, err := Load("", Options{})
	require.NoError(t, err)
	assert.Equal(t, "env.example", cfg.Domain.MainDomain)
}

func TestValidation(t *testing.T) {
	t.Run("bad counter backend", func(t *testing.T) {
		path := writeConfig(t, `
rate_limit:
  counter_backend: memcached
`)
		_, err := Load(path, Options{})
		assert.ErrorContains(t, err, "counter_backend")
	})

	t.Run("production requires jwt secret", func(t *testing.T) {
		path := writeConfig(t, `
environment: production
`)
		_, err := Load(path, Options{})
		assert.ErrorContains(t, err, "jwt_secret")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := Load("/nonexistent/tenantgate.yaml", Options{})
		assert.Error(t, err)
	})
}
