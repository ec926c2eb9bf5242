// Package config provides configuration management for TenantGate.
//
// Configuration is loaded with the following precedence:
//  1. Command-line flags (highest priority)
//  2. Environment variables (TENANTGATE_* prefix)
//  3. Configuration file (tenantgate.yaml)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for TenantGate.
type Config struct {
	// Environment is "production" or "development"; it drives the
	// strict-mode default.
	Environment string `mapstructure:"environment"`

	// DataDir is where the embedded store lives.
	DataDir string `mapstructure:"data_dir"`

	// Network ports
	PortalPort int `mapstructure:"portal_port"`
	AdminPort  int `mapstructure:"admin_port"`

	Domain     DomainConfig     `mapstructure:"domain"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	Validation ValidationConfig `mapstructure:"validation"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Security   SecurityConfig   `mapstructure:"security"`
	Auth       AuthConfig       `mapstructure:"auth"`

	// TrustedProxies are IPs/CIDRs whose forwarded headers are trusted.
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	LogLevel string `mapstructure:"log_level"`
}

// DomainConfig describes the platform's domain layout.
type DomainConfig struct {
	// MainDomain is the platform domain tenants get subdomains under.
	MainDomain string `mapstructure:"main_domain"`

	// SuperAdminSubdomains short-circuit resolution to the super-admin
	// console (no tenant).
	SuperAdminSubdomains []string `mapstructure:"super_admin_subdomains"`

	// SuperAdminDomains are full hostnames treated as the console.
	SuperAdminDomains []string `mapstructure:"super_admin_domains"`

	// APISubdomains short-circuit resolution to the API surface.
	APISubdomains []string `mapstructure:"api_subdomains"`

	// APIDomains are full hostnames treated as the API surface.
	APIDomains []string `mapstructure:"api_domains"`

	// TenantDomainPrefix is the reserved routing subdomain under which
	// the second label carries the tenant slug (e.g. "portal").
	TenantDomainPrefix string `mapstructure:"tenant_domain_prefix"`
}

// ResolutionConfig tunes the resolver.
type ResolutionConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	CacheMaxSize     int           `mapstructure:"cache_max_size"`
	LookupTimeout    time.Duration `mapstructure:"lookup_timeout"`
	RecentBufferSize int           `mapstructure:"recent_buffer_size"`
}

// ValidationConfig tunes the validator.
type ValidationConfig struct {
	// StrictMode turns degraded conditions (expired trial, inactive
	// user, domain mismatch) into hard denials instead of warnings.
	// Defaults to true when environment is "production".
	StrictMode bool `mapstructure:"strict_mode"`

	RequireActiveTenant      bool `mapstructure:"require_active_tenant"`
	ValidateUserTenantAccess bool `mapstructure:"validate_user_tenant_access"`
	AllowSuperAdmin          bool `mapstructure:"allow_super_admin"`
	LogValidationFailures    bool `mapstructure:"log_validation_failures"`
	CacheValidationResults   bool `mapstructure:"cache_validation_results"`

	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	CacheMaxSize int           `mapstructure:"cache_max_size"`
}

// RateLimitConfig tunes the rate-limit engine.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Defaults applied to rules created without explicit values.
	DefaultWindow      time.Duration `mapstructure:"default_window"`
	DefaultMaxRequests int           `mapstructure:"default_max_requests"`

	// MaxRules caps the in-memory rule table.
	MaxRules int `mapstructure:"max_rules"`

	// ViolationBufferSize caps the recent-violation ring.
	ViolationBufferSize int `mapstructure:"violation_buffer_size"`

	// Repeated violations within BlockPeriod hard-block the key for
	// BlockDuration.
	BlockThreshold int           `mapstructure:"block_threshold"`
	BlockPeriod    time.Duration `mapstructure:"block_period"`
	BlockDuration  time.Duration `mapstructure:"block_duration"`

	// CounterBackend is "memory" or "redis".
	CounterBackend string `mapstructure:"counter_backend"`
}

// RedisConfig configures the optional distributed counter backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig tunes the security screen.
type SecurityConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AuditOnly logs matches without blocking (shadow mode).
	AuditOnly bool `mapstructure:"audit_only"`

	BruteForceMaxAttempts   int           `mapstructure:"brute_force_max_attempts"`
	BruteForceWindow        time.Duration `mapstructure:"brute_force_window"`
	BruteForceBlockDuration time.Duration `mapstructure:"brute_force_block_duration"`
}

// AuthConfig configures session-token validation.
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// Options are command-line overrides applied on top of file/env config.
type Options struct {
	DataDir    string
	PortalPort int
	AdminPort  int
}

// Load reads configuration from the given file (or standard locations when
// empty), applies environment and flag overrides, and validates the result.
func Load(configPath string, opts Options) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("tenantgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tenantgate")
		v.AddConfigPath("$HOME/.tenantgate")

		// Ignore error if config file not found
		_ = v.ReadInConfig()
	}

	v.SetEnvPrefix("TENANTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Strict mode defaults on in production; the environment value has
	// to be known before the default can be derived.
	v.SetDefault("validation.strict_mode", v.GetString("environment") == "production")

	if opts.DataDir != "" {
		v.Set("data_dir", opts.DataDir)
	}
	if opts.PortalPort != 0 {
		v.Set("portal_port", opts.PortalPort)
	}
	if opts.AdminPort != 0 {
		v.Set("admin_port", opts.AdminPort)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("data_dir", "./data")
	v.SetDefault("portal_port", 8080)
	v.SetDefault("admin_port", 8081)
	v.SetDefault("log_level", "info")

	v.SetDefault("domain.main_domain", "localhost")
	v.SetDefault("domain.super_admin_subdomains", []string{"www", "admin"})
	v.SetDefault("domain.super_admin_domains", []string{})
	v.SetDefault("domain.api_subdomains", []string{"api"})
	v.SetDefault("domain.api_domains", []string{})
	v.SetDefault("domain.tenant_domain_prefix", "portal")

	v.SetDefault("resolution.cache_ttl", 5*time.Minute)
	v.SetDefault("resolution.cache_max_size", 1000)
	v.SetDefault("resolution.lookup_timeout", 2*time.Second)
	v.SetDefault("resolution.recent_buffer_size", 100)

	v.SetDefault("validation.require_active_tenant", true)
	v.SetDefault("validation.validate_user_tenant_access", true)
	v.SetDefault("validation.allow_super_admin", true)
	v.SetDefault("validation.log_validation_failures", true)
	v.SetDefault("validation.cache_validation_results", true)
	v.SetDefault("validation.cache_ttl", time.Minute)
	v.SetDefault("validation.cache_max_size", 5000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.default_window", time.Minute)
	v.SetDefault("rate_limit.default_max_requests", 100)
	v.SetDefault("rate_limit.max_rules", 100)
	v.SetDefault("rate_limit.violation_buffer_size", 1000)
	v.SetDefault("rate_limit.block_threshold", 5)
	v.SetDefault("rate_limit.block_period", 10*time.Minute)
	v.SetDefault("rate_limit.block_duration", 15*time.Minute)
	v.SetDefault("rate_limit.counter_backend", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.enabled", true)
	v.SetDefault("security.audit_only", false)
	v.SetDefault("security.brute_force_max_attempts", 10)
	v.SetDefault("security.brute_force_window", 15*time.Minute)
	v.SetDefault("security.brute_force_block_duration", 30*time.Minute)

	v.SetDefault("auth.token_expiry", 24*time.Hour)
}

func (c *Config) validate() error {
	if c.Domain.MainDomain == "" {
		return fmt.Errorf("domain.main_domain is required")
	}

	if c.Resolution.CacheMaxSize <= 0 {
		return fmt.Errorf("resolution.cache_max_size must be positive")
	}

	if c.Validation.CacheMaxSize <= 0 {
		return fmt.Errorf("validation.cache_max_size must be positive")
	}

	switch c.RateLimit.CounterBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limit.counter_backend must be memory or redis, got %q", c.RateLimit.CounterBackend)
	}

	if c.RateLimit.CounterBackend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when rate_limit.counter_backend is redis")
	}

	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}

	return nil
}

// IsProduction reports whether the production environment is configured.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
