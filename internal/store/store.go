// Package store persists the records the gate reads and mirrors: tenant
// and user records, and the rate-limit rule mirror used for restart
// recovery. The gate itself only ever reads tenants and users; writes go
// through the admin API.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist. Callers match it
// with errors.Is.
var ErrNotFound = errors.New("record not found")

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusSuspended TenantStatus = "suspended"
	TenantStatusDeleted   TenantStatus = "deleted"
)

// Subscription is the billing state the validator consults.
type Subscription struct {
	Status   string `json:"status"` // active, past_due, canceled
	MaxUsers int    `json:"maxUsers"`
}

// Tenant is a customer organization with its own domain or subdomain.
type Tenant struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Domain        string       `json:"domain"` // primary domain, e.g. "acme.saas.example"
	Subdomain     string       `json:"subdomain,omitempty"`
	CustomDomains []string     `json:"customDomains,omitempty"`
	Status        TenantStatus `json:"status"`
	TrialExpired  bool         `json:"trialExpired"`
	Subscription  Subscription `json:"subscription"`
	UserCount     int          `json:"userCount"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// User is a member of exactly one tenant.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	TenantID  string    `json:"tenantId"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Rule is a persisted rate-limit rule. The live table in the rate-limit
// engine owns rule semantics; this record is the durable mirror.
type Rule struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	TenantID    string    `json:"tenantId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	APIKeyID    string    `json:"apiKeyId,omitempty"`
	IPAddress   string    `json:"ipAddress,omitempty"`
	Endpoint    string    `json:"endpoint,omitempty"`
	Method      string    `json:"method,omitempty"`
	WindowMs    int64     `json:"windowMs"`
	MaxRequests int       `json:"maxRequests"`
	Priority    int       `json:"priority"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TenantLookup is the read-only query surface the resolver depends on.
type TenantLookup interface {
	// TenantByDomain matches a tenant's primary domain exactly.
	TenantByDomain(ctx context.Context, domain string) (*Tenant, error)

	// TenantByName matches the tenant-name candidate against the tenant
	// name (case-insensitive) or the explicit subdomain field.
	TenantByName(ctx context.Context, name string) (*Tenant, error)

	// TenantByCustomDomain matches membership in a tenant's registered
	// custom-domain list.
	TenantByCustomDomain(ctx context.Context, domain string) (*Tenant, error)
}

// Store is the full persistence surface.
type Store interface {
	TenantLookup

	GetTenant(ctx context.Context, id string) (*Tenant, error)
	SaveTenant(ctx context.Context, t *Tenant) error
	DeleteTenant(ctx context.Context, id string) error
	ListTenants(ctx context.Context) ([]*Tenant, error)

	GetUser(ctx context.Context, id string) (*User, error)
	SaveUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context, tenantID string) ([]*User, error)

	SaveRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]*Rule, error)

	Close() error
}
