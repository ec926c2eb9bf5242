package store

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used for tests and ephemeral dev runs.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant
	users   map[string]*User
	rules   map[string]*Rule
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]*Tenant),
		users:   make(map[string]*User),
		rules:   make(map[string]*Rule),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t

	return &cp, nil
}

func (s *MemoryStore) SaveTenant(ctx context.Context, t *Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *t
	s.tenants[t.ID] = &cp

	return nil
}

func (s *MemoryStore) DeleteTenant(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tenants, id)

	return nil
}

func (s *MemoryStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]*Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		tenants = append(tenants, &cp)
	}

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].Name < tenants[j].Name
	})

	return tenants, nil
}

func (s *MemoryStore) TenantByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return s.findTenant(func(t *Tenant) bool {
		return strings.EqualFold(t.Domain, domain)
	})
}

func (s *MemoryStore) TenantByName(ctx context.Context, name string) (*Tenant, error) {
	re, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(name) + `$`)
	if err != nil {
		return nil, err
	}

	return s.findTenant(func(t *Tenant) bool {
		return re.MatchString(t.Name) || strings.EqualFold(t.Subdomain, name)
	})
}

func (s *MemoryStore) TenantByCustomDomain(ctx context.Context, domain string) (*Tenant, error) {
	return s.findTenant(func(t *Tenant) bool {
		for _, d := range t.CustomDomains {
			if strings.EqualFold(d, domain) {
				return true
			}
		}
		return false
	})
}

func (s *MemoryStore) findTenant(match func(*Tenant) bool) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Deterministic scan order so lookups are stable.
	ids := make([]string, 0, len(s.tenants))
	for id := range s.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := s.tenants[id]
		if t.Status != TenantStatusDeleted && match(t) {
			cp := *t
			return &cp, nil
		}
	}

	return nil, ErrNotFound
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u

	return &cp, nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.ID] = &cp

	return nil
}

func (s *MemoryStore) ListUsers(ctx context.Context, tenantID string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		if tenantID == "" || u.TenantID == tenantID {
			cp := *u
			users = append(users, &cp)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Email < users[j].Email
	})

	return users, nil
}

func (s *MemoryStore) SaveRule(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *r
	s.rules[r.ID] = &cp

	return nil
}

func (s *MemoryStore) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rules, id)

	return nil
}

func (s *MemoryStore) ListRules(ctx context.Context) ([]*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*Rule, 0, len(s.rules))
	for _, r := range s.rules {
		cp := *r
		rules = append(rules, &cp)
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	return rules, nil
}
