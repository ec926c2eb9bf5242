package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// Key prefixes in BadgerDB.
const (
	prefixTenant = "tenant/"
	prefixUser   = "user/"
	prefixRule   = "rule/"
)

// BadgerStore is an embedded-KV implementation of Store. Records are
// JSON-encoded under typed key prefixes; domain lookups scan the tenant
// prefix, which is fine at back-office tenant counts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the store under dataDir.
func OpenBadger(dataDir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(filepath.Join(dataDir, "gate"))
	opts.Logger = nil // Disable badger logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	log.Info().Str("dir", opts.Dir).Msg("Gate store opened")

	return &BadgerStore{db: db}, nil
}

// Close shuts down the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func (s *BadgerStore) get(key []byte) ([]byte, error) {
	var val []byte

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		val, err = item.ValueCopy(nil)

		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}

	return val, err
}

func (s *BadgerStore) set(key, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (s *BadgerStore) delete(key []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// scan performs a prefix scan and returns the raw values.
func (s *BadgerStore) scan(prefix []byte) ([][]byte, error) {
	var results [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			results = append(results, val)
		}

		return nil
	})

	return results, err
}

// Tenant operations

func (s *BadgerStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	data, err := s.get([]byte(prefixTenant + id))
	if err != nil {
		return nil, err
	}

	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}

	return &t, nil
}

func (s *BadgerStore) SaveTenant(ctx context.Context, t *Tenant) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	return s.set([]byte(prefixTenant+t.ID), data)
}

func (s *BadgerStore) DeleteTenant(ctx context.Context, id string) error {
	return s.delete([]byte(prefixTenant + id))
}

func (s *BadgerStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	results, err := s.scan([]byte(prefixTenant))
	if err != nil {
		return nil, err
	}

	tenants := make([]*Tenant, 0, len(results))
	for _, data := range results {
		var t Tenant
		if err := json.Unmarshal(data, &t); err != nil {
			continue
		}
		tenants = append(tenants, &t)
	}

	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].Name < tenants[j].Name
	})

	return tenants, nil
}

func (s *BadgerStore) TenantByDomain(ctx context.Context, domain string) (*Tenant, error) {
	return s.findTenant(ctx, func(t *Tenant) bool {
		return strings.EqualFold(t.Domain, domain)
	})
}

func (s *BadgerStore) TenantByName(ctx context.Context, name string) (*Tenant, error) {
	re, err := regexp.Compile(`(?i)^` + regexp.QuoteMeta(name) + `$`)
	if err != nil {
		return nil, err
	}

	return s.findTenant(ctx, func(t *Tenant) bool {
		return re.MatchString(t.Name) || strings.EqualFold(t.Subdomain, name)
	})
}

func (s *BadgerStore) TenantByCustomDomain(ctx context.Context, domain string) (*Tenant, error) {
	return s.findTenant(ctx, func(t *Tenant) bool {
		for _, d := range t.CustomDomains {
			if strings.EqualFold(d, domain) {
				return true
			}
		}
		return false
	})
}

func (s *BadgerStore) findTenant(ctx context.Context, match func(*Tenant) bool) (*Tenant, error) {
	tenants, err := s.ListTenants(ctx)
	if err != nil {
		return nil, err
	}

	for _, t := range tenants {
		if t.Status != TenantStatusDeleted && match(t) {
			return t, nil
		}
	}

	return nil, ErrNotFound
}

// User operations

func (s *BadgerStore) GetUser(ctx context.Context, id string) (*User, error) {
	data, err := s.get([]byte(prefixUser + id))
	if err != nil {
		return nil, err
	}

	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}

	return &u, nil
}

func (s *BadgerStore) SaveUser(ctx context.Context, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	return s.set([]byte(prefixUser+u.ID), data)
}

func (s *BadgerStore) ListUsers(ctx context.Context, tenantID string) ([]*User, error) {
	results, err := s.scan([]byte(prefixUser))
	if err != nil {
		return nil, err
	}

	users := make([]*User, 0, len(results))
	for _, data := range results {
		var u User
		if err := json.Unmarshal(data, &u); err != nil {
			continue
		}
		if tenantID == "" || u.TenantID == tenantID {
			users = append(users, &u)
		}
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Email < users[j].Email
	})

	return users, nil
}

// Rule mirror operations

func (s *BadgerStore) SaveRule(ctx context.Context, r *Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}

	return s.set([]byte(prefixRule+r.ID), data)
}

func (s *BadgerStore) DeleteRule(ctx context.Context, id string) error {
	return s.delete([]byte(prefixRule + id))
}

func (s *BadgerStore) ListRules(ctx context.Context) ([]*Rule, error) {
	results, err := s.scan([]byte(prefixRule))
	if err != nil {
		return nil, err
	}

	rules := make([]*Rule, 0, len(results))
	for _, data := range results {
		var r Rule
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		rules = append(rules, &r)
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})

	return rules, nil
}
