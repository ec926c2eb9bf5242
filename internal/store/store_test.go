package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest runs the shared conformance suite against both
// implementations.
func storeUnderTest(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"badger": badgerStore,
	}
}

func seedTenant(t *testing.T, s Store, tenant *Tenant) {
	t.Helper()
	require.NoError(t, s.SaveTenant(context.Background(), tenant))
}

func TestTenantCRUD(t *testing.T) {
	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.GetTenant(ctx, "t1")
			assert.ErrorIs(t, err, ErrNotFound)

			seedTenant(t, s, &Tenant{
				ID:        "t1",
				Name:      "Acme",
				Domain:    "acme.saas.example",
				Status:    TenantStatusActive,
				CreatedAt: time.Now(),
			})

			got, err := s.GetTenant(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "Acme", got.Name)

			list, err := s.ListTenants(ctx)
			require.NoError(t, err)
			assert.Len(t, list, 1)

			require.NoError(t, s.DeleteTenant(ctx, "t1"))
			_, err = s.GetTenant(ctx, "t1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestTenantLookups(t *testing.T) {
	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			seedTenant(t, s, &Tenant{
				ID:            "t1",
				Name:          "Acme",
				Domain:        "acme.saas.example",
				Subdomain:     "acme-portal",
				CustomDomains: []string{"acme-corp.com"},
				Status:        TenantStatusActive,
			})
			seedTenant(t, s, &Tenant{
				ID:     "t2",
				Name:   "Gone",
				Domain: "gone.saas.example",
				Status: TenantStatusDeleted,
			})

			t.Run("by domain", func(t *testing.T) {
				got, err := s.TenantByDomain(ctx, "ACME.saas.example")
				require.NoError(t, err)
				assert.Equal(t, "t1", got.ID)
			})

			t.Run("by name or subdomain field", func(t *testing.T) {
				got, err := s.TenantByName(ctx, "acme")
				require.NoError(t, err)
				assert.Equal(t, "t1", got.ID)

				got, err = s.TenantByName(ctx, "acme-portal")
				require.NoError(t, err)
				assert.Equal(t, "t1", got.ID)
			})

			t.Run("by custom domain", func(t *testing.T) {
				got, err := s.TenantByCustomDomain(ctx, "acme-corp.com")
				require.NoError(t, err)
				assert.Equal(t, "t1", got.ID)
			})

			t.Run("deleted tenants never match", func(t *testing.T) {
				_, err := s.TenantByDomain(ctx, "gone.saas.example")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("no match", func(t *testing.T) {
				_, err := s.TenantByDomain(ctx, "other.example")
				assert.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func TestUserRecords(t *testing.T) {
	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.SaveUser(ctx, &User{
				ID:       "u1",
				Email:    "a@acme.test",
				TenantID: "t1",
				Role:     "member",
				Active:   true,
			}))
			require.NoError(t, s.SaveUser(ctx, &User{
				ID:       "u2",
				Email:    "b@other.test",
				TenantID: "t2",
				Role:     "admin",
				Active:   true,
			}))

			u, err := s.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, "t1", u.TenantID)

			users, err := s.ListUsers(ctx, "t1")
			require.NoError(t, err)
			assert.Len(t, users, 1)

			users, err = s.ListUsers(ctx, "")
			require.NoError(t, err)
			assert.Len(t, users, 2)
		})
	}
}

func TestRuleMirror(t *testing.T) {
	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.SaveRule(ctx, &Rule{
				ID:          "r1",
				Name:        "default",
				WindowMs:    60000,
				MaxRequests: 100,
				Active:      true,
				CreatedAt:   time.Now().Add(-time.Minute),
			}))
			require.NoError(t, s.SaveRule(ctx, &Rule{
				ID:          "r2",
				Name:        "strict",
				WindowMs:    60000,
				MaxRequests: 10,
				Priority:    5,
				Active:      true,
				CreatedAt:   time.Now(),
			}))

			rules, err := s.ListRules(ctx)
			require.NoError(t, err)
			require.Len(t, rules, 2)
			assert.Equal(t, "r1", rules[0].ID, "rules listed oldest first")

			require.NoError(t, s.DeleteRule(ctx, "r1"))
			rules, err = s.ListRules(ctx)
			require.NoError(t, err)
			assert.Len(t, rules, 1)
		})
	}
}
