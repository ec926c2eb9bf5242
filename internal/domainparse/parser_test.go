package domainparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSubdomain(t *testing.T) {
	p := NewParser("acme.io", "portal")

	t.Run("plain subdomain", func(t *testing.T) {
		d := p.Parse("foo.acme.io", "https")

		assert.True(t, d.IsSubdomain)
		assert.False(t, d.IsCustomDomain)
		assert.Equal(t, "foo", d.Subdomain)
		assert.Equal(t, "foo", d.TenantCandidate)
		assert.Equal(t, "acme.io", d.Domain)
	})

	t.Run("routing prefix carries slug in second label", func(t *testing.T) {
		d := p.Parse("portal.tenant42.acme.io", "https")

		assert.True(t, d.IsSubdomain)
		assert.Equal(t, "portal", d.Subdomain)
		assert.Equal(t, "tenant42", d.TenantCandidate)
	})

	t.Run("prefix without slug falls back to prefix label", func(t *testing.T) {
		d := p.Parse("portal.acme.io", "https")

		assert.True(t, d.IsSubdomain)
		assert.Equal(t, "portal", d.TenantCandidate)
	})

	t.Run("main domain is neither", func(t *testing.T) {
		d := p.Parse("acme.io", "https")

		assert.False(t, d.IsSubdomain)
		assert.False(t, d.IsCustomDomain)
	})

	t.Run("case and trailing dot normalized", func(t *testing.T) {
		d := p.Parse("Foo.ACME.io.", "https")

		assert.True(t, d.IsSubdomain)
		assert.Equal(t, "foo", d.Subdomain)
	})
}

func TestParseCustomDomain(t *testing.T) {
	p := NewParser("acme.io", "portal")

	d := p.Parse("clientsite.com", "https")

	assert.True(t, d.IsCustomDomain)
	assert.False(t, d.IsSubdomain)
	assert.Equal(t, "clientsite", d.TenantCandidate)
	assert.Equal(t, "clientsite.com", d.Domain)
	assert.Equal(t, "com", d.TLD)

	// A subdomain of someone else's domain is still a custom domain.
	d = p.Parse("app.clientsite.com", "https")
	assert.True(t, d.IsCustomDomain)
	assert.Equal(t, "app", d.TenantCandidate)
}

func TestParseLocalhost(t *testing.T) {
	p := NewParser("acme.io", "portal")

	for _, host := range []string{"localhost", "localhost:3000"} {
		d := p.Parse(host, "http")
		assert.False(t, d.IsSubdomain, host)
		assert.False(t, d.IsCustomDomain, host)
	}

	d := p.Parse("localhost:3000", "http")
	assert.Equal(t, "localhost", d.Host)
	assert.Equal(t, "3000", d.Port)
}

func TestParseEdgeCases(t *testing.T) {
	p := NewParser("acme.io", "portal")

	t.Run("empty host", func(t *testing.T) {
		d := p.Parse("", "https")
		assert.Empty(t, d.Host)
		assert.False(t, d.IsSubdomain)
		assert.False(t, d.IsCustomDomain)
	})

	t.Run("single label is neither", func(t *testing.T) {
		d := p.Parse("intranet", "http")
		assert.False(t, d.IsSubdomain)
		assert.False(t, d.IsCustomDomain)
	})

	t.Run("port stripped before classification", func(t *testing.T) {
		d := p.Parse("foo.acme.io:8443", "https")
		assert.True(t, d.IsSubdomain)
		assert.Equal(t, "8443", d.Port)
	})

	t.Run("deep subdomain keeps leftmost label", func(t *testing.T) {
		d := p.Parse("a.b.acme.io", "https")
		assert.True(t, d.IsSubdomain)
		assert.Equal(t, "a", d.Subdomain)
		assert.Equal(t, "a", d.TenantCandidate)
	})
}
