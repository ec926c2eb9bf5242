// Package domainparse classifies inbound request hostnames against the
// platform's configured main domain. Parsing is pure and deterministic:
// no I/O, no caching, no clock.
package domainparse

import (
	"strings"
)

// Descriptor is the structured classification of a request hostname.
// Exactly one of IsCustomDomain and IsSubdomain is true for tenant-routable
// hosts; both are false for the main domain, localhost, and empty hosts.
type Descriptor struct {
	Host            string `json:"host"`
	Protocol        string `json:"protocol"`
	Port            string `json:"port,omitempty"`
	Subdomain       string `json:"subdomain,omitempty"`
	Domain          string `json:"domain"`
	TLD             string `json:"tld,omitempty"`
	TenantCandidate string `json:"tenantCandidate,omitempty"`
	IsCustomDomain  bool   `json:"isCustomDomain"`
	IsSubdomain     bool   `json:"isSubdomain"`
}

// Parser classifies hostnames relative to a configured main domain.
type Parser struct {
	mainDomain   string
	mainLabels   []string
	tenantPrefix string
}

// NewParser creates a parser for the given main domain (e.g. "saas.example").
// tenantPrefix names a reserved routing subdomain (e.g. "portal") under
// which the second label carries the real tenant slug.
func NewParser(mainDomain, tenantPrefix string) *Parser {
	mainDomain = strings.ToLower(strings.TrimSuffix(mainDomain, "."))
	return &Parser{
		mainDomain:   mainDomain,
		mainLabels:   strings.Split(mainDomain, "."),
		tenantPrefix: strings.ToLower(tenantPrefix),
	}
}

// MainDomain returns the configured main domain.
func (p *Parser) MainDomain() string { return p.mainDomain }

// Parse classifies host into a Descriptor. The port is split off and
// recorded but plays no part in classification.
func (p *Parser) Parse(host, protocol string) Descriptor {
	d := Descriptor{Protocol: protocol}

	host, port := splitHostPort(host)
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	d.Host = host
	d.Port = port

	if host == "" {
		return d
	}

	// Local development hosts are neither subdomains nor custom domains.
	if strings.HasPrefix(host, "localhost") {
		d.Domain = host
		return d
	}

	labels := strings.Split(host, ".")
	if len(labels) >= 2 {
		d.TLD = labels[len(labels)-1]
		d.Domain = strings.Join(labels[len(labels)-2:], ".")
	} else {
		d.Domain = host
	}

	if host == p.mainDomain {
		return d
	}

	// Subdomain of the main domain: the trailing labels match the main
	// domain exactly and at least one label precedes them.
	n := len(p.mainLabels)
	if len(labels) > n && strings.Join(labels[len(labels)-n:], ".") == p.mainDomain {
		d.IsSubdomain = true
		d.Subdomain = labels[0]
		d.Domain = p.mainDomain
		d.TenantCandidate = labels[0]

		// Reserved routing prefix: "portal.<slug>.<main>" carries the
		// tenant slug in the second label.
		if p.tenantPrefix != "" && labels[0] == p.tenantPrefix && len(labels) > n+1 {
			d.TenantCandidate = labels[1]
		}

		return d
	}

	// Anything else with at least two labels is a tenant custom domain.
	if len(labels) >= 2 {
		d.IsCustomDomain = true
		d.TenantCandidate = labels[0]
	}

	return d
}

// splitHostPort strips an optional port, tolerating bracketed IPv6 hosts.
func splitHostPort(host string) (string, string) {
	if strings.HasPrefix(host, "[") {
		if idx := strings.LastIndex(host, "]:"); idx > 0 {
			return host[1:idx], host[idx+2:]
		}
		return strings.Trim(host, "[]"), ""
	}

	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		// More than one colon without brackets means a bare IPv6 address.
		if strings.Count(host, ":") == 1 {
			return host[:idx], host[idx+1:]
		}
	}

	return host, ""
}
