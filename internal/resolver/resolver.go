// Package resolver derives the tenant key for a request. Resolution is
// pure string work; callers decide what an empty (unresolved) key means.
package resolver

import (
	"net"
	"strings"
)

// Subdomains that never map to an account.
var reservedSubdomains = map[string]bool{
	"www":   true,
	"api":   true,
	"app":   true,
	"admin": true,
}

// Resolver extracts a tenant key from request attributes.
type Resolver struct {
	baseDomain string
}

func New(baseDomain string) *Resolver {
	return &Resolver{baseDomain: strings.ToLower(strings.TrimSuffix(baseDomain, "."))}
}

// Resolve returns the tenant key for a request, checking in order:
// the Host subdomain, the `account` route parameter, then a /a/{slug}
// path prefix. Returns "" when nothing resolves.
func (r *Resolver) Resolve(host, routeParam, path string) string {
	if key := r.FromHost(host); key != "" {
		return key
	}
	if routeParam != "" {
		return strings.ToLower(routeParam)
	}
	return FromPath(path)
}

// FromHost extracts the subdomain portion of host when it is a direct
// child of the configured base domain. The apex itself and reserved
// subdomains do not resolve.
func (r *Resolver) FromHost(host string) string {
	if host == "" || r.baseDomain == "" {
		return ""
	}
	// Strip a port if present; net.SplitHostPort fails on bare hosts.
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSuffix(host, "."))

	if host == r.baseDomain {
		return ""
	}
	suffix := "." + r.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	sub := strings.TrimSuffix(host, suffix)
	// Only direct children count; deeper labels are not tenant keys.
	if sub == "" || strings.Contains(sub, ".") {
		return ""
	}
	if reservedSubdomains[sub] {
		return ""
	}
	return sub
}

// FromPath matches a leading /a/{slug} segment.
func FromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	parts := strings.SplitN(trimmed, "/", 3)
	if len(parts) >= 2 && parts[0] == "a" && parts[1] != "" {
		return strings.ToLower(parts[1])
	}
	return ""
}
