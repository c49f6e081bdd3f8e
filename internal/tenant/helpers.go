// internal/tenant/helpers.go
//
// Host normalisation shared by the cache, the HTTP resolver, and tests.
//
// Context
// -------
//   - `hostOnly` strips the port from a Host header and lowercases it.
//   - `resolveLookupHost` maps the literal host "localhost" to an alias
//     from `KEEL_LOCALHOST_ALIAS` or `tenant.localhost_alias`, so dev
//     instances can masquerade as any real site row.
//
// Notes
// -----
//   - No logging here; caller decides what to log.
package tenant

import (
	"net"
	"os"
	"strings"
)

func hostOnly(h string) string {
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	return strings.ToLower(strings.TrimSuffix(h, "."))
}

// resolveLookupHost returns the host used when querying the `site` table.
func (c *Cache) resolveLookupHost(h string) string {
	h = hostOnly(h)
	if h != "localhost" {
		return h
	}
	if alias := os.Getenv("KEEL_LOCALHOST_ALIAS"); alias != "" {
		return alias
	}
	if c.alias != "" {
		return c.alias
	}
	return h
}
