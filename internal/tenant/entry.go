// internal/tenant/entry.go
//
// Tenant cache entry and aggregate.
//
// Context
// -------
// A live Tenant is one site's built context: its `site` row, its
// `site_config` map, and the handles platform.Build opened for it.  The
// cache stores a pointer to Tenant inside `entry`, along with a `lastSeen`
// UnixNano timestamp used by the evictor for idle and LRU eviction.
//
// Notes
// -----
//   - `Close` is invoked only by the cache; request code must treat the
//     Tenant and its context as immutable.
package tenant

import (
	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/internal/tenant/meta"
	"github.com/yanizio/keel/platform"
)

type entry struct {
	tenant   *Tenant
	lastSeen int64 // UnixNano
}

// Tenant groups one site's runtime handles.
type Tenant struct {
	Meta    meta.Record
	Config  map[string]string
	handles *platform.Handles
}

// Host is the site's host name, also its context name.
func (t *Tenant) Host() string { return t.Meta.Host }

// Context is the context every unit of work for this site runs in.
func (t *Tenant) Context() *appctx.Context { return t.handles.Context }

// Handles exposes the opened resources, for workers draining memory queues.
func (t *Tenant) Handles() *platform.Handles { return t.handles }

// Close releases the tenant's pools and writers.
func (t *Tenant) Close() error { return t.handles.Close() }
