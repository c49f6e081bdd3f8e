// Package tenant caches one built context per site host.
//
// The cache is the multi-tenant appctx.Resolver: the HTTP middleware asks
// it for the request's host, and the Kafka consumer asks it for the
// tenant named in each message key.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/internal/logger"
	"github.com/yanizio/keel/internal/metrics"
	"github.com/yanizio/keel/platform"
)

// Defaults used when Options leaves a field zero.
const (
	IdleTTL       = 30 * time.Minute
	MaxEntries    = 100
	EvictInterval = 5 * time.Minute
)

// ErrNotFound is returned when a host is not present in the site table.
// It matches appctx.ErrUnresolved, so the middleware answers 404.
var ErrNotFound = fmt.Errorf("tenant not found: %w", appctx.ErrUnresolved)

// Options tune a Cache.
type Options struct {
	IdleTTL        time.Duration
	MaxEntries     int
	EvictInterval  time.Duration // < 0 disables the background evictor
	LocalhostAlias string
	Build          []platform.Option
}

// Cache lazily loads tenants, stores them in a sync.Map, and evicts them on
// idle TTL or LRU pressure.
type Cache struct {
	control    *sqlx.DB
	build      []platform.Option
	sfg        singleflight.Group
	m          sync.Map
	idleTTL    time.Duration
	maxEntries int
	alias      string

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

var _ appctx.Resolver = (*Cache)(nil)

// New constructs a Cache and starts the background evictor.
func New(control *sqlx.DB, opts Options) *Cache {
	if opts.IdleTTL == 0 {
		opts.IdleTTL = IdleTTL
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = MaxEntries
	}
	if opts.EvictInterval == 0 {
		opts.EvictInterval = EvictInterval
	}
	c := &Cache{
		control:    control,
		build:      opts.Build,
		idleTTL:    opts.IdleTTL,
		maxEntries: opts.MaxEntries,
		alias:      opts.LocalhostAlias,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if opts.EvictInterval > 0 {
		go c.evictLoop(opts.EvictInterval)
	} else {
		close(c.done)
	}
	return c
}

// Get returns the Tenant for host, loading it on demand.
func (c *Cache) Get(ctx context.Context, host string) (*Tenant, error) {
	host = c.resolveLookupHost(host)
	if t, ok := c.touch(host); ok {
		return t, nil
	}

	v, err, _ := c.sfg.Do(host, func() (any, error) {
		// Double-check after singleflight barrier.
		if t, ok := c.touch(host); ok {
			return t, nil
		}
		// One caller's cancellation must not fail the others sharing the load.
		ten, err := loadSite(context.WithoutCancel(ctx), c.control, host, c.build)
		if err != nil {
			metrics.TenantLoadErrorsTotal.Inc()
			return nil, err
		}
		c.m.Store(host, &entry{tenant: ten, lastSeen: time.Now().UnixNano()})
		metrics.TenantLoadTotal.Inc()
		metrics.ActiveTenants.Inc()
		logger.From(ctx).Infow("tenant loaded", "host", host)
		return ten, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Tenant), nil
}

func (c *Cache) touch(host string) (*Tenant, bool) {
	v, ok := c.m.Load(host)
	if !ok {
		return nil, false
	}
	ent := v.(*entry)
	atomic.StoreInt64(&ent.lastSeen, time.Now().UnixNano())
	return ent.tenant, true
}

// Resolve implements appctx.Resolver using the request's Host header.
func (c *Cache) Resolve(ctx context.Context, r *http.Request) (*appctx.Context, error) {
	return c.ResolveName(ctx, r.Host)
}

// ResolveName returns the context for a tenant host.
func (c *Cache) ResolveName(ctx context.Context, host string) (*appctx.Context, error) {
	t, err := c.Get(ctx, host)
	if err != nil {
		return nil, err
	}
	return t.Context(), nil
}

// Len is the number of cached tenants.
func (c *Cache) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Close stops the evictor and closes every cached tenant.
func (c *Cache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done

	var errs []error
	c.m.Range(func(key, value any) bool {
		errs = append(errs, c.evict(key.(string), value.(*entry)))
		return true
	})
	return errors.Join(errs...)
}
