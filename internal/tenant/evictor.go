// evictor.go houses the eviction loop for Cache.  Every EvictInterval it
// scans the map and removes:
//
//   - tenants idle longer than idleTTL
//   - least-recently-used tenants when map size exceeds maxEntries
//
// Each eviction event is logged and updates Prometheus counters.
package tenant

import (
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/keel/internal/metrics"
)

func (c *Cache) evictLoop(every time.Duration) {
	defer close(c.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-t.C:
			c.evictOnce(now)
		}
	}
}

// evictOnce runs one idle pass and one LRU pass as of now.
func (c *Cache) evictOnce(now time.Time) {
	var count int

	// ----------------------------------------------------------------
	// Idle eviction pass
	// ----------------------------------------------------------------
	c.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		idle := now.Sub(time.Unix(0, atomic.LoadInt64(&ent.lastSeen)))
		if idle > c.idleTTL {
			_ = c.evict(key.(string), ent)
			zap.S().Infow("tenant evicted", "host", key, "idle", idle.Truncate(time.Second))
			return true
		}
		count++
		return true
	})

	// ----------------------------------------------------------------
	// LRU eviction pass
	// ----------------------------------------------------------------
	if c.maxEntries > 0 && count > c.maxEntries {
		type kv struct {
			key string
			at  int64
		}
		var all []kv
		c.m.Range(func(key, value any) bool {
			all = append(all, kv{key: key.(string), at: atomic.LoadInt64(&value.(*entry).lastSeen)})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for i := 0; i < len(all)-c.maxEntries; i++ {
			if v, ok := c.m.Load(all[i].key); ok {
				_ = c.evict(all[i].key, v.(*entry))
				zap.S().Infow("tenant evicted (LRU pressure)", "host", all[i].key)
			}
		}
	}
}

// evict removes one entry and closes its handles.
func (c *Cache) evict(host string, ent *entry) error {
	if _, loaded := c.m.LoadAndDelete(host); !loaded {
		return nil
	}
	metrics.TenantEvictTotal.Inc()
	metrics.ActiveTenants.Dec()
	if err := ent.tenant.Close(); err != nil {
		zap.S().Warnw("tenant close failed", "host", host, "err", err)
		return err
	}
	return nil
}
