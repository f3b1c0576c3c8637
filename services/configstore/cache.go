package configstore

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "config_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "config_cache_miss_total"})
)

func init() {
	prometheus.DefaultRegisterer.MustRegister(cacheHits, cacheMiss)
}

type cachedValue struct {
	value     any
	fetchedAt time.Time
}

// settingCache is a bounded-TTL read-through cache over the settings table.
// It is never authoritative: an expired entry is refetched (singleflight
// collapses concurrent refreshes), and staleness is capped at the TTL.
type settingCache struct {
	mu    sync.RWMutex
	items map[string]cachedValue
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group
}

func newSettingCache(ttl time.Duration, now func() time.Time) *settingCache {
	return &settingCache{
		items: make(map[string]cachedValue),
		ttl:   ttl,
		now:   now,
	}
}

func (c *settingCache) get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	if !ok || (c.ttl > 0 && c.now().Sub(v.fetchedAt) > c.ttl) {
		cacheMiss.Inc()
		return nil, false
	}
	cacheHits.Inc()
	return v.value, true
}

func (c *settingCache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cachedValue{value: value, fetchedAt: c.now()}
}

func (c *settingCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// fetch loads key through the singleflight group when the cached entry is
// missing or expired.
func (c *settingCache) fetch(key string, load func() (any, error)) (any, error) {
	if v, ok := c.get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.get(key); ok {
			return v, nil
		}
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		c.set(key, loaded)
		return loaded, nil
	})
	return v, err
}
