package mapping

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/callrodry/capcee-proyecto/internal/types"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_mapping_cache_hits_total",
		Help: "Column mapping lookups served from the cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_mapping_cache_misses_total",
		Help: "Column mapping lookups that went to the backing registry.",
	})
)

// CachedRegistry is an expiring LRU in front of another registry.
// Mappings are immutable during a run, so a stale entry only delays a
// configuration change by at most the TTL.
type CachedRegistry struct {
	next  Registry
	cache *expirable.LRU[string, []types.ColumnMapping]
}

// NewCachedRegistry wraps next with a cache of maxSize entries kept for ttl.
func NewCachedRegistry(next Registry, maxSize int, ttl time.Duration) *CachedRegistry {
	return &CachedRegistry{
		next:  next,
		cache: expirable.NewLRU[string, []types.ColumnMapping](maxSize, nil, ttl),
	}
}

// MappingsFor serves from the cache or loads from the backing registry.
// Errors are not cached.
func (c *CachedRegistry) MappingsFor(ctx context.Context, departmentCode, fileType string) ([]types.ColumnMapping, error) {
	k := key(departmentCode, fileType)
	if list, ok := c.cache.Get(k); ok {
		cacheHitsTotal.Inc()
		return clone(list), nil
	}
	cacheMissesTotal.Inc()

	list, err := c.next.MappingsFor(ctx, departmentCode, fileType)
	if err != nil {
		return nil, err
	}
	c.cache.Add(k, clone(list))
	return list, nil
}

// Purge drops every cached entry, e.g. after a mappings sync.
func (c *CachedRegistry) Purge() {
	c.cache.Purge()
}

func clone(list []types.ColumnMapping) []types.ColumnMapping {
	return append([]types.ColumnMapping(nil), list...)
}
