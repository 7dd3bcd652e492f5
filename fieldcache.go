package odooconnect

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// FieldMeta maps field names to their fields_get attributes.
type FieldMeta map[string]map[string]any

// Has reports whether name is a field.
func (m FieldMeta) Has(name string) bool {
	_, ok := m[name]
	return ok
}

// fieldCache holds fields_get results per model for one Session. Entries
// expire after a TTL and the cache is bounded, so schema changes on the
// server are eventually picked up.
type fieldCache struct {
	cache *ttlcache.Cache[ModelName, FieldMeta]
}

func newFieldCache(ttl time.Duration, capacity uint64) *fieldCache {
	cache := ttlcache.New[ModelName, FieldMeta](
		ttlcache.WithTTL[ModelName, FieldMeta](ttl),
		ttlcache.WithCapacity[ModelName, FieldMeta](capacity),
		ttlcache.WithDisableTouchOnHit[ModelName, FieldMeta](),
	)
	go cache.Start()
	return &fieldCache{cache: cache}
}

func (f *fieldCache) get(model ModelName) (FieldMeta, bool) {
	item := f.cache.Get(model)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (f *fieldCache) set(model ModelName, meta FieldMeta) {
	f.cache.Set(model, meta, ttlcache.DefaultTTL)
}

func (f *fieldCache) invalidate(models ...ModelName) {
	if len(models) == 0 {
		f.cache.DeleteAll()
		return
	}
	for _, m := range models {
		f.cache.Delete(m)
	}
}

func (f *fieldCache) stop() {
	f.cache.Stop()
	f.cache.DeleteAll()
}
