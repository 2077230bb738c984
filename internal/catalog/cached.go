// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ManuGH/e2epg/internal/cache"
)

// DefaultCacheTTL is how long a scanned catalog stays valid.
const DefaultCacheTTL = 60 * time.Second

// CachedLister serves List from a cache and falls back to the wrapped lister.
// Entries expire by age only.
type CachedLister struct {
	next  Lister
	cache cache.Cache
	key   string
	ttl   time.Duration
}

// Cached wraps next. The cache key is "catalog:" plus the absolute bouquet
// directory when next is a *Catalog.
func Cached(next Lister, c cache.Cache, ttl time.Duration) *CachedLister {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	key := "catalog:default"
	if cat, ok := next.(*Catalog); ok {
		key = "catalog:" + cat.Dir()
	}
	return &CachedLister{next: next, cache: c, key: key, ttl: ttl}
}

// Key returns the cache key used for this lister.
func (l *CachedLister) Key() string { return l.key }

func (l *CachedLister) List(ctx context.Context) ([]Service, error) {
	if raw, ok := l.cache.Get(l.key); ok {
		var services []Service
		if err := json.Unmarshal(raw, &services); err == nil {
			return services, nil
		}
		l.cache.Delete(l.key)
	}

	services, err := l.next.List(ctx)
	if err != nil {
		return services, err
	}
	if raw, err := json.Marshal(services); err == nil {
		l.cache.Set(l.key, raw, l.ttl)
	}
	return services, nil
}

// Invalidate drops the cached entry.
func (l *CachedLister) Invalidate() {
	l.cache.Delete(l.key)
}
