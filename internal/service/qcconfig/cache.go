package qcconfig

import (
	"sync"
	"time"

	"github.com/opinari/fieldqc/internal/domain"
)

// resolveCache memoizes Resolve results per (tenant, survey) key. Entries
// expire after the configured TTL; a TTL of zero disables caching entirely.
type resolveCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	cfg       *domain.QCConfig
	source    Source
	expiresAt time.Time
}

func newResolveCache(ttl time.Duration) *resolveCache {
	return &resolveCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(tenantID, surveyID string) string {
	return tenantID + "\x00" + surveyID
}

func (c *resolveCache) get(tenantID, surveyID string) (*domain.QCConfig, Source, bool) {
	if c.ttl <= 0 {
		return nil, "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(tenantID, surveyID)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, "", false
	}
	return entry.cfg, entry.source, true
}

func (c *resolveCache) set(tenantID, surveyID string, cfg *domain.QCConfig, source Source) {
	if c.ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey(tenantID, surveyID)] = cacheEntry{
		cfg:       cfg,
		source:    source,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// invalidateTenant drops every cached entry for the tenant. Called after a
// config write so the new rules are picked up on the next resolve rather
// than after TTL expiry.
func (c *resolveCache) invalidateTenant(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := tenantID + "\x00"
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
}
