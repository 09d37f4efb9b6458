package store

import (
	"context"
	"sync"
	"time"

	"registrar/internal/certificate/models"
)

type entry struct {
	cert    models.Certificate
	expires time.Time
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: make(map[string]entry), ttl: ttl, now: time.Now}
}

// WithClock replaces the clock used for expiry. Intended for tests.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, certificateID string) (*models.Certificate, error) {
	c.mu.RLock()
	e, ok := c.entries[certificateID]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expires) {
		return nil, ErrCacheMiss
	}
	cert := e.cert
	return &cert, nil
}

func (c *MemoryCache) Set(_ context.Context, cert *models.Certificate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cert.CertificateID] = entry{cert: *cert, expires: c.now().Add(c.ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, certificateID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, certificateID)
	return nil
}
