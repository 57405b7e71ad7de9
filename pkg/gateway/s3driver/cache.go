package s3driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/secret"
)

// Cache hands out one driver per storage config, constructing lazily and
// rebuilding when the config row changes. Credentials are decrypted only at
// construction time and never retained.
type Cache struct {
	enc      *secret.Encryptor
	observer Observer

	mu      sync.RWMutex
	drivers map[string]*cacheEntry
}

type cacheEntry struct {
	driver    *Driver
	updatedAt time.Time
}

// NewCache creates a driver cache using enc to decrypt stored credentials.
func NewCache(enc *secret.Encryptor) *Cache {
	return &Cache{
		enc:     enc,
		drivers: make(map[string]*cacheEntry),
	}
}

// SetObserver attaches an operation observer to every driver the cache
// constructs from now on.
func (c *Cache) SetObserver(o Observer) {
	c.mu.Lock()
	c.observer = o
	c.mu.Unlock()
}

// Get returns the driver for cfg, building it on first use. A config updated
// since the cached driver was built gets a fresh driver.
func (c *Cache) Get(ctx context.Context, cfg *models.StorageConfig) (*Driver, error) {
	c.mu.RLock()
	entry, ok := c.drivers[cfg.ID]
	c.mu.RUnlock()
	if ok && !cfg.UpdatedAt.After(entry.updatedAt) {
		return entry.driver, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have built it while we waited.
	if entry, ok := c.drivers[cfg.ID]; ok && !cfg.UpdatedAt.After(entry.updatedAt) {
		return entry.driver, nil
	}

	accessKey, err := c.enc.Decrypt(cfg.AccessKeyID)
	if err != nil {
		return nil, fmt.Errorf("decrypt access key for storage %s: %w", cfg.Name, err)
	}
	secretKey, err := c.enc.Decrypt(cfg.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt secret key for storage %s: %w", cfg.Name, err)
	}

	driver, err := New(ctx, cfg, accessKey, secretKey)
	if err != nil {
		return nil, err
	}
	if c.observer != nil {
		driver.SetObserver(c.observer)
	}
	c.drivers[cfg.ID] = &cacheEntry{driver: driver, updatedAt: cfg.UpdatedAt}
	return driver, nil
}

// Invalidate drops the cached driver for a storage config ID.
func (c *Cache) Invalidate(storageConfigID string) {
	c.mu.Lock()
	delete(c.drivers, storageConfigID)
	c.mu.Unlock()
}

// Reset drops every cached driver.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.drivers = make(map[string]*cacheEntry)
	c.mu.Unlock()
}
