// Package cache persists the mapping from local image references to remote
// delivery URLs across build runs.
//
// Keys are compared by exact string equality; no path normalization is
// applied, so two spellings of the same file (with and without "./") are
// distinct entries. The two entry points use distinct key spaces: the
// Markdown rewriter keys by the literal src string, the template transformer
// by the path resolved against the referencing file. Entries are never
// evicted.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache is a write-through URL cache backed by a single JSON file.
// Every Put rewrites the whole file; image counts per build are small enough
// that batching is not worth the complexity.
type Cache struct {
	path    string
	mu      sync.RWMutex
	entries map[string]string
}

// New loads (or initializes) the cache at <dir>/<name>.json. The directory
// is created if missing; an existing directory is not an error. A missing
// cache file yields an empty cache.
func New(dir, name string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	c := &Cache{
		path:    filepath.Join(dir, name+".json"),
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache file %s: %w", c.path, err)
	}

	return c, nil
}

// Path returns the location of the backing file.
func (c *Cache) Path() string { return c.path }

// Get returns the cached URL for key, if present.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	url, ok := c.entries[key]
	return url, ok
}

// Put inserts the mapping and synchronously rewrites the backing file.
func (c *Cache) Put(key, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = url
	return c.saveLocked()
}

// Save rewrites the backing file from the in-memory mapping.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the current mapping.
func (c *Cache) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

func (c *Cache) saveLocked() error {
	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	// Atomic write using temporary file
	tempPath := c.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary cache file: %w", err)
	}
	if err := os.Rename(tempPath, c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
