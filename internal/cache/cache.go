// Package cache provides per-process caching of tile payloads and
// resolved tileset metadata.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tileserver-go/server/internal/data/mbtiles"
)

// Config contains cache configuration.
type Config struct {
	TileCacheSizeMB int
	TileTTL         time.Duration
	MetadataEntries int
}

// Manager manages the tile payload and metadata caches. The backing
// stores are read-only for the process lifetime, so entries are never
// invalidated, only aged out.
type Manager struct {
	tileCache *bigcache.BigCache
	metaCache *lru.Cache[string, *mbtiles.Metadata]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	tileCacheConfig := bigcache.Config{
		Shards:             256,
		LifeWindow:         cfg.TileTTL,
		CleanWindow:        cfg.TileTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       512 * 1024, // 512KB per tile
		HardMaxCacheSize:   cfg.TileCacheSizeMB,
		Verbose:            false,
	}

	tileCache, err := bigcache.New(context.Background(), tileCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile cache: %w", err)
	}

	metaCache, err := lru.New[string, *mbtiles.Metadata](cfg.MetadataEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}

	return &Manager{
		tileCache: tileCache,
		metaCache: metaCache,
	}, nil
}

// GetTile retrieves a tile payload from cache.
func (m *Manager) GetTile(key string) ([]byte, bool) {
	data, err := m.tileCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetTile stores a tile payload in cache.
func (m *Manager) SetTile(key string, data []byte) error {
	return m.tileCache.Set(key, data)
}

// GetMetadata retrieves resolved tileset metadata for a layer.
func (m *Manager) GetMetadata(layer string) (*mbtiles.Metadata, bool) {
	return m.metaCache.Get(layer)
}

// SetMetadata stores resolved tileset metadata for a layer.
func (m *Manager) SetMetadata(layer string, md *mbtiles.Metadata) {
	m.metaCache.Add(layer, md)
}

// TileKey generates a cache key for a tile coordinate.
func TileKey(layer string, z, x, y int, ext string) string {
	if ext == "" {
		return fmt.Sprintf("%s/%d/%d/%d", layer, z, x, y)
	}
	return fmt.Sprintf("%s/%d/%d/%d.%s", layer, z, x, y, ext)
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"tile_cache_len": m.tileCache.Len(),
		"tile_cache_cap": m.tileCache.Capacity(),
		"metadata_len":   m.metaCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.tileCache.Close()
}
