// Package config handles configuration loading for the tile server.
package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Data    DataConfig   `yaml:"data"`
	Cache   CacheConfig  `yaml:"cache"`
	Formats []string     `yaml:"formats"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Title       string   `yaml:"title"`
	CORSOrigins []string `yaml:"cors_origins"`
	BaseURLs    []string `yaml:"base_urls"`
	Protocol    string   `yaml:"protocol"`
}

// DataConfig contains tileset storage settings.
type DataConfig struct {
	// Root is the directory scanned for *.mbtiles files and tile
	// directory trees.
	Root string `yaml:"root"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	TileSizeMB      int `yaml:"tile_size_mb"`
	TileTTLMinutes  int `yaml:"tile_ttl_minutes"`
	MetadataEntries int `yaml:"metadata_entries"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		cfg := DefaultConfig()
		applyEnv(cfg)
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Title:       "Maps hosted with TileServer-Go",
			CORSOrigins: []string{"*"},
			BaseURLs:    []string{"localhost:8080"},
			Protocol:    "http",
		},
		Data: DataConfig{
			Root: ".",
		},
		Cache: CacheConfig{
			TileSizeMB:      64,
			TileTTLMinutes:  10,
			MetadataEntries: 128,
		},
		Formats: []string{"png", "jpg", "jpeg", "gif", "webp", "pbf", "o5m", "hybrid"},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if len(cfg.Server.BaseURLs) == 0 {
		cfg.Server.BaseURLs = defaults.Server.BaseURLs
	}
	if cfg.Server.Protocol == "" {
		cfg.Server.Protocol = defaults.Server.Protocol
	}
	if cfg.Data.Root == "" {
		cfg.Data.Root = defaults.Data.Root
	}
	if cfg.Cache.TileSizeMB == 0 {
		cfg.Cache.TileSizeMB = defaults.Cache.TileSizeMB
	}
	if cfg.Cache.TileTTLMinutes == 0 {
		cfg.Cache.TileTTLMinutes = defaults.Cache.TileTTLMinutes
	}
	if cfg.Cache.MetadataEntries == 0 {
		cfg.Cache.MetadataEntries = defaults.Cache.MetadataEntries
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = defaults.Formats
	}
}

// applyEnv overrides settings from environment variables so container
// deployments can retitle the server without a config file.
func applyEnv(cfg *Config) {
	if title := os.Getenv("TILESERVER_TITLE"); title != "" {
		cfg.Server.Title = title
	}
	if urls := os.Getenv("TILESERVER_BASE_URLS"); urls != "" {
		parts := strings.Split(urls, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			cfg.Server.BaseURLs = out
		}
	}
}

// SupportsFormat reports whether the given format token is in the
// configured supported set. Matching is case-insensitive.
func (c *Config) SupportsFormat(format string) bool {
	for _, f := range c.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}
