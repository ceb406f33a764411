package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FullFile(t *testing.T) {
	content := `
server:
  port: 9000
  title: "My Tiles"
  base_urls: ["t0.example.com", "t1.example.com"]
  protocol: https
data:
  root: "/var/tiles"
cache:
  tile_size_mb: 32
formats: [png, pbf]
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Title != "My Tiles" {
		t.Errorf("unexpected title: %q", cfg.Server.Title)
	}
	if len(cfg.Server.BaseURLs) != 2 || cfg.Server.BaseURLs[0] != "t0.example.com" {
		t.Errorf("unexpected base_urls: %v", cfg.Server.BaseURLs)
	}
	if cfg.Server.Protocol != "https" {
		t.Errorf("unexpected protocol: %q", cfg.Server.Protocol)
	}
	if cfg.Data.Root != "/var/tiles" {
		t.Errorf("unexpected data root: %q", cfg.Data.Root)
	}
	if cfg.Cache.TileSizeMB != 32 {
		t.Errorf("unexpected tile cache size: %d", cfg.Cache.TileSizeMB)
	}
	if len(cfg.Formats) != 2 {
		t.Errorf("unexpected formats: %v", cfg.Formats)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.Protocol != "http" {
		t.Errorf("expected default protocol http, got %q", cfg.Server.Protocol)
	}
	if cfg.Data.Root != "." {
		t.Errorf("expected default data root '.', got %q", cfg.Data.Root)
	}
	if cfg.Cache.TileSizeMB != 64 {
		t.Errorf("expected default cache size 64, got %d", cfg.Cache.TileSizeMB)
	}
	if len(cfg.Formats) != 8 {
		t.Errorf("expected 8 default formats, got %v", cfg.Formats)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TILESERVER_TITLE", "Env Title")
	t.Setenv("TILESERVER_BASE_URLS", "a.example.com, b.example.com")

	cfg := loadFromString(t, "server:\n  title: File Title\n")

	if cfg.Server.Title != "Env Title" {
		t.Errorf("expected env title, got %q", cfg.Server.Title)
	}
	if len(cfg.Server.BaseURLs) != 2 || cfg.Server.BaseURLs[1] != "b.example.com" {
		t.Errorf("unexpected base_urls: %v", cfg.Server.BaseURLs)
	}
}

func TestSupportsFormat(t *testing.T) {
	cfg := DefaultConfig()

	for _, f := range []string{"png", "PNG", "Jpg", "pbf", "hybrid"} {
		if !cfg.SupportsFormat(f) {
			t.Errorf("expected %q to be supported", f)
		}
	}
	for _, f := range []string{"tiff", "svg", ""} {
		if cfg.SupportsFormat(f) {
			t.Errorf("expected %q to be unsupported", f)
		}
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
