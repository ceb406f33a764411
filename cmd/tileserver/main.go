// Package main is the entry point for the tile server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tileserver-go/server/internal/api"
	"github.com/tileserver-go/server/internal/cache"
	"github.com/tileserver-go/server/internal/config"
	"github.com/tileserver-go/server/internal/service"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/tileserver.yaml", "Path to configuration file")
	dataRoot := flag.String("data", "", "Override the tileset data root directory")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dataRoot != "" {
		cfg.Data.Root = *dataRoot
	}

	log.Printf("Starting %s on port %d", cfg.Server.Title, cfg.Server.Port)

	// Initialize cache manager
	cacheManager, err := cache.NewManager(cache.Config{
		TileCacheSizeMB: cfg.Cache.TileSizeMB,
		TileTTL:         time.Duration(cfg.Cache.TileTTLMinutes) * time.Minute,
		MetadataEntries: cfg.Cache.MetadataEntries,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Initialize tile service
	tileService := service.NewTileService(service.TileServiceConfig{
		Root:     cfg.Data.Root,
		BaseURLs: cfg.Server.BaseURLs,
		Protocol: cfg.Server.Protocol,
		Formats:  cfg.Formats,
		Cache:    cacheManager,
	})
	defer tileService.Close()

	datasets, err := tileService.Datasets()
	if err != nil {
		log.Fatalf("Failed to scan data root %q: %v", cfg.Data.Root, err)
	}
	log.Printf("Serving %d tileset(s) from %s", len(datasets), cfg.Data.Root)
	for _, ds := range datasets {
		log.Printf("  [%s] %s", ds.Kind, ds.ID)
	}

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Service:     tileService,
		CORSOrigins: cfg.Server.CORSOrigins,
		Title:       cfg.Server.Title,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
