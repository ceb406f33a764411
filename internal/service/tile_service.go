// Package service implements tile lookup and dispatch for the tile
// server.
package service

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/tileserver-go/server/internal/cache"
	"github.com/tileserver-go/server/internal/data/mbtiles"
)

// BackendKind identifies how a layer's tiles are stored.
type BackendKind int

const (
	// KindUnknown means the layer matches neither backend.
	KindUnknown BackendKind = iota
	// KindDatabase means tiles come from an MBTiles file.
	KindDatabase
	// KindFile means tiles come from a directory tree.
	KindFile
)

// TileCoordinate addresses one tile, independent of transport framing.
type TileCoordinate struct {
	Layer string
	Z     int
	X     int
	Y     int
	Ext   string
}

// TileRecord is a successful fetch: the stored bytes plus the format
// token used to pick the content type. Absence is never expressed as an
// empty record; it is a distinct error value.
type TileRecord struct {
	Data   []byte
	Format string
}

// UnknownDatasetError reports a layer name matching neither an MBTiles
// file nor a tile directory.
type UnknownDatasetError struct {
	Layer string
}

func (e *UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown or not specified dataset %q", e.Layer)
}

// TileAbsentError reports a recognized layer with no data at the
// requested coordinate. It carries what the placeholder response needs.
type TileAbsentError struct {
	Format string
	Scale  int
}

func (e *TileAbsentError) Error() string {
	return "tile does not exist"
}

// TileServiceConfig contains tile service configuration.
type TileServiceConfig struct {
	// Root is the directory holding *.mbtiles files and tile
	// directory trees.
	Root     string
	BaseURLs []string
	Protocol string
	Formats  []string
	Cache    *cache.Manager
}

// TileService resolves layer names to a storage backend and fetches
// tiles from it. Database handles stay open across requests; the
// backing stores are read-only while the process runs.
type TileService struct {
	root    string
	resolve mbtiles.ResolveConfig
	cache   *cache.Manager

	mu      sync.Mutex
	handles map[string]*mbtiles.DB
}

// NewTileService creates a new tile service.
func NewTileService(cfg TileServiceConfig) *TileService {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &TileService{
		root: root,
		resolve: mbtiles.ResolveConfig{
			BaseURLs: cfg.BaseURLs,
			Protocol: cfg.Protocol,
			Formats:  cfg.Formats,
		},
		cache:   cfg.Cache,
		handles: make(map[string]*mbtiles.DB),
	}
}

// Kind reports which backend serves the given layer. An MBTiles file
// wins over a directory of the same name.
func (s *TileService) Kind(layer string) BackendKind {
	if layer == "" {
		return KindUnknown
	}
	if info, err := os.Stat(s.DatabasePath(layer)); err == nil && !info.IsDir() {
		return KindDatabase
	}
	if info, err := os.Stat(filepath.Join(s.root, layer)); err == nil && info.IsDir() {
		return KindFile
	}
	return KindUnknown
}

// DatabasePath returns the MBTiles path for a layer name.
func (s *TileService) DatabasePath(layer string) string {
	return filepath.Join(s.root, layer+".mbtiles")
}

// openDB returns the open database handle for a layer, reusing one
// opened by an earlier request.
func (s *TileService) openDB(layer string) (*mbtiles.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.handles[layer]; ok {
		return db, nil
	}
	db, err := mbtiles.Open(s.DatabasePath(layer))
	if err != nil {
		return nil, err
	}
	s.handles[layer] = db
	return db, nil
}

// Metadata returns the resolved metadata for a database-backed layer,
// filling defaults for every field the metadata table omits. Results
// are cached per layer for the process lifetime.
func (s *TileService) Metadata(layer string) (*mbtiles.Metadata, error) {
	if s.Kind(layer) != KindDatabase {
		return nil, &UnknownDatasetError{Layer: layer}
	}
	if md, ok := s.cache.GetMetadata(layer); ok {
		return md, nil
	}

	db, err := s.openDB(layer)
	if err != nil {
		return nil, err
	}
	md, err := db.Resolve(layer, s.resolve)
	if err != nil {
		return nil, err
	}
	s.cache.SetMetadata(layer, md)
	return md, nil
}

// Fetch returns the tile at the given coordinate. A missing tile on a
// known layer is reported as *TileAbsentError, an unrecognized layer as
// *UnknownDatasetError; any other error means the backing store could
// not be read.
func (s *TileService) Fetch(coord TileCoordinate) (*TileRecord, error) {
	switch s.Kind(coord.Layer) {
	case KindDatabase:
		return s.fetchFromDB(coord)
	case KindFile:
		return s.fetchFromDir(coord)
	default:
		return nil, &UnknownDatasetError{Layer: coord.Layer}
	}
}

func (s *TileService) fetchFromDB(coord TileCoordinate) (*TileRecord, error) {
	key := cache.TileKey(coord.Layer, coord.Z, coord.X, coord.Y, coord.Ext)
	if data, ok := s.cache.GetTile(key); ok {
		if rec := decodeRecord(data); rec != nil {
			return rec, nil
		}
	}

	db, err := s.openDB(coord.Layer)
	if err != nil {
		return nil, err
	}

	data, err := db.TileData(coord.Z, coord.X, coord.Y)
	if errors.Is(err, mbtiles.ErrTileNotFound) {
		md, mdErr := s.Metadata(coord.Layer)
		if mdErr != nil {
			return nil, mdErr
		}
		return nil, &TileAbsentError{Format: md.Format, Scale: md.Scale}
	}
	if err != nil {
		return nil, err
	}

	format, ok, err := db.MetadataValue("format")
	if err != nil {
		return nil, err
	}
	if !ok || format == "" {
		format = "png"
	}
	if format == "jpg" {
		// Content-type label only; the stored token stays jpg.
		format = "jpeg"
	}

	rec := &TileRecord{Data: data, Format: format}
	s.cache.SetTile(key, encodeRecord(rec))
	return rec, nil
}

func (s *TileService) fetchFromDir(coord TileCoordinate) (*TileRecord, error) {
	name := filepath.Join(s.root, coord.Layer,
		strconv.Itoa(coord.Z), strconv.Itoa(coord.X), strconv.Itoa(coord.Y))
	if coord.Ext != "" {
		name += "." + coord.Ext
	}

	data, err := os.ReadFile(name)
	if err != nil {
		// File-backed tilesets carry no stored format metadata; a
		// miss always gets the default placeholder.
		return nil, &TileAbsentError{Format: "png", Scale: 1}
	}

	format := coord.Ext
	if format == "" {
		format = sniffImageFormat(data)
	}
	return &TileRecord{Data: data, Format: format}, nil
}

// sniffImageFormat detects the image type from file content for
// extensionless directory tiles.
func sniffImageFormat(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return "jpeg"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

// DatasetInfo describes one discovered tileset.
type DatasetInfo struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// Datasets scans the data root and lists every readable tileset, the
// MBTiles files first, then tile directories.
func (s *TileService) Datasets() ([]DatasetInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan data root: %w", err)
	}

	var infos []DatasetInfo
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !e.IsDir() && strings.HasSuffix(name, ".mbtiles") {
			infos = append(infos, DatasetInfo{
				ID:   strings.TrimSuffix(name, ".mbtiles"),
				Kind: "database",
			})
		} else if e.IsDir() {
			infos = append(infos, DatasetInfo{ID: name, Kind: "directory"})
		}
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Kind != infos[j].Kind {
			return infos[i].Kind < infos[j].Kind
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// Close releases every open database handle.
func (s *TileService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for layer, db := range s.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.handles, layer)
	}
	return firstErr
}

// Cached tile entries carry the format token in front of the payload so
// a hit restores the full record.
func encodeRecord(rec *TileRecord) []byte {
	buf := make([]byte, 0, 1+len(rec.Format)+len(rec.Data))
	buf = append(buf, byte(len(rec.Format)))
	buf = append(buf, rec.Format...)
	return append(buf, rec.Data...)
}

func decodeRecord(buf []byte) *TileRecord {
	if len(buf) == 0 {
		return nil
	}
	n := int(buf[0])
	if len(buf) < 1+n {
		return nil
	}
	return &TileRecord{
		Format: string(buf[1 : 1+n]),
		Data:   buf[1+n:],
	}
}
