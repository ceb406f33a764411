package mbtiles

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

type tileRow struct {
	z, x, y int
	data    []byte
}

// createMBTiles writes a minimal MBTiles fixture.
func createMBTiles(t *testing.T, path string, meta map[string]string, tiles []tileRow) {
	t.Helper()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to create fixture db: %v", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE metadata (name TEXT, value TEXT);
	CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create fixture schema: %v", err)
	}

	for k, v := range meta {
		if _, err := db.Exec(`INSERT INTO metadata (name, value) VALUES (?, ?)`, k, v); err != nil {
			t.Fatalf("failed to insert metadata: %v", err)
		}
	}
	for _, tile := range tiles {
		if _, err := db.Exec(
			`INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)`,
			tile.z, tile.x, tile.y, tile.data,
		); err != nil {
			t.Fatalf("failed to insert tile: %v", err)
		}
	}
}

func openFixture(t *testing.T, meta map[string]string, tiles []tileRow) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.mbtiles")
	createMBTiles(t, path, meta, tiles)

	db, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open fixture: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.mbtiles")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpen_NoTilesTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.mbtiles")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE metadata (name TEXT, value TEXT)`); err != nil {
		t.Fatalf("failed to create fixture schema: %v", err)
	}
	db.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for database without tiles table")
	}
}

func TestTileData(t *testing.T) {
	db := openFixture(t, nil, []tileRow{
		{2, 1, 1, []byte("stored-tile")},
	})

	data, err := db.TileData(2, 1, 1)
	if err != nil {
		t.Fatalf("TileData: %v", err)
	}
	if string(data) != "stored-tile" {
		t.Errorf("unexpected tile data: %q", data)
	}

	_, err = db.TileData(2, 0, 0)
	if !errors.Is(err, ErrTileNotFound) {
		t.Errorf("expected ErrTileNotFound, got %v", err)
	}
}

func TestRawMetadata(t *testing.T) {
	db := openFixture(t, map[string]string{
		"name":   "test",
		"format": "png",
	}, []tileRow{{0, 0, 0, []byte("x")}})

	meta, err := db.RawMetadata()
	if err != nil {
		t.Fatalf("RawMetadata: %v", err)
	}
	if meta["name"] != "test" || meta["format"] != "png" {
		t.Errorf("unexpected metadata: %v", meta)
	}
}

func TestRawMetadata_NoTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilesonly.mbtiles")
	raw, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	if _, err := raw.Exec(`CREATE TABLE tiles (zoom_level INTEGER, tile_column INTEGER, tile_row INTEGER, tile_data BLOB)`); err != nil {
		t.Fatalf("failed to create fixture schema: %v", err)
	}
	raw.Close()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	meta, err := db.RawMetadata()
	if err != nil {
		t.Fatalf("RawMetadata: %v", err)
	}
	if len(meta) != 0 {
		t.Errorf("expected empty metadata, got %v", meta)
	}
}

func TestMetadataValue(t *testing.T) {
	db := openFixture(t, map[string]string{"scale": "2"}, []tileRow{{0, 0, 0, []byte("x")}})

	v, ok, err := db.MetadataValue("scale")
	if err != nil || !ok || v != "2" {
		t.Errorf("MetadataValue(scale) = %q, %v, %v", v, ok, err)
	}
	_, ok, err = db.MetadataValue("bounds")
	if err != nil || ok {
		t.Errorf("expected absent bounds, got ok=%v err=%v", ok, err)
	}
}

func TestZoomRange(t *testing.T) {
	db := openFixture(t, nil, []tileRow{
		{3, 0, 0, []byte("a")},
		{7, 1, 1, []byte("b")},
		{5, 2, 2, []byte("c")},
	})

	lo, hi, err := db.ZoomRange()
	if err != nil {
		t.Fatalf("ZoomRange: %v", err)
	}
	if lo != 3 || hi != 7 {
		t.Errorf("ZoomRange = %d..%d, want 3..7", lo, hi)
	}
}

func TestZoomRange_Empty(t *testing.T) {
	db := openFixture(t, nil, nil)
	if _, _, err := db.ZoomRange(); err == nil {
		t.Error("expected error for empty tiles table")
	}
}

func TestTileExtent(t *testing.T) {
	db := openFixture(t, nil, []tileRow{
		{4, 1, 2, []byte("a")},
		{4, 3, 5, []byte("b")},
		{4, 2, 3, []byte("c")},
		{2, 9, 9, []byte("other zoom")},
	})

	minCol, maxCol, minRow, maxRow, err := db.TileExtent(4)
	if err != nil {
		t.Fatalf("TileExtent: %v", err)
	}
	if minCol != 1 || maxCol != 3 || minRow != 2 || maxRow != 5 {
		t.Errorf("TileExtent = %d/%d/%d/%d, want 1/3/2/5", minCol, maxCol, minRow, maxRow)
	}

	if _, _, _, _, err := db.TileExtent(11); err == nil {
		t.Error("expected error for zoom with no tiles")
	}
}

func TestFirstTileMagic(t *testing.T) {
	db := openFixture(t, nil, []tileRow{
		{0, 0, 0, []byte{0xFF, 0xD8, 0xFF, 0xE0}},
	})

	magic, err := db.FirstTileMagic()
	if err != nil {
		t.Fatalf("FirstTileMagic: %v", err)
	}
	if len(magic) != 2 || magic[0] != 0xFF || magic[1] != 0xD8 {
		t.Errorf("unexpected magic: %x", magic)
	}
}
