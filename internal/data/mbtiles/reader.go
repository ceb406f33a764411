// Package mbtiles provides read-only access to MBTiles tile databases.
package mbtiles

import (
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"
)

// ErrTileNotFound is returned when the requested tile coordinate has no
// row in the tiles table.
var ErrTileNotFound = errors.New("tile not found")

// DB is an open read-only MBTiles database.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens an MBTiles file for reading. It fails when the file does
// not exist or does not contain a tiles table.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("mbtiles file not readable: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open mbtiles: %w", err)
	}

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = 'tiles'`).Scan(&name)
	if err != nil {
		db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: no tiles table", path)
		}
		return nil, fmt.Errorf("failed to inspect mbtiles schema: %w", err)
	}

	return &DB{db: db, path: path}, nil
}

// Path returns the file path the database was opened from.
func (d *DB) Path() string {
	return d.path
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// TileData returns the blob stored at the given zoom/column/row, or
// ErrTileNotFound when no such row exists.
func (d *DB) TileData(z, x, y int) ([]byte, error) {
	var data []byte
	err := d.db.QueryRow(
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		z, x, y,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tile %d/%d/%d: %w", z, x, y, err)
	}
	return data, nil
}

// RawMetadata returns the contents of the metadata table as a name to
// value map. A missing metadata table yields an empty map, not an
// error; every field has a resolver default.
func (d *DB) RawMetadata() (map[string]string, error) {
	meta := make(map[string]string)

	var name string
	err := d.db.QueryRow(`SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = 'metadata'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to inspect mbtiles schema: %w", err)
	}

	rows, err := d.db.Query(`SELECT name, value FROM metadata`)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

// MetadataValue returns a single metadata value by name. The second
// return value reports whether the row exists.
func (d *DB) MetadataValue(name string) (string, bool, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM metadata WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		// A database without a metadata table behaves like one with
		// an empty table.
		return "", false, nil
	}
	return value, true, nil
}

// ZoomRange returns MIN(zoom_level) and MAX(zoom_level) over the tiles
// table.
func (d *DB) ZoomRange() (min, max int, err error) {
	var lo, hi sql.NullInt64
	err = d.db.QueryRow(`SELECT MIN(zoom_level), MAX(zoom_level) FROM tiles`).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query zoom range: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, errors.New("tiles table is empty")
	}
	return int(lo.Int64), int(hi.Int64), nil
}

// TileExtent returns the column and row extremes of the tiles stored at
// the given zoom level.
func (d *DB) TileExtent(zoom int) (minCol, maxCol, minRow, maxRow int, err error) {
	var c0, c1, r0, r1 sql.NullInt64
	err = d.db.QueryRow(
		`SELECT MIN(tile_column), MAX(tile_column), MIN(tile_row), MAX(tile_row) FROM tiles WHERE zoom_level = ?`,
		zoom,
	).Scan(&c0, &c1, &r0, &r1)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("failed to query tile extent at zoom %d: %w", zoom, err)
	}
	if !c0.Valid || !c1.Valid || !r0.Valid || !r1.Valid {
		return 0, 0, 0, 0, fmt.Errorf("no tiles at zoom %d", zoom)
	}
	return int(c0.Int64), int(c1.Int64), int(r0.Int64), int(r1.Int64), nil
}

// FirstTileMagic returns the first two bytes of one stored tile blob,
// used to sniff the tile format.
func (d *DB) FirstTileMagic() ([]byte, error) {
	var magic []byte
	err := d.db.QueryRow(`SELECT substr(tile_data, 1, 2) FROM tiles LIMIT 1`).Scan(&magic)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to sniff tile format: %w", err)
	}
	return magic, nil
}
