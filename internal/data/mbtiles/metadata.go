package mbtiles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tileserver-go/server/pkg/mercator"
)

// Metadata is the fully resolved description of one tileset. Every
// field is populated after Resolve returns; consumers never see a
// missing value.
type Metadata struct {
	Name    string     `json:"name"`
	Format  string     `json:"format"`
	MinZoom int        `json:"minzoom"`
	MaxZoom int        `json:"maxzoom"`
	Bounds  [4]float64 `json:"bounds"` // west, south, east, north
	Profile string     `json:"profile"`
	Scale   int        `json:"scale"`
	Tiles   []string   `json:"tiles"`
}

// ResolveConfig carries the server settings metadata resolution depends
// on. It is passed explicitly; there is no ambient configuration.
type ResolveConfig struct {
	BaseURLs []string
	Protocol string
	Formats  []string
}

var newlineRuns = regexp.MustCompile(`\n+`)

// addslashes-style escaping for metadata text copied into documents
// rendered downstream.
var escaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`)

func sanitize(v string) string {
	return escaper.Replace(newlineRuns.ReplaceAllString(v, ""))
}

// Resolve builds the complete Metadata record for the database,
// deriving any field the metadata table omits from the tiles table
// itself. Missing optional fields never fail resolution; only an
// unreadable database does.
func (d *DB) Resolve(basename string, cfg ResolveConfig) (*Metadata, error) {
	raw, err := d.RawMetadata()
	if err != nil {
		return nil, err
	}

	// Tile URL templates are newline-joined in storage; split before
	// the values are sanitized.
	var templates []string
	if tiles, ok := raw["tiles"]; ok {
		for _, line := range strings.Split(tiles, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				templates = append(templates, line)
			}
		}
	}
	for k, v := range raw {
		raw[k] = sanitize(v)
	}

	// Autodetect minzoom and maxzoom from the tiles table.
	_, okMin := raw["minzoom"]
	_, okMax := raw["maxzoom"]
	if !okMin || !okMax {
		lo, hi, err := d.ZoomRange()
		if err == nil {
			if !okMin {
				raw["minzoom"] = strconv.Itoa(lo)
			}
			if !okMax {
				raw["maxzoom"] = strconv.Itoa(hi)
			}
		}
	}

	// Autodetect format from the JPEG magic number.
	if _, ok := raw["format"]; !ok {
		magic, err := d.FirstTileMagic()
		if err == nil && len(magic) == 2 && magic[0] == 0xFF && magic[1] == 0xD8 {
			raw["format"] = "jpg"
		} else if err == nil && magic != nil {
			raw["format"] = "png"
		}
	}

	// Autodetect bounds from the tile extent at maxzoom.
	var bounds *[4]float64
	if _, ok := raw["bounds"]; !ok {
		if maxzoom, err := strconv.Atoi(raw["maxzoom"]); err == nil {
			minCol, maxCol, minRow, maxRow, err := d.TileExtent(maxzoom)
			if err == nil {
				bounds = &[4]float64{
					mercator.ColToLon(minCol, maxzoom),
					mercator.RowToLat(minRow-1, maxzoom),
					mercator.ColToLon(maxCol+1, maxzoom),
					mercator.RowToLat(maxRow, maxzoom),
				}
			}
		}
	}

	return validate(raw, bounds, basename, templates, cfg), nil
}

// validate fills defaults for everything still missing and coerces the
// raw text fields into typed values. It runs on every resolution, even
// when the metadata table supplied explicit values.
func validate(raw map[string]string, bounds *[4]float64, basename string, templates []string, cfg ResolveConfig) *Metadata {
	md := &Metadata{
		Name:    basename,
		Profile: "mercator",
		Bounds:  [4]float64{-180, -85.06, 180, 85.06},
		MinZoom: 0,
		MaxZoom: 18,
		Scale:   1,
	}

	if bounds != nil {
		md.Bounds = *bounds
	} else if s, ok := raw["bounds"]; ok {
		if parsed, err := parseBounds(s); err == nil {
			md.Bounds = parsed
		}
	}

	if p, ok := raw["profile"]; ok && p != "" {
		md.Profile = p
	}
	if z, err := strconv.Atoi(raw["minzoom"]); err == nil {
		md.MinZoom = z
	}
	if z, err := strconv.Atoi(raw["maxzoom"]); err == nil {
		md.MaxZoom = z
	}

	format := raw["format"]
	if format == "" && len(templates) > 0 {
		if pos := strings.LastIndex(templates[0], "."); pos >= 0 {
			format = strings.TrimSpace(templates[0][pos+1:])
		}
	}
	format = strings.ToLower(format)
	if !formatSupported(format, cfg.Formats) {
		format = "png"
	}
	md.Format = format

	if s, ok := raw["scale"]; ok {
		if scale, err := strconv.Atoi(s); err == nil && scale > 0 {
			md.Scale = scale
		}
	}

	if len(templates) > 0 {
		md.Tiles = templates
	} else {
		for _, base := range cfg.BaseURLs {
			url := fmt.Sprintf("%s://%s/%s/{z}/{x}/{y}", cfg.Protocol, base, basename)
			// Format tokens longer than four characters are not file
			// extensions (e.g. "hybrid").
			if len(md.Format) <= 4 {
				url += "." + md.Format
			}
			md.Tiles = append(md.Tiles, url)
		}
	}

	return md
}

func parseBounds(s string) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("bounds has %d fields, want 4", len(parts))
	}
	var out [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return [4]float64{}, err
		}
		out[i] = v
	}
	return out, nil
}

func formatSupported(format string, supported []string) bool {
	for _, f := range supported {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}
