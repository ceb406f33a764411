// Package mercator provides spherical-Mercator tile grid math.
package mercator

import "math"

// RowToLat converts a TMS tile row index at the given zoom level to the
// latitude (degrees) of the top edge of that row, using the inverse
// spherical-Mercator transform.
func RowToLat(row, zoom int) float64 {
	y := float64(row)/math.Pow(2, float64(zoom-1)) - 1
	return (2*math.Atan(math.Exp(math.Pi*y)) - math.Pi/2) * 180 / math.Pi
}

// ColToLon converts a tile column index at the given zoom level to the
// longitude (degrees) of the left edge of that column.
func ColToLon(col, zoom int) float64 {
	return -180 + 360*(float64(col)/math.Pow(2, float64(zoom)))
}
