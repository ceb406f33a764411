// Package render provides the fixed placeholder tiles served when a
// requested coordinate has no stored data.
package render

import (
	"encoding/base64"
	"encoding/hex"
	"net/http"
)

// CleanTile is a format-appropriate "tile absent" payload. The bytes
// are fixed constants; every call for the same format returns the same
// payload.
type CleanTile struct {
	Status      int
	ContentType string
	Data        []byte
}

// 256x256 fully transparent optimised PNG tile.
const emptyPNGHex = "89504e470d0a1a0a0000000d494844520000010000000100010300000066bc3a2500000003504c5445000000a77a3dda0000000174524e530040e6d8660000001f494441541819edc1010d000000c220fba77e0e37600000000000000000e70221000001f5a2bd040000000049454e44ae426082"

// Minimal valid empty JPEG and WebP images.
const (
	emptyJPEGBase64 = "/9j/2wBDAAMCAgICAgMCAgIDAwMDBAYEBAQEBAgGBgUGCQgKCgkICQkKDA8MCgsOCwkJDRENDg8QEBEQCgwSExIQEw8QEBD/yQALCAABAAEBAREA/8wABgAQEAX/2gAIAQEAAD8A0s8g/9k="
	emptyWebPBase64 = "UklGRhIAAABXRUJQVlA4TAYAAAAvQWxvAGs="
)

var (
	emptyPNG  = mustHex(emptyPNGHex)
	emptyJPEG = mustBase64(emptyJPEGBase64)
	emptyWebP = mustBase64(emptyWebPBase64)

	missingTileJSON = []byte(`{"message":"Tile does not exist"}`)
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

func mustBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// ForFormat returns the clean tile for the given format token. Vector
// formats get a machine-readable 404; image formats get a valid empty
// image with status 200. Unrecognized tokens fall back to the
// transparent PNG.
func ForFormat(format string) CleanTile {
	switch format {
	case "pbf", "o5m":
		return CleanTile{
			Status:      http.StatusNotFound,
			ContentType: "application/json; charset=utf-8",
			Data:        missingTileJSON,
		}
	case "webp":
		return CleanTile{
			Status:      http.StatusOK,
			ContentType: "image/webp",
			Data:        emptyWebP,
		}
	case "jpg":
		return CleanTile{
			Status:      http.StatusOK,
			ContentType: "image/jpg",
			Data:        emptyJPEG,
		}
	default:
		return CleanTile{
			Status:      http.StatusOK,
			ContentType: "image/png",
			Data:        emptyPNG,
		}
	}
}
