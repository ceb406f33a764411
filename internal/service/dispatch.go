package service

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzip"

	"github.com/tileserver-go/server/internal/render"
)

// Response is what the transport layer writes back: a status, a
// content-type label, the payload, and any format-specific headers.
type Response struct {
	Status      int
	ContentType string
	Headers     map[string]string
	Body        []byte
}

// Dispatch is the single entry point of the core: it fetches the tile
// for the coordinate and shapes the response, substituting the
// format-appropriate clean tile when the coordinate has no data. Only a
// backing-store failure is returned as an error; the caller treats that
// as a server fault, never as data absence.
func (s *TileService) Dispatch(coord TileCoordinate) (*Response, error) {
	rec, err := s.Fetch(coord)
	if err != nil {
		var absent *TileAbsentError
		if errors.As(err, &absent) {
			clean := render.ForFormat(absent.Format)
			return &Response{
				Status:      clean.Status,
				ContentType: clean.ContentType,
				Headers:     corsHeaders(),
				Body:        clean.Data,
			}, nil
		}
		var unknown *UnknownDatasetError
		if errors.As(err, &unknown) {
			return &Response{
				Status:      http.StatusNotFound,
				ContentType: "text/plain; charset=utf-8",
				Headers:     corsHeaders(),
				Body:        []byte(fmt.Sprintf("Server: Unknown or not specified dataset %q", unknown.Layer)),
			}, nil
		}
		return nil, err
	}

	resp := &Response{
		Status:  http.StatusOK,
		Headers: corsHeaders(),
		Body:    rec.Data,
	}

	switch rec.Format {
	case "pbf":
		resp.ContentType = "application/x-protobuf"
		resp.Headers["Content-Encoding"] = "gzip"
		// Vector tiles are served gzip-framed; compress blobs stored
		// raw.
		if !isGzipped(resp.Body) {
			gz, err := gzipBytes(resp.Body)
			if err != nil {
				return nil, err
			}
			resp.Body = gz
		}
	case "o5m":
		resp.ContentType = "application/octet-stream"
		resp.Headers["Content-Transfer-Encoding"] = "binary"
		resp.Headers["Content-Length"] = strconv.Itoa(len(resp.Body))
	default:
		resp.ContentType = "image/" + rec.Format
	}

	return resp, nil
}

func corsHeaders() map[string]string {
	return map[string]string{"Access-Control-Allow-Origin": "*"}
}

func isGzipped(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
