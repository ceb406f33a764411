// Package api provides the HTTP handlers for the tile server.
package api

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tileserver-go/server/internal/data/mbtiles"
	"github.com/tileserver-go/server/internal/service"
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Service     *service.TileService
	CORSOrigins []string
	Title       string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "If-Modified-Since", "If-None-Match"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Get("/api/datasets", datasetsHandler(cfg.Service, cfg.Title))

	// WMTS key-value-pair endpoint
	r.Get("/wmts", wmtsHandler(cfg.Service))

	// TileJSON metadata per layer
	r.Get("/{layer}.json", tileJSONHandler(cfg.Service))

	// Tile endpoint; the final segment carries an optional extension
	// ({y}.png, {y}.pbf, or bare {y}).
	r.Get("/{layer}/{z}/{x}/{y}", tileHandler(cfg.Service))

	return r
}

// datasetsHandler lists the tilesets discovered in the data root.
func datasetsHandler(svc *service.TileService, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		datasets, err := svc.Datasets()
		if err != nil {
			http.Error(w, "failed to scan datasets", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"title":    title,
			"datasets": datasets,
		})
	}
}

// tileJSONHandler serves the resolved tileset metadata as a TileJSON
// document.
func tileJSONHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layer := chi.URLParam(r, "layer")
		md, err := svc.Metadata(layer)
		if err != nil {
			var unknown *service.UnknownDatasetError
			if errors.As(err, &unknown) {
				http.Error(w, unknown.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, "failed to read tileset metadata", http.StatusInternalServerError)
			return
		}

		doc := struct {
			TileJSON string `json:"tilejson"`
			*mbtiles.Metadata
		}{
			TileJSON: "2.0.0",
			Metadata: md,
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		json.NewEncoder(w).Encode(doc)
	}
}

// tileHandler serves /{layer}/{z}/{x}/{y}[.{ext}].
func tileHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		layer := chi.URLParam(r, "layer")
		z, err := strconv.Atoi(chi.URLParam(r, "z"))
		if err != nil || z < 0 {
			http.Error(w, "invalid z", http.StatusBadRequest)
			return
		}
		x, err := strconv.Atoi(chi.URLParam(r, "x"))
		if err != nil || x < 0 {
			http.Error(w, "invalid x", http.StatusBadRequest)
			return
		}

		yParam, ext, _ := strings.Cut(chi.URLParam(r, "y"), ".")
		y, err := strconv.Atoi(yParam)
		if err != nil || y < 0 {
			http.Error(w, "invalid y", http.StatusBadRequest)
			return
		}

		serveTile(w, r, svc, service.TileCoordinate{Layer: layer, Z: z, X: x, Y: y, Ext: ext})
	}
}

// wmtsHandler serves WMTS GetTile requests in key-value-pair encoding.
// Parameter keys are matched case-insensitively and canonicalized here,
// before a TileCoordinate is built.
func wmtsHandler(svc *service.TileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := make(map[string]string)
		for k, vs := range r.URL.Query() {
			if len(vs) > 0 {
				params[strings.ToLower(k)] = vs[0]
			}
		}

		if !strings.EqualFold(params["request"], "GetTile") {
			http.Error(w, "unsupported request", http.StatusBadRequest)
			return
		}

		z, errZ := strconv.Atoi(params["tilematrix"])
		y, errY := strconv.Atoi(params["tilerow"])
		x, errX := strconv.Atoi(params["tilecol"])
		if errZ != nil || errY != nil || errX != nil || z < 0 || y < 0 || x < 0 {
			http.Error(w, "invalid tile coordinate", http.StatusBadRequest)
			return
		}

		// FORMAT may arrive as a MIME type (image/png) or a bare token.
		format := params["format"]
		if _, after, found := strings.Cut(format, "/"); found {
			format = after
		}

		serveTile(w, r, svc, service.TileCoordinate{
			Layer: params["layer"],
			Z:     z,
			X:     x,
			Y:     y,
			Ext:   format,
		})
	}
}

func serveTile(w http.ResponseWriter, r *http.Request, svc *service.TileService, coord service.TileCoordinate) {
	// Database layers answer conditional requests from the file mtime.
	if svc.Kind(coord.Layer) == service.KindDatabase {
		if info, err := os.Stat(svc.DatabasePath(coord.Layer)); err == nil {
			mtime := info.ModTime().UTC().Truncate(time.Second)
			sum := md5.Sum([]byte(strconv.FormatInt(mtime.Unix(), 10)))
			etag := hex.EncodeToString(sum[:])

			w.Header().Set("Last-Modified", mtime.Format(http.TimeFormat))
			w.Header().Set("Etag", etag)

			if notModified(r, etag, mtime.Format(http.TimeFormat)) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	}

	resp, err := svc.Dispatch(coord)
	if err != nil {
		// Backing store failures are deployment problems, never
		// masked with a placeholder.
		http.Error(w, "failed to read tileset", http.StatusInternalServerError)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

func notModified(r *http.Request, etag, lastModified string) bool {
	if match := strings.TrimSpace(r.Header.Get("If-None-Match")); match != "" && match == etag {
		return true
	}
	if since := r.Header.Get("If-Modified-Since"); since != "" && since == lastModified {
		return true
	}
	return false
}

