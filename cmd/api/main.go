// Package main serves the curator HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dealshelf/curator/engine/catalog"
	"github.com/dealshelf/curator/engine/curator"
	"github.com/dealshelf/curator/engine/shelf"
	"github.com/dealshelf/curator/pkg/metrics"
	"github.com/dealshelf/curator/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port       string
	CORSOrigin string
	Warm       bool
	Curator    curator.Config
}

func loadConfig() Config {
	return Config{
		Port:       envOr("PORT", "8080"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),
		Warm:       envOr("WARM_CACHE", "true") == "true",
		Curator:    curator.ConfigFromEnv(),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(loadConfig(), logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	rt, err := curator.Setup(ctx, cfg.Curator, logger, reg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Service.Listen(); err != nil {
		return err
	}
	defer rt.Service.Close()

	if cfg.Warm {
		go rt.Service.Refresh(ctx)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newHandler(rt.Service, adminFor(rt), reg, cfg.CORSOrigin, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// pinStore manages editor-pinned deals.
type pinStore interface {
	Load(ctx context.Context) []catalog.PinnedEntry
	Pin(ctx context.Context, it catalog.Item) (catalog.PinnedEntry, error)
	Unpin(ctx context.Context, id string) error
}

// overrideStore manages manual shelf overrides.
type overrideStore interface {
	Save(ctx context.Context, r shelf.OverrideRecord) error
	Remove(ctx context.Context, title string) error
}

// admin holds the optional editorial stores; nil stores answer 503.
type admin struct {
	pins      pinStore
	overrides overrideStore
}

func adminFor(rt *curator.Runtime) admin {
	var a admin
	if rt.Pinned != nil {
		a.pins = rt.Pinned
	}
	if rt.Overrides != nil {
		a.overrides = rt.Overrides
	}
	return a
}

func newHandler(svc *curator.Service, adm admin, reg *metrics.Registry, origin string, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(svc))
	mux.HandleFunc("GET /api/deals/top", handleTop(svc))
	mux.HandleFunc("GET /api/deals/week", handleWeek(svc))
	mux.HandleFunc("GET /api/shelves", handleShelves(svc))
	mux.HandleFunc("GET /api/products", handleProducts(svc))
	mux.HandleFunc("POST /api/cache/clear", handleClear(svc, logger))
	mux.HandleFunc("GET /api/pinned", handleListPinned(adm.pins))
	mux.HandleFunc("POST /api/pinned", handlePin(adm.pins, logger))
	mux.HandleFunc("DELETE /api/pinned/{id}", handleUnpin(adm.pins, logger))
	mux.HandleFunc("PUT /api/shelves/overrides/{title}", handleSaveOverride(adm.overrides, logger))
	mux.HandleFunc("DELETE /api/shelves/overrides/{title}", handleRemoveOverride(adm.overrides, logger))
	mux.Handle("GET /metrics", reg.Handler())

	return mid.Chain(mux,
		mid.RequestID(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Metrics(reg),
		mid.CORS(origin),
		mid.OTel("curator-api"),
	)
}

// --- Handlers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthResponse is the JSON body of GET /api/health.
type HealthResponse struct {
	Status   string     `json:"status"`
	Loaded   bool       `json:"loaded"`
	LoadedAt *time.Time `json:"loadedAt,omitempty"`
}

func handleHealth(svc *curator.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}
		if at := svc.LoadedAt(); !at.IsZero() {
			resp.Loaded = true
			resp.LoadedAt = &at
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleTop(svc *curator.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		k := 0
		if raw := r.URL.Query().Get("k"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "k must be a positive integer")
				return
			}
			k = n
		}
		writeJSON(w, http.StatusOK, svc.TopDeals(r.Context(), k))
	}
}

func handleWeek(svc *curator.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.DealOfWeek(r.Context()))
	}
}

// ShelvesResponse is the JSON body of GET /api/shelves.
type ShelvesResponse struct {
	Shelves []catalog.Shelf `json:"shelves"`
}

func handleShelves(svc *curator.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ShelvesResponse{Shelves: svc.Shelves(r.Context())})
	}
}

// ProductsResponse is the JSON body of GET /api/products.
type ProductsResponse struct {
	Items []catalog.Item `json:"items"`
	Count int            `json:"count"`
}

func handleProducts(svc *curator.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		domain, feed := q.Get("domain"), q.Get("feed")
		if domain != "" && feed != "" {
			writeError(w, http.StatusBadRequest, "domain and feed cannot be combined")
			return
		}
		if domain != "" && string(catalog.ParseDomain(domain)) != domain {
			writeError(w, http.StatusBadRequest, "unknown domain "+strconv.Quote(domain))
			return
		}
		var items []catalog.Item
		if feed != "" {
			items = svc.ProductsByFeed(r.Context(), feed)
		} else {
			items = svc.Products(r.Context(), domain)
		}
		if items == nil {
			items = []catalog.Item{}
		}
		writeJSON(w, http.StatusOK, ProductsResponse{Items: items, Count: len(items)})
	}
}

// ClearResponse is the JSON body of POST /api/cache/clear.
type ClearResponse struct {
	Cleared bool   `json:"cleared"`
	Warning string `json:"warning,omitempty"`
}

func handleClear(svc *curator.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ClearResponse{Cleared: true}
		if err := svc.Invalidate(r.Context(), "api"); err != nil {
			logger.Warn("cache cleared locally only", "err", err)
			resp.Warning = "other instances were not notified"
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// --- Editorial handlers ---

func handleListPinned(pins pinStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pins == nil {
			writeError(w, http.StatusServiceUnavailable, "pinned deals are not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pinned": pins.Load(r.Context())})
	}
}

func handlePin(pins pinStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pins == nil {
			writeError(w, http.StatusServiceUnavailable, "pinned deals are not configured")
			return
		}
		var it catalog.Item
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&it); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if it.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		e, err := pins.Pin(r.Context(), it)
		if err != nil {
			logger.Error("pin failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func handleUnpin(pins pinStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pins == nil {
			writeError(w, http.StatusServiceUnavailable, "pinned deals are not configured")
			return
		}
		if err := pins.Unpin(r.Context(), r.PathValue("id")); err != nil {
			logger.Error("unpin failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// OverrideRequest is the JSON body of PUT /api/shelves/overrides/{title}.
type OverrideRequest struct {
	ItemIDs  []string `json:"itemIds"`
	Position int      `json:"position"`
}

func handleSaveOverride(store overrideStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "shelf overrides are not configured")
			return
		}
		var req OverrideRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		rec := shelf.OverrideRecord{Title: r.PathValue("title"), ItemIDs: req.ItemIDs, Position: req.Position}
		if err := store.Save(r.Context(), rec); err != nil {
			logger.Error("save shelf override failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRemoveOverride(store overrideStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "shelf overrides are not configured")
			return
		}
		if err := store.Remove(r.Context(), r.PathValue("title")); err != nil {
			logger.Error("remove shelf override failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
