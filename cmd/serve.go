package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/longbox-labs/pricefeed-cli/internal/baseline"
	"github.com/longbox-labs/pricefeed-cli/internal/model"
	"github.com/longbox-labs/pricefeed-cli/internal/monitoring"
	"github.com/longbox-labs/pricefeed-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for search, listings, and pipeline health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		warmBaselines(ctx, env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// warmBaselines replays recently stored listings into the anomaly
// tracker so a fresh process does not start from a cold baseline.
func warmBaselines(ctx context.Context, e *env) {
	tracker := e.Engine.Tracker()
	seeded := 0
	for _, mkt := range model.AllMarketplaces() {
		listings, err := e.Store.ListListings(ctx, store.ListingFilter{
			Marketplace: mkt,
			Limit:       cfg.Anomaly.WindowSize,
		})
		if err != nil {
			zap.L().Warn("baseline warmup failed", zap.String("marketplace", string(mkt)), zap.Error(err))
			continue
		}
		for _, l := range listings {
			tracker.Observe(string(mkt), baseline.MetricPrice, float64(l.PriceCents)/100)
			seeded++
		}
	}
	zap.L().Info("baselines warmed", zap.Int("listings", seeded))
}

func newRouter(e *env) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", handleSearch(e))
		r.Get("/listings", handleListings(e))
		r.Get("/runs", handleRuns(e))
		r.Get("/status", handleStatus(e))
		r.Get("/metrics", handleMetrics(e))
	})

	return r
}

func handleSearch(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query       string `json:"query"`
			MaxResults  int    `json:"max_results"`
			IncludeSold bool   `json:"include_sold"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := e.Orchestrator.Search(r.Context(), req.Query, model.SearchOptions{
			MaxResults:          req.MaxResults,
			IncludeSoldListings: req.IncludeSold,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleListings(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ListingFilter{
			Marketplace: model.Marketplace(q.Get("marketplace")),
			Query:       q.Get("q"),
			Limit:       intParam(q.Get("limit"), 50),
			Offset:      intParam(q.Get("offset"), 0),
		}
		if v := q.Get("min_confidence"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid min_confidence")
				return
			}
			filter.MinConfidence = f
		}

		listings, err := e.Store.ListListings(r.Context(), filter)
		if err != nil {
			zap.L().Error("list listings", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"listings": listings,
			"count":    len(listings),
		})
	}
}

func handleRuns(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		runs, err := e.Store.ListRuns(r.Context(), store.RunFilter{
			Marketplace: model.Marketplace(q.Get("marketplace")),
			Status:      model.RunStatus(q.Get("status")),
			Limit:       intParam(q.Get("limit"), 50),
		})
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"runs":  runs,
			"count": len(runs),
		})
	}
}

func handleStatus(e *env) http.HandlerFunc {
	collector := monitoring.NewCollector(e.Store, e.Breakers, e.ErrorLog)
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := collector.Collect(r.Context(), intParam(r.URL.Query().Get("hours"), 24))
		if err != nil {
			zap.L().Error("collect status", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleMetrics(e *env) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		searches, cacheHits := e.Metrics.Totals()
		writeJSON(w, http.StatusOK, map[string]any{
			"searches":   searches,
			"cache_hits": cacheHits,
			"sources":    e.Metrics.Sources(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
