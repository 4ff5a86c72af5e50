package main

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/sells-group/zonal-cli/internal/export"
	"github.com/sells-group/zonal-cli/internal/feature"
	"github.com/sells-group/zonal-cli/internal/monitoring"
	"github.com/sells-group/zonal-cli/internal/raster"
	"github.com/sells-group/zonal-cli/internal/zonal"
)

var servePort int

// api serves summarize requests against rasters loaded once at startup.
type api struct {
	layer   raster.Layer
	weights raster.Layer
	opts    zonal.Options
	maxBody int64
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the zonal statistics HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		layer, err := raster.Open(cfg.Server.Raster)
		if err != nil {
			return err
		}
		a := &api{
			layer:   layer,
			opts:    summarizeOptions(cfg.Summarize),
			maxBody: int64(cfg.Server.MaxBodyMB) << 20,
		}
		if cfg.Server.Weights != "" {
			w, err := raster.Open(cfg.Server.Weights)
			if err != nil {
				return err
			}
			a.weights = w
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(a, cfg.Server.CORSOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.String("raster", cfg.Server.Raster),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildRouter(a *api, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", monitoring.Handler())
	r.Post("/v1/summarize", a.summarize)
	return r
}

// summarize handles POST /v1/summarize. The body is a GeoJSON Feature or
// FeatureCollection. Query parameters: stat (repeatable, required),
// include_cols (repeatable), policy (strict|lenient), format (json|csv).
func (a *api) summarize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	code := http.StatusOK
	defer func() {
		monitoring.RequestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
		monitoring.RequestDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()
	fail := func(status int, msg string) {
		code = status
		writeJSON(w, status, map[string]string{"error": msg})
	}

	q := r.URL.Query()
	ops, err := zonal.ParseOperations(q["stat"])
	if err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}

	format := export.JSON
	if f := q.Get("format"); f != "" {
		format, err = export.ParseFormat(f)
		if err != nil || (format != export.JSON && format != export.CSV) {
			fail(http.StatusBadRequest, "format must be json or csv")
			return
		}
	}

	body := r.Body
	if a.maxBody > 0 {
		if r.ContentLength > a.maxBody {
			fail(http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		body = http.MaxBytesReader(w, r.Body, a.maxBody)
	}
	features, err := feature.ReadGeoJSON(body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		fail(http.StatusBadRequest, "invalid GeoJSON body: "+err.Error())
		return
	}

	opts := a.opts
	opts.Weights = a.weights
	opts.IncludeCols = q["include_cols"]
	if p := q.Get("policy"); p != "" {
		opts.ErrorPolicy = zonal.ErrorPolicy(p)
	}

	out, err := zonal.Summarize(r.Context(), a.layer, features, opts, ops...)
	if err != nil {
		zap.L().Warn("serve: summarize failed", zap.Error(err))
		switch {
		case zonal.IsGeometryError(err), zonal.IsSchemaMismatch(err):
			fail(http.StatusUnprocessableEntity, err.Error())
		case zonal.IsGridMismatch(err):
			fail(http.StatusInternalServerError, err.Error())
		default:
			fail(http.StatusBadRequest, err.Error())
		}
		return
	}

	monitoring.FeaturesTotal.Add(float64(out.Succeeded()))
	monitoring.FeatureErrorsTotal.Add(float64(len(out.Errors)))
	monitoring.RowsTotal.Add(float64(out.Table.Len()))

	w.Header().Set("X-Zonal-Skipped", strconv.Itoa(len(out.Errors)))
	if format == export.CSV {
		w.Header().Set("Content-Type", "text/csv")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, out.Table); err != nil {
		zap.L().Error("serve: write response", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
