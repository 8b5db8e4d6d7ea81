package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-scraper/internal/grid"
	"github.com/sells-group/lead-scraper/internal/jobs"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job-control HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv("serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := announceJobs(ctx, env); err != nil {
			return err
		}

		err = startServer(ctx, buildMux(env.Manager, env.Regions), resolvePort(servePort, cfg.Server.Port))

		zap.L().Info("stopping jobs")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutErr := env.Manager.Shutdown(shutdownCtx); shutErr != nil {
			zap.L().Warn("jobs did not stop in time", zap.Error(shutErr))
		}
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// announceJobs registers resumable local jobs and counts remote jobs, both
// at once, and logs what it found.
func announceJobs(ctx context.Context, env *appEnv) error {
	var local, remote int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := env.Manager.RegisterResumable()
		local = n
		return err
	})
	g.Go(func() error {
		remote = len(env.Ledger.ListJobs(gctx))
		return nil
	})
	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "discover jobs")
	}
	zap.L().Info("jobs discovered",
		zap.Int("resumable_local", local),
		zap.Int("remote", remote),
		zap.Bool("ledger", env.Ledger.Enabled()),
	)
	return nil
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves handler on port until ctx is cancelled, then shuts the
// server down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildMux wires the job-control routes.
func buildMux(m *jobs.Manager, regions *grid.Table) http.Handler {
	if regions == nil {
		regions = grid.DefaultTable()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/regions", func(w http.ResponseWriter, r *http.Request) {
		type region struct {
			Key  string `json:"key"`
			Name string `json:"name"`
		}
		keys := regions.RegionKeys()
		list := make([]region, 0, len(keys))
		for _, k := range keys {
			list = append(list, region{Key: k, Name: regions.DisplayName(k)})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"regions": list,
			"states":  regions.StateNames(),
		})
	})

	r.Post("/api/start", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Niche  string `json:"niche"`
			Region string `json:"region"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		id, err := m.Start(req.Niche, req.Region)
		if errors.Is(err, jobs.ErrNicheRequired) {
			writeError(w, http.StatusBadRequest, "Niche is required")
			return
		}
		if err != nil {
			zap.L().Error("start job failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "could not start job")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobId": id})
	})

	r.Post("/api/resume/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		switch err := m.Resume(id); {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "jobId": id})
		case errors.Is(err, jobs.ErrJobNotFound):
			writeError(w, http.StatusNotFound, "Job not found")
		case errors.Is(err, jobs.ErrAlreadyRunning):
			writeError(w, http.StatusBadRequest, "Job is already running")
		default:
			writeError(w, http.StatusBadRequest, "Job cannot be resumed")
		}
	})

	r.Post("/api/stop/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := m.Stop(chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	r.Get("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.ListAll(r.Context()))
	})

	r.Get("/api/job/{id}", func(w http.ResponseWriter, r *http.Request) {
		v, err := m.State(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		writeJSON(w, http.StatusOK, v)
	})

	r.Get("/download/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if path := m.ExportPath(id); path != "" {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
			w.Header().Set("Content-Type", "text/csv")
			http.ServeFile(w, r, path)
			return
		}
		if url := m.ExportURL(r.Context(), id); url != "" {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
		writeError(w, http.StatusNotFound, "CSV not available")
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
