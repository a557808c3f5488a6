// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nbhugo/internal/api"
	"github.com/starford/nbhugo/internal/logfields"
	"github.com/starford/nbhugo/internal/metrics"
	"github.com/starford/nbhugo/internal/proc"
	"github.com/starford/nbhugo/internal/sse"
	"github.com/starford/nbhugo/internal/watch"
)

// Run serves the blog: it watches the notebooks directory and keeps the
// rendered posts in sync while `hugo server`, the notebook server and the
// status API run alongside. It returns once ctx is cancelled or a signal
// arrives and everything has shut down.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.newLogger(os.Stdout, true)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("site_root", cfg.Site.Root),
		slog.String("notebooks_dir", cfg.Site.NotebooksDir),
		slog.String("registry", cfg.Registry.SQLitePath),
		slog.Bool("http_enabled", cfg.App.HTTP.Enabled),
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	comps, err := app.build(logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	// Observers of every coordinator action.
	promReg := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(promReg)
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	coord := watch.NewCoordinator(comps.svc,
		watch.WithObserver(recorder),
		watch.WithObserver(broker),
		watch.WithCoordinatorLogger(logger),
	)
	recorder.TrackStates(coord)

	watcher := watch.NewWatcher(comps.store, comps.svc.NotebooksDir(), coord,
		watch.WithDebounce(cfg.Watch.Debounce),
		watch.WithInitialSync(cfg.Watch.InitialSync),
		watch.WithWatcherLogger(logger),
	)

	g, gCtx := errgroup.WithContext(ctx)

	// Watch loop.
	g.Go(func() error {
		if err := watcher.Run(gCtx); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})

	// Periodic resync.
	if cfg.Watch.ResyncInterval > 0 {
		resync, err := watch.NewResync(gCtx, watcher, cfg.Watch.ResyncInterval, logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			select {
			case <-watcher.Ready():
				resync.Start()
			case <-gCtx.Done():
			}
			<-gCtx.Done()
			if err := resync.Stop(); err != nil {
				logger.Warn("resync stop failed", logfields.Error(err))
			}
			return nil
		})
	}

	// Child processes.
	hugoArgv := append([]string{cfg.Hugo.Binary, "server"}, cfg.Hugo.ServeArgs...)
	hugoArgv = append(hugoArgv, app.serve.HugoArgs...)
	children := []*proc.Process{{
		Name:   "hugo",
		Argv:   hugoArgv,
		Dir:    cfg.Site.Root,
		Logger: logger,
	}}
	if cfg.Jupyter.Enabled && !app.serve.NoJupyter {
		children = append(children, &proc.Process{
			Name:   "jupyter",
			Argv:   append([]string{cfg.Jupyter.Binary}, cfg.Jupyter.Args...),
			Dir:    cfg.SitePath(cfg.Site.NotebooksDir),
			Logger: logger,
		})
	}
	for _, child := range children {
		g.Go(func() error { return child.Run(gCtx) })
	}

	if app.serve.Open {
		g.Go(func() error {
			select {
			case <-watcher.Ready():
			case <-gCtx.Done():
				return nil
			}
			if err := proc.OpenBrowser(gCtx, app.runner, cfg.Hugo.URL); err != nil {
				logger.Warn("open browser failed", slog.String("url", cfg.Hugo.URL), logfields.Error(err))
			}
			return nil
		})
	}

	// Status API.
	var httpServer *http.Server
	if cfg.App.HTTP.Enabled {
		httpServer = &http.Server{
			Addr:              cfg.App.HTTP.Address(),
			Handler:           newStatusRouter(app, comps, watcher, coord, broker, recorder),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", logfields.Error(err))
			}
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", logfields.Error(err))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group once a signal arrives. It is not reported.
var errShutdown = errors.New("shutdown requested")

func newStatusRouter(app *application, comps *components, watcher *watch.Watcher, coord *watch.Coordinator, broker *sse.Broker, recorder *metrics.Recorder) http.Handler {
	cfg := app.config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		select {
		case <-watcher.Ready():
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"starting"}`))
		}
	})
	r.Method(http.MethodGet, "/metrics", recorder.Handler())

	r.Mount("/api", api.NewRouter(comps.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, api.Routes{
		Trigger: watcher,
		States:  coord,
		SSE:     broker,
	}))
	return r
}
