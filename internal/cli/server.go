package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/voicesurvey"
	"github.com/aretw0/voicesurvey/internal/config"
	"github.com/aretw0/voicesurvey/internal/metrics"
	"github.com/aretw0/voicesurvey/pkg/adapters/catalog"
	httpAdapter "github.com/aretw0/voicesurvey/pkg/adapters/http"
	"github.com/aretw0/voicesurvey/pkg/adapters/recording"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App is a fully wired survey service, ready to be served.
type App struct {
	Handler  http.Handler
	Engine   *voicesurvey.Engine
	Backends *Backends
	Streams  *httpAdapter.StreamManager
	Metrics  *metrics.Metrics
}

// Close releases the backends.
func (a *App) Close() error {
	return a.Backends.Close()
}

// NewApp loads the question catalog, opens the backends and wires the HTTP handler.
// Metrics are registered on reg and exposed on /metrics.
func NewApp(ctx context.Context, cfg *config.Config, reg *prometheus.Registry, logger *slog.Logger) (*App, error) {
	questions, err := catalog.LoadFile(ctx, cfg.Survey.Questions)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	logger.Info("question catalog loaded", "path", cfg.Survey.Questions, "questions", questions.Len())

	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	backends, err := OpenBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	streams := httpAdapter.NewStreamManager()
	hooks := streams.Hooks(m.Hooks(createDebugHooks(logger)))

	engine, err := createEngine(cfg, questions, backends, hooks, logger)
	if err != nil {
		_ = backends.Close()
		return nil, err
	}

	handlerOpts := []httpAdapter.Option{
		httpAdapter.WithPublicURL(cfg.Server.PublicURL),
		httpAdapter.WithStreams(streams),
		httpAdapter.WithObserver(m),
		httpAdapter.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
		httpAdapter.WithLogger(logger),
	}
	if backends.Health != nil {
		handlerOpts = append(handlerOpts, httpAdapter.WithHealthCheck(backends.Health))
	}
	if cfg.Provider.APIKey != "" {
		relay := recording.NewRelay(cfg.Provider.APIKey, recording.WithBaseURL(cfg.Provider.BaseURL))
		handlerOpts = append(handlerOpts, httpAdapter.WithRecordings(relay))
	} else {
		logger.Warn("provider.api_key not set, recording playback disabled")
	}

	return &App{
		Handler:  httpAdapter.NewHandler(engine, handlerOpts...),
		Engine:   engine,
		Backends: backends,
		Streams:  streams,
		Metrics:  m,
	}, nil
}

// Serve runs the survey service until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	app, err := NewApp(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close backends", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("voicesurvey server listening", "addr", srv.Addr, "version", voicesurvey.Version)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

		// Give outstanding callbacks a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "err", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("error killing server: %w", err)
			}
		}
		logger.Info("voicesurvey server stopped")
		return nil
	}
}
