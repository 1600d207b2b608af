package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/alex-user-go/tripdata/internal/config"
	"github.com/alex-user-go/tripdata/internal/handler"
	"github.com/alex-user-go/tripdata/internal/middleware"
	"github.com/alex-user-go/tripdata/internal/obs"
	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/ratelimit"
	"github.com/alex-user-go/tripdata/internal/search"
	"github.com/alex-user-go/tripdata/internal/search/cache"
)

// Run initializes and runs the application until SIGINT or SIGTERM.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := obs.NewMetrics(registry, logger)

	engine := search.NewEngine(
		buildSources(cfg, metrics, logger),
		cache.NewCache(cfg.Aggregation.CacheTTL),
		cfg.Aggregation.ProviderTimeout,
		metrics,
		logger,
	)

	router := NewRouter(handler.New(engine, logger), metrics, cfg.Server, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	root := suture.New("tripdata", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: logger}).MustHook(),
		Timeout:   cfg.Server.ShutdownTimeout,
	})
	root.Add(newHTTPService(srv, cfg.Server.ShutdownTimeout, logger))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server", "addr", srv.Addr)
	if err := root.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("supervisor stopped: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// NewRouter assembles middleware and routes.
func NewRouter(h *handler.Handler, metrics *obs.Metrics, cfg config.ServerConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(metrics))

	r.Get("/healthz", obs.HealthHandler(logger))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			r.Use(handler.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}
		h.Register(r)
	})

	return r
}

// buildSources creates the enabled providers in merge order. Throttling
// is keyed by provider name on one shared limiter.
func buildSources(cfg *config.Config, metrics *obs.Metrics, logger *slog.Logger) search.Sources {
	limiter := ratelimit.New(0, 1)
	deps := providers.Deps{Limiter: limiter, Metrics: metrics, Logger: logger}

	settings := func(name string, pc config.ProviderConfig) providers.Settings {
		limiter.Configure(name, pc.RatePerSecond, pc.Burst)
		return providers.Settings{
			Name:            name,
			BaseURL:         pc.BaseURL,
			APIKey:          pc.APIKey,
			Timeout:         pc.Timeout,
			BreakerFailures: pc.BreakerFailures,
			BreakerCooldown: pc.BreakerCooldown,
		}
	}

	var src search.Sources
	if cfg.Directory.Enabled {
		src.Directories = append(src.Directories,
			providers.NewDirectoryProvider(settings("directory", cfg.Directory), deps))
	}
	if cfg.Places.Enabled {
		src.Maps = append(src.Maps,
			providers.NewPlacesProvider(settings("places", cfg.Places), cfg.Aggregation.SearchRadius, deps))
	}
	if cfg.Overpass.Enabled {
		src.Maps = append(src.Maps,
			providers.NewOverpassProvider(settings("overpass", cfg.Overpass), cfg.Aggregation.SearchRadius, deps))
	}
	if cfg.Social.Enabled {
		src.Social = append(src.Social,
			providers.NewSocialProvider(settings("social", cfg.Social), cfg.Social.AccountID, deps))
	}

	logger.Info("providers configured",
		"directories", len(src.Directories),
		"maps", len(src.Maps),
		"social", len(src.Social))

	return src
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
