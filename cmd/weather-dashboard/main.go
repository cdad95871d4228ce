package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	zlog "github.com/rs/zerolog/log"

	httpapi "github.com/i474232898/weather-dashboard/internal/api/http"
	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/config"
	"github.com/i474232898/weather-dashboard/internal/logging"
	"github.com/i474232898/weather-dashboard/internal/metrics"
	"github.com/i474232898/weather-dashboard/internal/scheduler"
	"github.com/i474232898/weather-dashboard/internal/session"
	"github.com/i474232898/weather-dashboard/internal/store"
	"github.com/i474232898/weather-dashboard/internal/token"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, cfg.LogPretty, os.Stdout)

	// Metrics live on a private registry so /metrics shows only this process.
	reg := prometheus.NewRegistry()
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		gatherer = reg
	}
	rec := metrics.New(cfg.MetricsEnabled, reg)

	// Shared outbound transport with resilience (backoff + circuit breaker + rate limit).
	transport, err := backend.NewTransport(backend.Config{
		BaseURL:       cfg.BackendBaseURL,
		Timeout:       cfg.HTTPTimeout,
		HealthTimeout: cfg.HealthTimeout,
		Backoff: backend.BackoffConfig{
			MaxRetries:      cfg.BackendMaxRetries,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
		},
		RPS:   cfg.BackendRPS,
		Burst: cfg.BackendBurst,
	}, rec, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create backend transport")
	}

	recent := store.NewMemoryStore(cfg.RecentSearches)
	tokens := token.NewCache(cfg.TokenCacheMB, cfg.SessionIdleTTL)
	sessions := session.NewRegistry(tokens, session.TransportClients(transport), recent, cfg.SessionIdleTTL, rec, log)
	service := weather.NewService(recent, cfg.ForecastDays, log)

	// Scheduler that probes backend health and evicts idle sessions.
	sched := scheduler.New(transport, sessions, cfg.HealthInterval, cfg.SessionSweepInterval, rec, log)
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	defer sched.Stop()

	opts := httpapi.Options{
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
		LoginPath:    cfg.LoginPath,
	}

	app := fiber.New(fiber.Config{
		AppName:               "weather-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * cfg.HTTPTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          httpapi.ErrorHandler(opts),
	})

	// Global middleware
	app.Use(logging.Middleware(log.With().Str("component", "http").Logger(), rec))
	app.Use(recover.New())

	httpapi.RegisterRoutes(app, httpapi.Deps{
		Sessions: sessions,
		Weather:  service,
		Health:   sched,
		Gatherer: gatherer,
		Options:  opts,
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("backend", cfg.BackendBaseURL).Msg("listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("fiber server stopped")
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
}
