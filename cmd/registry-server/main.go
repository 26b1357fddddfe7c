package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/registry/internal/config"
	"github.com/ehr/registry/internal/domain/consultation"
	"github.com/ehr/registry/internal/domain/records"
	"github.com/ehr/registry/internal/domain/registry"
	"github.com/ehr/registry/internal/domain/scheduling"
	"github.com/ehr/registry/internal/platform/metrics"
	"github.com/ehr/registry/internal/platform/middleware"
	"github.com/ehr/registry/internal/seed"
	"github.com/ehr/registry/pkg/logging"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "registry-server",
		Short: "Clinic patient registry API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(doctorsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the registry API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app holds the in-memory registry and everything built around it.
type app struct {
	svc *registry.Service
	gen *seed.Generator
}

// newApp wires the stores and the facade. reg may be nil to disable metrics.
func newApp(cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) *app {
	s := cfg.RandomSeed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}

	var m *metrics.RegistryMetrics
	if reg != nil {
		m = metrics.NewRegistryMetrics(reg)
	}

	store := records.NewStore(records.DefaultRoster)
	queue := consultation.NewQueue()
	sched := scheduling.NewScheduler(store, queue,
		scheduling.WithRand(rand.New(rand.NewPCG(s, 1))),
		scheduling.WithHorizon(cfg.ScheduleHorizonDays),
	)
	rx := registry.NewConditionPrescriber(rand.New(rand.NewPCG(s, 2)))

	return &app{
		svc: registry.New(store, queue, sched, rx, m).WithMaxBatch(cfg.MaxBatch).WithLogger(logger),
		gen: seed.New(s),
	}
}

// newServer builds the echo instance with middleware, health, metrics and
// the /api/v1 routes.
func newServer(cfg *config.Config, a *app, logger zerolog.Logger, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	if reg != nil {
		e.Use(middleware.Metrics(metrics.NewHTTPMetrics(reg)))
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
	rateLimitCfg.BurstSize = cfg.RateLimitBurst
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	registry.NewHandler(a.svc, a.gen).RegisterRoutes(apiV1)
	return e
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg)

	var reg *prometheus.Registry
	if cfg.MetricsEnabled {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	a := newApp(cfg, logger, reg)
	if cfg.SeedPatients > 0 {
		if _, err := a.svc.Register(cfg.SeedPatients, a.gen); err != nil {
			return fmt.Errorf("seed patients: %w", err)
		}
		logger.Info().Int("patients", cfg.SeedPatients).Msg("seeded synthetic patients")
	}

	e := newServer(cfg, a, logger, reg)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
