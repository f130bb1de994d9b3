package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/stockscope/searchd/internal/cache"
	"github.com/stockscope/searchd/internal/clients/alphavantage"
	"github.com/stockscope/searchd/internal/clients/openfigi"
	"github.com/stockscope/searchd/internal/clients/yahoo"
	"github.com/stockscope/searchd/internal/config"
	"github.com/stockscope/searchd/internal/directory"
	"github.com/stockscope/searchd/internal/gateway"
	"github.com/stockscope/searchd/internal/metrics"
	"github.com/stockscope/searchd/internal/scheduler"
	"github.com/stockscope/searchd/internal/search"
	"github.com/stockscope/searchd/internal/server"
	"github.com/stockscope/searchd/pkg/logger"
)

func main() {
	// Load configuration first so the log level is honored from the start
	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New(logger.Config{Level: "info", Pretty: true})
		bootstrap.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting searchd")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to create data directory")
	}

	// Symbol directory (local SQLite, derived data)
	dir, err := directory.Open(filepath.Join(cfg.DataDir, "directory.db"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open symbol directory")
	}
	defer dir.Close()

	// Metrics registry and async recorder
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	recorder := metrics.NewRecorder(m, cfg.MetricsBuffer, log)
	defer recorder.Close()

	// Cache and provider gateway
	store := cache.NewStore(log)

	providers, err := buildProviders(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build provider chain")
	}

	gw := gateway.New(providers, gateway.Config{
		Timeout:      cfg.ProviderTimeout,
		RetryBackoff: cfg.RetryBackoff,
		Breaker: gateway.BreakerConfig{
			Threshold: cfg.BreakerThreshold,
			Window:    cfg.BreakerWindow,
			Cooldown:  cfg.BreakerCooldown,
		},
	}, log)
	gw.SetObserver(func(provider, outcome string) {
		m.ProviderCallsTotal.WithLabelValues(provider, outcome).Inc()
	})

	svc := search.NewService(store, gw, dir, recorder, search.Config{
		ResultTTL:   cfg.ResultTTL,
		QuoteTTL:    cfg.QuoteTTL,
		MetadataTTL: cfg.MetadataTTL,
		MaxResults:  cfg.MaxResults,
	}, log)

	// Background maintenance
	sched := scheduler.New(log)
	if err := registerJobs(sched, store, dir, gw, m, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		Search:   svc,
		Cache:    store,
		Gateway:  gw,
		Recorder: recorder,
		Dir:      dir,
		Gatherer: registry,
		DevMode:  cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Strs("providers", cfg.ProviderOrder).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildProviders instantiates the configured vendor adapters in priority order.
func buildProviders(cfg *config.Config, log zerolog.Logger) ([]gateway.MarketDataProvider, error) {
	providers := make([]gateway.MarketDataProvider, 0, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		switch name {
		case alphavantage.ProviderName:
			providers = append(providers, alphavantage.NewClient(cfg.AlphaVantageAPIKey, log))
		case yahoo.ProviderName:
			providers = append(providers, yahoo.NewClient(log))
		case openfigi.ProviderName:
			providers = append(providers, openfigi.NewClient(cfg.OpenFIGIAPIKey, log))
		default:
			return nil, fmt.Errorf("unknown provider: %s", name)
		}
	}
	return providers, nil
}

func registerJobs(sched *scheduler.Scheduler, store *cache.Store, dir *directory.Repository, gw *gateway.Gateway, m *metrics.Metrics, log zerolog.Logger) error {
	// Every minute: lazy expiry handles reads, the sweep bounds memory
	if err := sched.AddJob("0 * * * * *", cache.NewSweepJob(store, log)); err != nil {
		return err
	}
	// Daily: drop directory rows no search has refreshed in a month
	if err := sched.AddJob("@daily", directory.NewPruneJob(dir, log)); err != nil {
		return err
	}
	// Frequently: mirror breaker positions into the Prometheus gauge
	return sched.AddJob("@every 15s", metrics.NewCircuitStateJob(gw, m, log))
}
