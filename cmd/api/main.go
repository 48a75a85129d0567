package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"stylesafe/internal/http/handlers"
	"stylesafe/internal/http/httpapi"
	"stylesafe/internal/infra"
	"stylesafe/internal/jobmanager"
	"stylesafe/internal/manifest"
	"stylesafe/internal/metrics"
	"stylesafe/internal/preflight"
	"stylesafe/internal/provider"
	"stylesafe/internal/styleguard"
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ledger, err := manifest.Open(cfg.ManifestPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open manifest ledger")
	}
	defer ledger.Close()

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)

	var inner provider.Client
	if cfg.ProviderAPIKey == "" {
		logger.Warn().Msg("provider api key missing, using synthetic generation")
		inner = provider.NewSynthetic()
	} else {
		inner = provider.NewHTTPClient(provider.HTTPOptions{
			BaseURL: cfg.ProviderBaseURL,
			APIKey:  cfg.ProviderAPIKey,
			Model:   cfg.ProviderModel,
			Timeout: cfg.ProviderTimeout,
		})
	}
	client := provider.NewRetryClient(inner, provider.RetryOptions{
		MaxRetries:        cfg.ProviderRetryMax,
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.MaxInFlight,
		OnRetry:           met.ProviderRetries.Inc,
	}, logger)

	pre := preflight.New(preflight.Budgets{
		JobMaxBytes:     cfg.JobMaxBytes,
		ItemMaxBytes:    cfg.ItemMaxBytes,
		MaxImagesPerJob: cfg.MaxImagesPerJob,
		MaxRowsPerChunk: cfg.MaxRowsPerChunk,
	}, logger, preflight.WithCompression(cfg.CompressTargetBytes))

	guard := styleguard.New(cfg.CopyThreshold, cfg.StyleRetryMax, logger)

	jobs := jobmanager.New(jobmanager.Config{
		MaxInFlight:      int64(cfg.MaxInFlight),
		ChunkConcurrency: cfg.ChunkConcurrency,
		PollInterval:     cfg.PollInterval,
		PollTimeout:      cfg.PollTimeout,
	}, pre, guard, client, ledger, met, logger)

	app := handlers.NewApp(jobs, pre, logger)
	router := httpapi.NewRouter(app, metrics.Handler(registry), cfg.RateLimitPerMin)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to drain job manager")
	}
	logger.Info().Msg("server stopped")
}
