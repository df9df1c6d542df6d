// Command registry serves the sensor registration and value lookup API.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/illmade-knight/go-sensorflow/pkg/cache"
	"github.com/illmade-knight/go-sensorflow/pkg/microservice"
	"github.com/illmade-knight/go-sensorflow/pkg/registry"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorflow"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := sensorflow.LoadConfig("registry", os.Args[1:], ":8080")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := microservice.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr).With().Str("service", cfg.ServiceName).Logger()
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := sensorflow.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open document store")
	}

	// Lookup chain: in-process LRU, then Redis when configured, then the store.
	var fallback cache.Fetcher[string, float64] = registry.NewValueSource(store)
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache[string, float64](ctx, &cache.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			CacheTTL:  cfg.CacheTTL,
			KeyPrefix: "sensorflow:value:",
		}, logger, fallback)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		fallback = redisCache
	}
	values, err := cache.NewInMemoryLRUCache[string, float64](cfg.CacheSize, cfg.CacheTTL, fallback)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create value cache")
	}

	engine := registry.NewEngine(logger)
	registry.NewController(store, values, sensors.DefaultRouter(), logger).RegisterRoutes(engine)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	server := microservice.NewBaseServer(logger, cfg.HTTPPort, reg)
	server.Handle("/", engine)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start HTTP server")
	}
	logger.Info().Str("backend", cfg.StoreBackend).Bool("redis", cfg.RedisAddr != "").Msg("Registry running.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	if err := values.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close value cache.")
	}
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to close document store.")
	}
	logger.Info().Msg("Registry stopped.")
}
