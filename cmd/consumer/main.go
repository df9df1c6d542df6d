// Command consumer reads typed readings from the Pub/Sub relay subscription and applies
// them to the document store.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/microservice"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorflow"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := sensorflow.LoadConfig("consumer", os.Args[1:], ":8082")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := microservice.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr).With().Str("service", cfg.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := sensorflow.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("Failed to open document store")
	}

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Pub/Sub client")
	}
	defer func() { _ = psClient.Close() }()

	consumerCfg := messagepipeline.NewGooglePubsubConsumerDefaults(cfg.RelaySubscriptionID)
	consumerCfg.ProjectID = cfg.ProjectID
	consumer, err := messagepipeline.NewGooglePubsubConsumer(ctx, consumerCfg, psClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create relay consumer")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := sensorflow.NewPipelineMetrics(reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to register metrics")
	}

	service, err := sensorflow.NewConsumerService(cfg.Pipeline, consumer, sensors.DefaultRouter(), store, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble consumer pipeline")
	}

	server := microservice.NewBaseServer(logger, cfg.HTTPPort, reg)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	// Workers outlive the signal context so in-flight deliveries are settled during Stop.
	serviceCtx, cancelService := context.WithCancel(context.Background())
	defer cancelService()
	if err := service.Start(serviceCtx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start consumer pipeline")
	}
	logger.Info().
		Str("subscription", cfg.RelaySubscriptionID).
		Str("backend", cfg.StoreBackend).
		Bool("ack_on_receipt", cfg.Pipeline.AckOnReceipt).
		Msg("Consumer running.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := service.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Consumer pipeline did not stop cleanly.")
	}
	_ = server.Shutdown(shutdownCtx)
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to close document store.")
	}
	logger.Info().Msg("Consumer stopped.")
}
