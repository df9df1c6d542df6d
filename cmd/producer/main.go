// Command producer relays MQTT sensor notifications to the Pub/Sub relay topic as typed
// wire messages.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/microservice"
	"github.com/illmade-knight/go-sensorflow/pkg/mqttconverter"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorflow"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := sensorflow.LoadConfig("producer", os.Args[1:], ":8081")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := microservice.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr).With().Str("service", cfg.ServiceName).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Pub/Sub client")
	}
	defer func() { _ = psClient.Close() }()

	publisher, err := messagepipeline.NewGoogleSimplePublisher(ctx, &messagepipeline.GoogleSimplePublisherConfig{TopicID: cfg.RelayTopicID}, psClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create relay publisher")
	}

	router := sensors.DefaultRouter()
	mqttCfg := mqttconverter.LoadMQTTClientConfigWithEnv()
	mqttCfg.Topics = mqttconverter.SubscriptionTopics(cfg.Family, router.Features())
	mqttCfg.WillTopic = mqttconverter.WillTopic(cfg.Family)
	consumer, err := mqttconverter.NewMqttConsumer(mqttCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create MQTT consumer")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := sensorflow.NewPipelineMetrics(reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to register metrics")
	}

	service, err := sensorflow.NewProducerService(cfg.Pipeline, consumer, router, publisher, metrics, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to assemble producer pipeline")
	}

	server := microservice.NewBaseServer(logger, cfg.HTTPPort, reg)
	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start HTTP server")
	}

	// Workers outlive the signal context so in-flight deliveries drain during Stop.
	serviceCtx, cancelService := context.WithCancel(context.Background())
	defer cancelService()
	if err := service.Start(serviceCtx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start producer pipeline")
	}
	logger.Info().Strs("topics", mqttCfg.Topics).Str("relay_topic", cfg.RelayTopicID).Msg("Producer running.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := service.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Producer pipeline did not stop cleanly.")
	}
	if err := publisher.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Relay publisher did not flush.")
	}
	_ = server.Shutdown(shutdownCtx)
	logger.Info().Msg("Producer stopped.")
}
