package sensorflow

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/mqttconverter"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/rs/zerolog"
)

// PipelineConfig tunes one StreamingService.
type PipelineConfig struct {
	NumWorkers int
	// AckOnReceipt acks each delivery before it is processed. Only meaningful for sources
	// with real acknowledgement, i.e. the relay subscription.
	AckOnReceipt bool
	// PayloadMinSize and PayloadMaxSize bound accepted payloads. A max of zero or less
	// means no upper bound.
	PayloadMinSize int
	PayloadMaxSize int
}

// ProducerService relays MQTT notifications to the relay topic as typed wire messages.
type ProducerService = messagepipeline.StreamingService[mqttconverter.RelayMessage]

// NewProducerService assembles the producer pipeline: MQTT deliveries are converted to
// wire messages and published with family, deviceId and feature attributes. Deliveries
// that cannot be converted are skipped; publish failures are counted and logged.
func NewProducerService(
	cfg PipelineConfig,
	consumer messagepipeline.MessageConsumer,
	router *sensors.Router,
	publisher messagepipeline.SimplePublisher,
	metrics *PipelineMetrics,
	logger zerolog.Logger,
) (*ProducerService, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	if router == nil {
		router = sensors.DefaultRouter()
	}
	logger = logger.With().Str("component", "ProducerPipeline").Logger()

	transformer := countSkips(
		messagepipeline.WithPayloadValidation(
			mqttconverter.NewRelayTransformer(router, logger),
			cfg.PayloadMinSize, cfg.PayloadMaxSize, logger,
		),
		metrics, PipelineProducer,
	)

	processor := func(ctx context.Context, original messagepipeline.Message, relay *mqttconverter.RelayMessage) error {
		if err := publisher.Publish(ctx, relay.Data, relay.Attributes()); err != nil {
			metrics.Inc(PipelineProducer, OutcomeFailed)
			return fmt.Errorf("%w: relay %s: %w", sensors.ErrTransportFault, relay.Topic, err)
		}
		metrics.Inc(PipelineProducer, OutcomePublished)
		logger.Debug().Str("msg_id", original.ID).Str("topic", relay.Topic.String()).Msg("Relayed reading.")
		return nil
	}

	return messagepipeline.NewStreamingService[mqttconverter.RelayMessage](
		messagepipeline.StreamingServiceConfig{Name: "producer", NumWorkers: cfg.NumWorkers},
		consumer, transformer, processor, logger,
	)
}

// countSkips records a skipped outcome for every delivery the transformer drops.
func countSkips[T any](inner messagepipeline.MessageTransformer[T], metrics *PipelineMetrics, pipeline string) messagepipeline.MessageTransformer[T] {
	return func(ctx context.Context, msg *messagepipeline.Message) (*T, bool, error) {
		payload, skip, err := inner(ctx, msg)
		if skip && err == nil {
			metrics.Inc(pipeline, OutcomeSkipped)
		}
		return payload, skip, err
	}
}
