package sensorflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorstore"
	"github.com/rs/zerolog"
)

// ConsumerService persists relayed readings.
type ConsumerService = messagepipeline.StreamingService[sensors.Message]

// NewConsumerService assembles the consumer pipeline: relay deliveries are decoded into
// typed messages and applied to the store.
//
// Undecodable deliveries are skipped and a reading for an unregistered sensor is logged,
// both are acked. A storage fault is returned so the delivery is nacked and redelivered,
// unless AckOnReceipt is set.
func NewConsumerService(
	cfg PipelineConfig,
	consumer messagepipeline.MessageConsumer,
	router *sensors.Router,
	store sensorstore.Store,
	metrics *PipelineMetrics,
	logger zerolog.Logger,
) (*ConsumerService, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if router == nil {
		router = sensors.DefaultRouter()
	}
	logger = logger.With().Str("component", "ConsumerPipeline").Logger()

	decode := func(_ context.Context, msg *messagepipeline.Message) (*sensors.Message, bool, error) {
		decoded, err := router.DecodeBytes(msg.Payload)
		if err != nil {
			logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Dropping undecodable relay message.")
			return nil, true, nil
		}
		return &decoded, false, nil
	}
	transformer := countSkips(
		messagepipeline.WithPayloadValidation[sensors.Message](decode, cfg.PayloadMinSize, cfg.PayloadMaxSize, logger),
		metrics, PipelineConsumer,
	)

	processor := func(ctx context.Context, original messagepipeline.Message, msg *sensors.Message) error {
		record, err := store.ApplyReading(ctx, *msg)
		switch {
		case errors.Is(err, sensors.ErrNotFound):
			metrics.Inc(PipelineConsumer, OutcomeNotFound)
			logger.Warn().Str("msg_id", original.ID).Str("uuid", msg.UUID).Str("feature", msg.Topic.Feature).
				Msg("No registered sensor matches reading, dropping.")
			return nil
		case err != nil:
			metrics.Inc(PipelineConsumer, OutcomeFailed)
			return fmt.Errorf("apply %s reading for %s: %w", msg.Topic.Feature, msg.UUID, err)
		}
		metrics.Inc(PipelineConsumer, OutcomePersisted)
		logger.Debug().Str("msg_id", original.ID).Str("uuid", record.UUID).Float64("value", record.Value).
			Time("modified_at", record.ModifiedAt).Msg("Reading persisted.")
		return nil
	}

	return messagepipeline.NewStreamingService[sensors.Message](
		messagepipeline.StreamingServiceConfig{Name: "consumer", NumWorkers: cfg.NumWorkers, AckOnReceipt: cfg.AckOnReceipt},
		consumer, transformer, processor, logger,
	)
}
