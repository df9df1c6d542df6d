package messagepipeline

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// SimplePublisher publishes one payload at a time and reports the broker's verdict.
type SimplePublisher interface {
	// Publish blocks until the broker confirms or rejects the message, or ctx ends.
	Publish(ctx context.Context, payload []byte, attributes map[string]string) error
	// Stop flushes any pending messages and accepts a context for timeout control.
	Stop(ctx context.Context) error
}

// GoogleSimplePublisherConfig configures a GoogleSimplePublisher.
type GoogleSimplePublisherConfig struct {
	TopicID string
	// ConfirmTimeout bounds the wait for each publish result.
	ConfirmTimeout time.Duration
}

// GoogleSimplePublisher is a non-batching Pub/Sub publisher: every Publish waits for its
// own server acknowledgement.
type GoogleSimplePublisher struct {
	topic          *pubsub.Topic
	confirmTimeout time.Duration
	logger         zerolog.Logger
}

// NewGoogleSimplePublisher verifies that the topic exists before returning.
func NewGoogleSimplePublisher(ctx context.Context, cfg *GoogleSimplePublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*GoogleSimplePublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	topic := client.Topic(cfg.TopicID)
	// One message per request; the pipeline waits on every publish anyway.
	topic.PublishSettings.CountThreshold = 1
	topic.PublishSettings.DelayThreshold = 0

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GoogleSimplePublisher{
		topic:          topic,
		confirmTimeout: timeout,
		logger:         logger.With().Str("component", "GoogleSimplePublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish sends one message and waits for the server-assigned id.
func (p *GoogleSimplePublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})

	getCtx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()
	msgID, err := result.Get(getCtx)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	p.logger.Debug().Str("published_msg_id", msgID).Msg("Message published.")
	return nil
}

// Stop flushes any pending messages for the topic, respecting the context's timeout.
func (p *GoogleSimplePublisher) Stop(ctx context.Context) error {
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
