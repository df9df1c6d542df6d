package messagepipeline

import (
	"context"
)

// ====================================================================================
// Contracts for the two stages of every sensorflow pipeline: a consumer that yields raw
// deliveries, a transformer that turns one delivery into a typed value, and a processor
// that acts on that value (publish to the relay, or persist).
// ====================================================================================

// --- Stage 1: Consumer ---

// MessageConsumer is a message source (MQTT subscription, Pub/Sub subscription).
type MessageConsumer interface {
	// Messages returns a read-only channel from which pipeline workers receive deliveries.
	Messages() <-chan Message
	// Start begins consumption.
	Start(ctx context.Context) error
	// Stop ceases consumption and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// --- Stage 2: Transformer ---

// MessageTransformer turns a raw Message into a typed payload of type T.
//
// skip=true means the delivery is finished with and must not reach the processor; the
// service acknowledges it. Use skip for input that can never succeed (bad topic, unknown
// feature, wrong payload shape) so the source does not redeliver it. A non-nil error
// means a transient failure and the delivery is nacked.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// --- Stage 3: Processor ---

// StreamProcessor handles one transformed payload. A returned error nacks the delivery.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error
