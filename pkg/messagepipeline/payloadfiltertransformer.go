package messagepipeline

import (
	"context"

	"github.com/rs/zerolog"
)

// WithPayloadValidation wraps a transformer with a payload size check. Deliveries outside
// [minSize, maxSize] are skipped without reaching the inner transformer. A maxSize of zero
// or less disables the upper bound.
func WithPayloadValidation[T any](
	innerTransformer MessageTransformer[T],
	minSize int,
	maxSize int,
	logger zerolog.Logger,
) MessageTransformer[T] {
	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		payloadLen := len(msg.Payload)
		if payloadLen < minSize || (maxSize > 0 && payloadLen > maxSize) {
			logger.Warn().
				Str("msg_id", msg.ID).
				Int("payload_size", payloadLen).
				Int("min_size", minSize).
				Int("max_size", maxSize).
				Msg("Rejecting message due to invalid payload size.")
			return nil, true, nil
		}
		return innerTransformer(ctx, msg)
	}
}
