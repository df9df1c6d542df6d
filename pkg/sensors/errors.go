package sensors

import "errors"

// Error taxonomy shared by the producer, consumer and storage layers. Callers wrap these
// with context and test for them with errors.Is.
var (
	// ErrMalformedTopic means a subject string (or an envelope's topic object) does not
	// carry a family, a device id and a feature.
	ErrMalformedTopic = errors.New("malformed topic")
	// ErrUnknownFeature means the feature is not in the router's recognized set.
	ErrUnknownFeature = errors.New("unknown feature")
	// ErrPayloadShapeMismatch means the payload's value field is missing or has the wrong
	// JSON type for the resolved kind.
	ErrPayloadShapeMismatch = errors.New("payload shape mismatch")
	// ErrMalformedEnvelope means the inbound bytes are not a JSON envelope at all.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrNotFound means no stored record matched the uuid/apiToken filter.
	ErrNotFound = errors.New("sensor record not found")
	// ErrStorageFault wraps failures reported by the document store client.
	ErrStorageFault = errors.New("storage fault")
	// ErrTransportFault wraps failures reported by the relay or MQTT client.
	ErrTransportFault = errors.New("transport fault")
)
