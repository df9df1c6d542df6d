package messagepipeline

import (
	"time"
)

// Message is a single delivery from a transport (MQTT or the Pub/Sub relay) as it enters a
// pipeline. It carries the raw bytes, transport metadata and the acknowledgment handles.
type Message struct {
	// MessageData contains the delivery's identity and payload.
	MessageData

	// Attributes holds transport metadata, e.g. the MQTT subject under AttrMQTTTopic or
	// the Pub/Sub message attributes.
	Attributes map[string]string

	// Ack signals the source that the delivery is finished with and must not be redelivered.
	Ack func()

	// Nack signals the source that processing failed and the delivery should be redelivered.
	Nack func()
}

// MessageData holds the essential payload of a delivery.
type MessageData struct {
	// ID is the broker's message id, or a generated one where the broker has none.
	ID string `json:"id"`

	// Payload is the raw byte content of the delivery.
	Payload []byte `json:"payload"`

	// PublishTime is when the broker accepted the message, or when it was received if the
	// broker does not say.
	PublishTime time.Time `json:"publishTime"`
}

// AttrMQTTTopic is the attribute key under which MQTT consumers store the subject.
const AttrMQTTTopic = "mqtt_topic"
