package mqttconverter

import (
	"context"

	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/rs/zerolog"
)

// RelayMessage is a typed wire message ready to publish on the relay, together with the
// topic it was received on.
type RelayMessage struct {
	Data  []byte
	Topic sensors.Topic
}

// Attributes returns the relay message attributes derived from the topic.
func (m *RelayMessage) Attributes() map[string]string {
	return map[string]string{
		"family":   m.Topic.Family,
		"deviceId": m.Topic.DeviceID,
		"feature":  m.Topic.Feature,
	}
}

// NewRelayTransformer turns an MQTT delivery into a RelayMessage. The subject comes from
// the AttrMQTTTopic attribute. A bad subject, unknown feature or undecodable notification
// is logged and skipped: retrying a QoS 0 delivery cannot fix it.
func NewRelayTransformer(router *sensors.Router, logger zerolog.Logger) messagepipeline.MessageTransformer[RelayMessage] {
	logger = logger.With().Str("component", "RelayTransformer").Logger()
	return func(_ context.Context, msg *messagepipeline.Message) (*RelayMessage, bool, error) {
		subject := msg.Attributes[messagepipeline.AttrMQTTTopic]
		topic, err := sensors.ParseTopic(subject)
		if err != nil {
			logger.Warn().Err(err).Str("msg_id", msg.ID).Msg("Dropping MQTT message with malformed topic.")
			return nil, true, nil
		}

		data, err := router.WireBytes(msg.Payload, topic)
		if err != nil {
			logger.Warn().Err(err).Str("msg_id", msg.ID).Str("topic", subject).Msg("Dropping MQTT message that cannot be converted.")
			return nil, true, nil
		}
		return &RelayMessage{Data: data, Topic: topic}, false, nil
	}
}
