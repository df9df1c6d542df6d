package sensors

import (
	"encoding/json"
	"fmt"
)

// Envelope is an inbound relay message whose payload kind is not known yet.
type Envelope struct {
	UUID     string          `json:"uuid"`
	APIToken string          `json:"apiToken"`
	Topic    Topic           `json:"topic"`
	Payload  json.RawMessage `json:"payload"`
}

// Notification is what a device publishes on MQTT. The topic comes from the subject.
type Notification struct {
	UUID     string          `json:"uuid"`
	APIToken string          `json:"apiToken"`
	Payload  json.RawMessage `json:"payload"`
}

// Message binds a Reading to the topic whose feature selected it. Messages are built by
// Router.Decode; the payload's Kind always equals Topic.Feature.
type Message struct {
	UUID     string  `json:"uuid"`
	APIToken string  `json:"apiToken"`
	Topic    Topic   `json:"topic"`
	Payload  Reading `json:"payload"`
}

// DecodeEnvelope is the first decode phase: it parses the envelope structure and validates
// the topic, leaving the payload raw.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if err := env.Topic.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// DecodeNotification parses a device notification.
func DecodeNotification(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: notification: %v", ErrMalformedEnvelope, err)
	}
	return n, nil
}

// Decode is the second phase: it routes on the envelope's feature and decodes the payload
// into the matching Reading. uuid, apiToken and topic are copied unchanged.
func (r *Router) Decode(env Envelope) (Message, error) {
	decoder, err := r.Route(env.Topic.Feature)
	if err != nil {
		return Message{}, err
	}
	value, err := valueField(env.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("%s: %w", env.Topic, err)
	}
	reading, err := decoder(value)
	if err != nil {
		return Message{}, fmt.Errorf("%s: %w", env.Topic, err)
	}
	return Message{
		UUID:     env.UUID,
		APIToken: env.APIToken,
		Topic:    env.Topic,
		Payload:  reading,
	}, nil
}

// DecodeBytes runs both decode phases on raw relay bytes.
func (r *Router) DecodeBytes(data []byte) (Message, error) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		return Message{}, err
	}
	return r.Decode(env)
}

// WireBytes builds the relay message for a notification received on topic and serializes
// it in the lowerCamel wire shape.
func (r *Router) WireBytes(notification []byte, topic Topic) ([]byte, error) {
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	n, err := DecodeNotification(notification)
	if err != nil {
		return nil, err
	}
	msg, err := r.Decode(Envelope{
		UUID:     n.UUID,
		APIToken: n.APIToken,
		Topic:    topic,
		Payload:  n.Payload,
	})
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s message: %w", topic, err)
	}
	return data, nil
}

// ToWireBytes is WireBytes with every failure collapsed to an empty slice. An empty result
// means "do not publish".
func (r *Router) ToWireBytes(notification []byte, topic Topic) []byte {
	data, err := r.WireBytes(notification, topic)
	if err != nil {
		return []byte{}
	}
	return data
}
