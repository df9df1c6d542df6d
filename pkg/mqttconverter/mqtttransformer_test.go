package mqttconverter_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/mqttconverter"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mqttDelivery(subject, payload string) *messagepipeline.Message {
	return &messagepipeline.Message{
		MessageData: messagepipeline.MessageData{ID: "m-1", Payload: []byte(payload)},
		Attributes:  map[string]string{messagepipeline.AttrMQTTTopic: subject},
	}
}

func TestRelayTransformer(t *testing.T) {
	transformer := mqttconverter.NewRelayTransformer(sensors.DefaultRouter(), zerolog.Nop())

	t.Run("converts a notification into a wire message", func(t *testing.T) {
		msg := mqttDelivery("sensors/dev-7/humidity", `{"uuid":"dev-7","apiToken":"tok","payload":{"value":55.5}}`)

		relay, skip, err := transformer(context.Background(), msg)
		require.NoError(t, err)
		require.False(t, skip)
		require.NotNil(t, relay)

		assert.Equal(t, sensors.Topic{Family: "sensors", DeviceID: "dev-7", Feature: "humidity"}, relay.Topic)
		assert.JSONEq(t,
			`{"uuid":"dev-7","apiToken":"tok","topic":{"family":"sensors","deviceId":"dev-7","feature":"humidity"},"payload":{"value":55.5}}`,
			string(relay.Data))
		assert.Equal(t, map[string]string{"family": "sensors", "deviceId": "dev-7", "feature": "humidity"}, relay.Attributes())
	})

	skipped := []struct {
		name    string
		subject string
		payload string
	}{
		{name: "malformed topic", subject: "sensors/temperature", payload: `{"uuid":"u","apiToken":"t","payload":{"value":1}}`},
		{name: "missing topic attribute", subject: "", payload: `{"uuid":"u","apiToken":"t","payload":{"value":1}}`},
		{name: "unknown feature", subject: "sensors/dev/co2", payload: `{"uuid":"u","apiToken":"t","payload":{"value":1}}`},
		{name: "shape mismatch", subject: "sensors/dev/motion", payload: `{"uuid":"u","apiToken":"t","payload":{"value":1}}`},
		{name: "not json", subject: "sensors/dev/temperature", payload: `hello`},
	}
	for _, tc := range skipped {
		t.Run("skips "+tc.name, func(t *testing.T) {
			relay, skip, err := transformer(context.Background(), mqttDelivery(tc.subject, tc.payload))
			require.NoError(t, err)
			assert.True(t, skip)
			assert.Nil(t, relay)
		})
	}
}
