//go:build integration

package mqttconverter_test

import (
	"context"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/mqttconverter"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMqttConsumer_Integration needs a reachable broker in MQTT_TEST_BROKER_URL,
// e.g. a local mosquitto on tcp://localhost:1883.
func TestMqttConsumer_Integration(t *testing.T) {
	brokerURL := os.Getenv("MQTT_TEST_BROKER_URL")
	if brokerURL == "" {
		t.Skip("MQTT_TEST_BROKER_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	cfg := mqttconverter.LoadMQTTClientConfigWithEnv()
	cfg.BrokerURL = brokerURL
	cfg.ClientIDPrefix = "sensorflow-it-"
	cfg.Topics = mqttconverter.SubscriptionTopics("it-sensors", []string{"light"})

	consumer, err := mqttconverter.NewMqttConsumer(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, consumer.Start(ctx))
	t.Cleanup(func() { _ = consumer.Stop(context.Background()) })
	require.Eventually(t, consumer.IsConnected, 10*time.Second, 100*time.Millisecond)

	pubOpts := mqtt.NewClientOptions().AddBroker(brokerURL).SetClientID("sensorflow-it-publisher")
	publisher := mqtt.NewClient(pubOpts)
	token := publisher.Connect()
	require.True(t, token.WaitTimeout(10*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { publisher.Disconnect(250) })

	payload := []byte(`{"uuid":"dev-1","apiToken":"tok","payload":{"value":300}}`)
	// The subscription is made asynchronously after connect, so publish until one arrives.
	require.Eventually(t, func() bool {
		publisher.Publish("it-sensors/dev-1/light", 0, false, payload).WaitTimeout(time.Second)
		select {
		case msg := <-consumer.Messages():
			assert.Equal(t, payload, msg.Payload)
			assert.Equal(t, "it-sensors/dev-1/light", msg.Attributes[messagepipeline.AttrMQTTTopic])
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 50*time.Millisecond)
}
