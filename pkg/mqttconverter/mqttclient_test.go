package mqttconverter_test

import (
	"testing"
	"time"

	"github.com/illmade-knight/go-sensorflow/pkg/mqttconverter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMQTTClientConfigWithEnv(t *testing.T) {
	t.Run("Default values are set correctly", func(t *testing.T) {
		cfg := mqttconverter.LoadMQTTClientConfigWithEnv()
		require.NotNil(t, cfg)
		assert.Equal(t, "tcp://localhost:1883", cfg.BrokerURL)
		assert.Equal(t, 20*time.Second, cfg.KeepAlive)
		assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, "sensorflow-producer-", cfg.ClientIDPrefix)
		assert.True(t, cfg.CleanSession)
		assert.Equal(t, byte(0), cfg.QoS)
		assert.Equal(t, "offline", cfg.WillPayload)
	})

	t.Run("Values are loaded from environment", func(t *testing.T) {
		t.Setenv("MQTT_BROKER_URL", "tls://broker:8883")
		t.Setenv("MQTT_USERNAME", "user")
		t.Setenv("MQTT_PASSWORD", "secret")
		t.Setenv("MQTT_KEEP_ALIVE_SECONDS", "30")
		t.Setenv("MQTT_CONNECT_TIMEOUT_SECONDS", "5")
		t.Setenv("MQTT_INSECURE_SKIP_VERIFY", "true")

		cfg := mqttconverter.LoadMQTTClientConfigWithEnv()
		require.NotNil(t, cfg)

		assert.Equal(t, "tls://broker:8883", cfg.BrokerURL)
		assert.Equal(t, "user", cfg.Username)
		assert.Equal(t, "secret", cfg.Password)
		assert.Equal(t, 30*time.Second, cfg.KeepAlive)
		assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
		assert.True(t, cfg.InsecureSkipVerify)
	})

	t.Run("Invalid duration values fall back to defaults", func(t *testing.T) {
		t.Setenv("MQTT_KEEP_ALIVE_SECONDS", "not-a-number")
		t.Setenv("MQTT_CONNECT_TIMEOUT_SECONDS", "-3")

		cfg := mqttconverter.LoadMQTTClientConfigWithEnv()
		require.NotNil(t, cfg)
		assert.Equal(t, 20*time.Second, cfg.KeepAlive, "KeepAlive should default if env var is invalid")
		assert.Equal(t, 10*time.Second, cfg.ConnectTimeout, "ConnectTimeout should default if env var is invalid")
	})
}

func TestSubscriptionTopics(t *testing.T) {
	assert.Equal(t,
		[]string{"sensors/+/temperature", "sensors/+/humidity"},
		mqttconverter.SubscriptionTopics("sensors", []string{"temperature", "humidity"}),
	)
	assert.Empty(t, mqttconverter.SubscriptionTopics("sensors", nil))
	assert.Equal(t, "home/producer/status", mqttconverter.WillTopic("home"))
}
