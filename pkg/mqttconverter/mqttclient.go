package mqttconverter

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// MQTTClientConfig holds all necessary configuration for the Paho MQTT client.
// It defines connection parameters, security settings, and the subscription filters.
type MQTTClientConfig struct {
	// BrokerURL is the full URL of the MQTT broker to connect to.
	// Example: "tls://mqtt.example.com:8883"
	BrokerURL string
	// Topics are the subscription filters, e.g. "sensors/+/temperature".
	Topics []string
	// QoS is used for every subscription. Sensor deliveries are QoS 0.
	QoS byte
	// ClientIDPrefix is a prefix for the MQTT client ID. A unique suffix is
	// automatically added, since most brokers require client ids to be unique.
	ClientIDPrefix string
	// CleanSession asks the broker not to keep session state between connections.
	CleanSession bool
	// Username for authenticating with the MQTT broker.
	Username string
	// Password for authenticating with the MQTT broker.
	Password string
	// KeepAlive is the interval at which the client sends keep-alive pings to the broker.
	KeepAlive time.Duration
	// ConnectTimeout is the timeout for the initial connection attempt.
	ConnectTimeout time.Duration
	// ReconnectWaitMax is the maximum time to wait before attempting to reconnect.
	ReconnectWaitMax time.Duration
	// WillTopic and WillPayload form the last-will message. No will is set when WillTopic is empty.
	WillTopic   string
	WillPayload string
	// CACertFile is an optional path to a CA certificate file for verifying the broker's certificate.
	CACertFile string
	// ClientCertFile is an optional path to a client certificate file for mTLS authentication.
	ClientCertFile string
	// ClientKeyFile is an optional path to a client key file for mTLS authentication.
	ClientKeyFile string
	// InsecureSkipVerify skips TLS certificate verification.
	// This is NOT recommended for production environments.
	InsecureSkipVerify bool
}

// Env constants for setting Mqtt settings
const (
	MqttBrokerURL             = "MQTT_BROKER_URL"
	MqttUsername              = "MQTT_USERNAME"
	MqttPassword              = "MQTT_PASSWORD"
	MqttClientIDPrefix        = "MQTT_CLIENT_ID_PREFIX"
	MqttSkipVerify            = "MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds      = "MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds = "MQTT_CONNECT_TIMEOUT_SECONDS"
	MqttCACertFile            = "MQTT_CA_CERT_FILE"
	MqttClientCertFile        = "MQTT_CLIENT_CERT_FILE"
	MqttClientKeyFile         = "MQTT_CLIENT_KEY_FILE"
)

// LoadMQTTClientConfigWithEnv loads MQTT connection settings from environment variables,
// falling back to defaults for anything unset or unparsable.
// Topics and the last will are not loaded from the environment; callers derive them from
// the sensor family (see SubscriptionTopics).
func LoadMQTTClientConfigWithEnv() *MQTTClientConfig {
	cfg := &MQTTClientConfig{
		BrokerURL:        "tcp://localhost:1883",
		KeepAlive:        20 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMax: 120 * time.Second,
		ClientIDPrefix:   "sensorflow-producer-",
		CleanSession:     true,
		WillPayload:      "offline",
	}
	if v := os.Getenv(MqttBrokerURL); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv(MqttClientIDPrefix); v != "" {
		cfg.ClientIDPrefix = v
	}
	cfg.Username = os.Getenv(MqttUsername)
	cfg.Password = os.Getenv(MqttPassword)
	cfg.CACertFile = os.Getenv(MqttCACertFile)
	cfg.ClientCertFile = os.Getenv(MqttClientCertFile)
	cfg.ClientKeyFile = os.Getenv(MqttClientKeyFile)
	if skipVerify := os.Getenv(MqttSkipVerify); skipVerify == "true" {
		cfg.InsecureSkipVerify = true
	}

	if ka := os.Getenv(MqttKeepAliveSeconds); ka != "" {
		if s, err := strconv.Atoi(ka); err == nil && s > 0 {
			cfg.KeepAlive = time.Duration(s) * time.Second
		} else {
			log.Printf("mqttconverter: error parsing keepAlive seconds %q, using default", ka)
		}
	}
	if ct := os.Getenv(MqttConnectTimeoutSeconds); ct != "" {
		if s, err := strconv.Atoi(ct); err == nil && s > 0 {
			cfg.ConnectTimeout = time.Duration(s) * time.Second
		} else {
			log.Printf("mqttconverter: error parsing connect timeout seconds %q, using default", ct)
		}
	}

	return cfg
}

// SubscriptionTopics returns one "<family>/+/<feature>" filter per feature.
func SubscriptionTopics(family string, features []string) []string {
	topics := make([]string, 0, len(features))
	for _, f := range features {
		topics = append(topics, family+"/+/"+f)
	}
	return topics
}

// WillTopic is the status subject the producer's last will is published to.
func WillTopic(family string) string {
	return family + "/producer/status"
}
