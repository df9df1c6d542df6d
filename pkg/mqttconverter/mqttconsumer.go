package mqttconverter

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-sensorflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/rs/zerolog"
)

// ClientFactory builds a Paho client from options. Tests swap it for a mock.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// ConsumerOption customises an MqttConsumer.
type ConsumerOption func(*MqttConsumer)

// WithClientFactory replaces mqtt.NewClient.
func WithClientFactory(f ClientFactory) ConsumerOption {
	return func(c *MqttConsumer) { c.newClient = f }
}

// WithBufferSize sets the capacity of the delivery channel.
func WithBufferSize(n int) ConsumerOption {
	return func(c *MqttConsumer) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// MqttConsumer implements the messagepipeline.MessageConsumer interface for an MQTT source.
type MqttConsumer struct {
	pahoClient mqtt.Client
	newClient  ClientFactory
	bufferSize int
	logger     zerolog.Logger
	outputChan chan messagepipeline.Message
	doneChan   chan struct{}
	stopChan   chan struct{}
	mqttCfg    *MQTTClientConfig

	// mu guards closed; handlers hold the read lock while sending on outputChan.
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewMqttConsumer creates a new MqttConsumer. It does not connect until Start is called.
func NewMqttConsumer(cfg *MQTTClientConfig, logger zerolog.Logger, opts ...ConsumerOption) (*MqttConsumer, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required")
	}
	if len(cfg.Topics) == 0 {
		return nil, fmt.Errorf("at least one MQTT subscription topic is required")
	}
	c := &MqttConsumer{
		newClient:  mqtt.NewClient,
		bufferSize: 1000,
		logger:     logger.With().Str("component", "MqttConsumer").Logger(),
		doneChan:   make(chan struct{}),
		stopChan:   make(chan struct{}),
		mqttCfg:    cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.outputChan = make(chan messagepipeline.Message, c.bufferSize)
	return c, nil
}

// Messages returns the read-only channel from which raw messages can be consumed.
func (c *MqttConsumer) Messages() <-chan messagepipeline.Message {
	return c.outputChan
}

// Start connects to the broker. Subscriptions are (re)made by the on-connect handler so
// they survive automatic reconnects. A failed initial connection is returned as
// ErrTransportFault.
func (c *MqttConsumer) Start(ctx context.Context) error {
	opts, err := c.createMqttOptions()
	if err != nil {
		return err
	}
	opts.SetDefaultPublishHandler(c.handleIncomingMessage(ctx))
	c.pahoClient = c.newClient(opts)

	c.logger.Info().Str("broker", c.mqttCfg.BrokerURL).Msg("Attempting to connect to MQTT broker...")
	token := c.pahoClient.Connect()
	if !token.WaitTimeout(c.connectTimeout()) {
		return fmt.Errorf("%w: timed out connecting to %s", sensors.ErrTransportFault, c.mqttCfg.BrokerURL)
	}
	if token.Error() != nil {
		return fmt.Errorf("%w: connect to %s: %w", sensors.ErrTransportFault, c.mqttCfg.BrokerURL, token.Error())
	}
	c.logger.Info().Msg("Initial connection to MQTT broker successful.")

	go func() {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Shutdown signal received, ensuring consumer is stopped.")
			_ = c.Stop(context.Background())
		case <-c.stopChan:
		}
	}()

	return nil
}

// Stop unsubscribes, disconnects and closes the delivery channel. Safe to call more than once.
func (c *MqttConsumer) Stop(_ context.Context) error {
	c.stopOnce.Do(func() {
		c.logger.Info().Msg("Stopping MqttConsumer...")
		close(c.stopChan)
		if c.pahoClient != nil && c.pahoClient.IsConnected() {
			if token := c.pahoClient.Unsubscribe(c.mqttCfg.Topics...); token.WaitTimeout(2*time.Second) && token.Error() != nil {
				c.logger.Warn().Err(token.Error()).Strs("topics", c.mqttCfg.Topics).Msg("Failed to unsubscribe from MQTT topics.")
			}
			c.pahoClient.Disconnect(250)
			c.logger.Info().Msg("Paho MQTT client disconnected.")
		}

		c.mu.Lock()
		c.closed = true
		close(c.outputChan)
		c.mu.Unlock()

		close(c.doneChan)
		c.logger.Info().Msg("MqttConsumer stopped.")
	})
	return nil
}

// Done returns a channel that is closed when the consumer has fully stopped.
func (c *MqttConsumer) Done() <-chan struct{} {
	return c.doneChan
}

// IsConnected returns the connection status of the underlying Paho client.
func (c *MqttConsumer) IsConnected() bool {
	return c.pahoClient != nil && c.pahoClient.IsConnected()
}

// handleIncomingMessage converts MQTT deliveries to pipeline messages. QoS 0 deliveries
// have no broker message id, so each one gets a generated id, and Ack/Nack are no-ops.
func (c *MqttConsumer) handleIncomingMessage(ctx context.Context) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		c.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message")
		payloadCopy := make([]byte, len(msg.Payload()))
		copy(payloadCopy, msg.Payload())

		consumedMsg := messagepipeline.Message{
			MessageData: messagepipeline.MessageData{
				ID:          uuid.NewString(),
				Payload:     payloadCopy,
				PublishTime: time.Now().UTC(),
			},
			Attributes: map[string]string{messagepipeline.AttrMQTTTopic: msg.Topic()},
			Ack:        func() {},
			Nack:       func() {},
		}

		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.closed {
			return
		}
		select {
		case c.outputChan <- consumedMsg:
		case <-c.stopChan:
			c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is stopping, dropping MQTT message.")
		case <-ctx.Done():
			c.logger.Warn().Str("topic", msg.Topic()).Msg("Consumer is shutting down, dropping MQTT message.")
		}
	}
}

func (c *MqttConsumer) connectTimeout() time.Duration {
	if c.mqttCfg.ConnectTimeout > 0 {
		return c.mqttCfg.ConnectTimeout
	}
	return 10 * time.Second
}

// createMqttOptions assembles the Paho client options from the config.
func (c *MqttConsumer) createMqttOptions() (*mqtt.ClientOptions, error) {
	cfg := c.mqttCfg
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientIDPrefix + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(c.connectTimeout())
	opts.SetAutoReconnect(true)
	if cfg.ReconnectWaitMax > 0 {
		opts.SetMaxReconnectInterval(cfg.ReconnectWaitMax)
	}
	opts.SetOrderMatters(false)
	if cfg.WillTopic != "" {
		opts.SetWill(cfg.WillTopic, cfg.WillPayload, 0, false)
	}

	filters := make(map[string]byte, len(cfg.Topics))
	for _, t := range cfg.Topics {
		filters[t] = cfg.QoS
	}
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.logger.Info().Str("broker", cfg.BrokerURL).Msg("Paho client connected to MQTT broker.")
		token := client.SubscribeMultiple(filters, nil)
		go func() {
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				c.logger.Error().Err(token.Error()).Strs("topics", cfg.Topics).Msg("Failed to subscribe to MQTT topics.")
			} else {
				c.logger.Info().Strs("topics", cfg.Topics).Msg("Subscribed to MQTT topics.")
			}
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.logger.Error().Err(err).Msg("Paho client lost MQTT connection.")
	})

	if strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "tls://") || strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "ssl://") {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
		c.logger.Info().Msg("TLS configured for MQTT client.")
	}
	return opts, nil
}

// newTLSConfig is a helper to create a tls.Config.
func newTLSConfig(cfg *MQTTClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify, MinVersion: tls.VersionTLS12}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
