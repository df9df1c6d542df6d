package sensorflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/go-sensorflow/pkg/microservice"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorstore"
	"github.com/spf13/pflag"
)

// Store backends.
const (
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Config is shared by the producer, consumer and registry binaries; each uses the parts
// it needs.
type Config struct {
	microservice.BaseConfig

	Family              string
	RelayTopicID        string
	RelaySubscriptionID string
	Pipeline            PipelineConfig

	StoreBackend string
	Mongo        sensorstore.MongoConfig

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	CacheSize     int
}

// BindFlags registers the base flags and the sensorflow flags.
func BindFlags(flags *pflag.FlagSet, defaultPort string) {
	microservice.BindBaseFlags(flags, defaultPort)
	flags.String("family", "sensors", "sensor family, the first MQTT topic segment")
	flags.String("relay-topic-id", "sensor-readings", "Pub/Sub relay topic")
	flags.String("relay-subscription-id", "sensor-readings-consumer", "Pub/Sub relay subscription")
	flags.Int("num-workers", 1, "pipeline workers; one keeps delivery order")
	flags.Bool("ack-on-receipt", false, "ack relay deliveries before processing (no redelivery on failure)")
	flags.Int("payload-min-size", 2, "smallest accepted payload in bytes")
	flags.Int("payload-max-size", 64*1024, "largest accepted payload in bytes, 0 for no limit")
	flags.String("store-backend", BackendMongo, "document store: mongo, firestore or memory")
	flags.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI")
	flags.String("mongo-database", "sensors", "MongoDB database")
	flags.Bool("mongo-tls", false, "force TLS for MongoDB")
	flags.Duration("mongo-connect-timeout", 10*time.Second, "MongoDB connect timeout")
	flags.Duration("mongo-operation-timeout", 5*time.Second, "timeout for each MongoDB operation")
	flags.String("redis-addr", "", "Redis address for the registry value cache; empty disables Redis")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.Duration("cache-ttl", 5*time.Second, "how long a looked-up value may be served from cache")
	flags.Int("cache-size", 10000, "in-process cache entries")
}

// LoadConfig resolves configuration for serviceName from args, the environment and an
// optional .env file. Every flag also reads from its upper-case env name, e.g.
// --store-backend from STORE_BACKEND.
func LoadConfig(serviceName string, args []string, defaultPort string, envFiles ...string) (*Config, error) {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	BindFlags(flags, defaultPort)
	v, err := microservice.NewViper(flags, args, envFiles...)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseConfig:          microservice.BaseConfigFrom(v, serviceName),
		Family:              v.GetString("family"),
		RelayTopicID:        v.GetString("relay-topic-id"),
		RelaySubscriptionID: v.GetString("relay-subscription-id"),
		Pipeline: PipelineConfig{
			NumWorkers:     v.GetInt("num-workers"),
			AckOnReceipt:   v.GetBool("ack-on-receipt"),
			PayloadMinSize: v.GetInt("payload-min-size"),
			PayloadMaxSize: v.GetInt("payload-max-size"),
		},
		StoreBackend: strings.ToLower(v.GetString("store-backend")),
		Mongo: sensorstore.MongoConfig{
			URI:              v.GetString("mongo-uri"),
			Database:         v.GetString("mongo-database"),
			TLS:              v.GetBool("mongo-tls"),
			ConnectTimeout:   v.GetDuration("mongo-connect-timeout"),
			OperationTimeout: v.GetDuration("mongo-operation-timeout"),
		},
		RedisAddr:     v.GetString("redis-addr"),
		RedisPassword: v.GetString("redis-password"),
		RedisDB:       v.GetInt("redis-db"),
		CacheTTL:      v.GetDuration("cache-ttl"),
		CacheSize:     v.GetInt("cache-size"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	if c.Family == "" || strings.Contains(c.Family, "/") {
		return fmt.Errorf("family %q must be a single non-empty topic segment", c.Family)
	}
	switch c.StoreBackend {
	case BackendMongo, BackendFirestore, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.Pipeline.PayloadMinSize < 0 {
		return fmt.Errorf("payload-min-size cannot be negative")
	}
	if c.Pipeline.PayloadMaxSize > 0 && c.Pipeline.PayloadMaxSize < c.Pipeline.PayloadMinSize {
		return fmt.Errorf("payload-max-size %d is below payload-min-size %d", c.Pipeline.PayloadMaxSize, c.Pipeline.PayloadMinSize)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache-size must be positive")
	}
	return nil
}
