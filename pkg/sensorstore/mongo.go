package sensorstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoConfig holds connection settings for the MongoDB backend.
type MongoConfig struct {
	URI      string
	Database string
	// TLS forces a TLS 1.2+ connection even if the URI does not ask for one.
	TLS            bool
	ConnectTimeout time.Duration
	// OperationTimeout bounds every store call. Zero means the caller's context alone.
	OperationTimeout time.Duration
}

// ConnectMongo connects and pings the primary before returning the client.
func ConnectMongo(ctx context.Context, cfg *MongoConfig, logger zerolog.Logger) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo URI is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
	if cfg.TLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}
	logger.Info().Str("database", cfg.Database).Msg("Connected to MongoDB.")
	return client, nil
}

// mongoSensorDocument is the BSON shape of a SensorRecord.
type mongoSensorDocument struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	UUID           string             `bson:"uuid"`
	Mac            string             `bson:"mac"`
	Manufacturer   string             `bson:"manufacturer"`
	Model          string             `bson:"model"`
	ProfileOwnerID string             `bson:"profileOwnerId"`
	APIToken       string             `bson:"apiToken"`
	CreatedAt      time.Time          `bson:"createdAt"`
	ModifiedAt     time.Time          `bson:"modifiedAt"`
	Value          float64            `bson:"value"`
}

func (d mongoSensorDocument) record() *SensorRecord {
	return &SensorRecord{
		ID:             d.ID.Hex(),
		UUID:           d.UUID,
		Mac:            d.Mac,
		Manufacturer:   d.Manufacturer,
		Model:          d.Model,
		ProfileOwnerID: d.ProfileOwnerID,
		APIToken:       d.APIToken,
		CreatedAt:      d.CreatedAt,
		ModifiedAt:     d.ModifiedAt,
		Value:          d.Value,
	}
}

// MongoStore is the MongoDB Store. Each feature is a collection in one database.
type MongoStore struct {
	db      *mongo.Database
	timeout time.Duration
	clock   Clock
	logger  zerolog.Logger
}

// NewMongoStore wraps an already connected database handle.
func NewMongoStore(cfg *MongoConfig, db *mongo.Database, logger zerolog.Logger, opts ...Option) (*MongoStore, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo database cannot be nil")
	}
	o := applyOptions(opts)
	return &MongoStore{
		db:      db,
		timeout: cfg.OperationTimeout,
		clock:   o.clock,
		logger:  logger.With().Str("component", "MongoStore").Str("database", db.Name()).Logger(),
	}, nil
}

func (s *MongoStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// ApplyReading implements Store with a single findAndModify returning the new document. The
// update is pipeline-form so modifiedAt can be computed from the stored value.
func (s *MongoStore) ApplyReading(ctx context.Context, msg sensors.Message) (*SensorRecord, error) {
	if msg.Payload == nil {
		return nil, fmt.Errorf("%w: message for %s has no payload", sensors.ErrPayloadShapeMismatch, msg.Topic)
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	filter := bson.D{
		{Key: "uuid", Value: msg.UUID},
		{Key: "apiToken", Value: msg.APIToken},
	}
	// BSON dates keep milliseconds, so modifiedAt advances by at least 1ms over the stored value.
	now := s.clock().Truncate(time.Millisecond)
	update := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "value", Value: msg.Payload.NormalizedValue()},
		{Key: "modifiedAt", Value: bson.D{{Key: "$max", Value: bson.A{
			now,
			bson.D{{Key: "$add", Value: bson.A{"$modifiedAt", int64(1)}}},
		}}}},
	}}}}
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc mongoSensorDocument
	err := s.db.Collection(msg.Topic.Feature).FindOneAndUpdate(opCtx, filter, update, after).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: uuid %q in %s", sensors.ErrNotFound, msg.UUID, msg.Topic.Feature)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find and update in %s: %w", sensors.ErrStorageFault, msg.Topic.Feature, err)
	}
	return doc.record(), nil
}

// Register implements Store.
func (s *MongoStore) Register(ctx context.Context, feature string, record SensorRecord) (*SensorRecord, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	now := s.clock()
	doc := mongoSensorDocument{
		UUID:           record.UUID,
		Mac:            record.Mac,
		Manufacturer:   record.Manufacturer,
		Model:          record.Model,
		ProfileOwnerID: record.ProfileOwnerID,
		APIToken:       record.APIToken,
		CreatedAt:      now,
		ModifiedAt:     now,
		Value:          record.Value,
	}
	res, err := s.db.Collection(feature).InsertOne(opCtx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: insert into %s: %w", sensors.ErrStorageFault, feature, err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = id
	}
	s.logger.Debug().Str("collection", feature).Str("id", doc.ID.Hex()).Msg("Sensor registered.")
	return doc.record(), nil
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, feature, uuid string) (*SensorRecord, error) {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	var doc mongoSensorDocument
	err := s.db.Collection(feature).FindOne(opCtx, bson.D{{Key: "uuid", Value: uuid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: uuid %q in %s", sensors.ErrNotFound, uuid, feature)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: find in %s: %w", sensors.ErrStorageFault, feature, err)
	}
	return doc.record(), nil
}
