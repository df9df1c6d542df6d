package sensorflow

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorstore"
	"github.com/rs/zerolog"
)

// OpenStore connects the configured backend. The returned close function releases the
// backend's client.
func OpenStore(ctx context.Context, cfg *Config, logger zerolog.Logger) (sensorstore.Store, func(context.Context) error, error) {
	switch cfg.StoreBackend {
	case BackendMongo:
		client, err := sensorstore.ConnectMongo(ctx, &cfg.Mongo, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := sensorstore.NewMongoStore(&cfg.Mongo, client.Database(cfg.Mongo.Database), logger)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return store, client.Disconnect, nil

	case BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store, err := sensorstore.NewFirestoreStore(client, logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func(context.Context) error { return client.Close() }, nil

	case BackendMemory:
		logger.Warn().Msg("Using the in-memory store; records are lost on exit.")
		return sensorstore.NewInMemoryStore(), func(context.Context) error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
