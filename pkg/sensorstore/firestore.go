package sensorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/rs/zerolog"
)

// FirestoreStore is a Store on Firestore. Collections are named after features, as in
// MongoDB. ApplyReading runs its query and update inside one transaction, which gives the
// same all-or-nothing update as a findAndModify.
type FirestoreStore struct {
	client *firestore.Client
	clock  Clock
	logger zerolog.Logger
}

// NewFirestoreStore wraps an injected client. The client's lifecycle belongs to the caller.
func NewFirestoreStore(client *firestore.Client, logger zerolog.Logger, opts ...Option) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil")
	}
	o := applyOptions(opts)
	return &FirestoreStore{
		client: client,
		clock:  o.clock,
		logger: logger.With().Str("component", "FirestoreStore").Logger(),
	}, nil
}

// ApplyReading implements Store.
func (s *FirestoreStore) ApplyReading(ctx context.Context, msg sensors.Message) (*SensorRecord, error) {
	if msg.Payload == nil {
		return nil, fmt.Errorf("%w: message for %s has no payload", sensors.ErrPayloadShapeMismatch, msg.Topic)
	}
	query := s.client.Collection(msg.Topic.Feature).
		Where("uuid", "==", msg.UUID).
		Where("apiToken", "==", msg.APIToken).
		Limit(1)

	var updated *SensorRecord
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		updated = nil
		snaps, err := tx.Documents(query).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			return sensors.ErrNotFound
		}

		var rec SensorRecord
		if err := snaps[0].DataTo(&rec); err != nil {
			return fmt.Errorf("decode %s: %w", snaps[0].Ref.ID, err)
		}
		rec.ID = snaps[0].Ref.ID
		rec.Value = msg.Payload.NormalizedValue()
		// Firestore timestamps keep microseconds.
		now := s.clock().Truncate(time.Microsecond)
		if !now.After(rec.ModifiedAt) {
			now = rec.ModifiedAt.Truncate(time.Microsecond).Add(time.Microsecond)
		}
		rec.ModifiedAt = now

		if err := tx.Update(snaps[0].Ref, []firestore.Update{
			{Path: "value", Value: rec.Value},
			{Path: "modifiedAt", Value: rec.ModifiedAt},
		}); err != nil {
			return err
		}
		updated = &rec
		return nil
	})
	if errors.Is(err, sensors.ErrNotFound) {
		return nil, fmt.Errorf("%w: uuid %q in %s", sensors.ErrNotFound, msg.UUID, msg.Topic.Feature)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: transaction on %s: %w", sensors.ErrStorageFault, msg.Topic.Feature, err)
	}
	return updated, nil
}

// Register implements Store. Firestore assigns the document id.
func (s *FirestoreStore) Register(ctx context.Context, feature string, record SensorRecord) (*SensorRecord, error) {
	now := s.clock()
	record.CreatedAt = now
	record.ModifiedAt = now

	ref, _, err := s.client.Collection(feature).Add(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("%w: add to %s: %w", sensors.ErrStorageFault, feature, err)
	}
	record.ID = ref.ID
	s.logger.Debug().Str("collection", feature).Str("id", ref.ID).Msg("Sensor registered.")
	return &record, nil
}

// Get implements Store.
func (s *FirestoreStore) Get(ctx context.Context, feature, uuid string) (*SensorRecord, error) {
	snaps, err := s.client.Collection(feature).Where("uuid", "==", uuid).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", sensors.ErrStorageFault, feature, err)
	}
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: uuid %q in %s", sensors.ErrNotFound, uuid, feature)
	}
	var rec SensorRecord
	if err := snaps[0].DataTo(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", sensors.ErrStorageFault, snaps[0].Ref.ID, err)
	}
	rec.ID = snaps[0].Ref.ID
	return &rec, nil
}
