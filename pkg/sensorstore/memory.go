package sensorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
)

// InMemoryStore is a thread-safe Store for tests and local runs. A single mutex makes every
// ApplyReading atomic; modifiedAt is forced to move forward even when the clock does not.
type InMemoryStore struct {
	mu          sync.Mutex
	collections map[string][]*SensorRecord
	clock       Clock
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	o := applyOptions(opts)
	return &InMemoryStore{
		collections: make(map[string][]*SensorRecord),
		clock:       o.clock,
	}
}

// ApplyReading implements Store.
func (s *InMemoryStore) ApplyReading(_ context.Context, msg sensors.Message) (*SensorRecord, error) {
	if msg.Payload == nil {
		return nil, fmt.Errorf("%w: message for %s has no payload", sensors.ErrPayloadShapeMismatch, msg.Topic)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.collections[msg.Topic.Feature] {
		if rec.UUID != msg.UUID || rec.APIToken != msg.APIToken {
			continue
		}
		now := s.clock()
		if !now.After(rec.ModifiedAt) {
			now = rec.ModifiedAt.Add(time.Microsecond)
		}
		rec.Value = msg.Payload.NormalizedValue()
		rec.ModifiedAt = now
		updated := *rec
		return &updated, nil
	}
	return nil, fmt.Errorf("%w: uuid %q in %s", sensors.ErrNotFound, msg.UUID, msg.Topic.Feature)
}

// Register implements Store.
func (s *InMemoryStore) Register(_ context.Context, feature string, record SensorRecord) (*SensorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	record.ID = uuid.NewString()
	record.CreatedAt = now
	record.ModifiedAt = now
	stored := record
	s.collections[feature] = append(s.collections[feature], &stored)
	return &record, nil
}

// Get implements Store.
func (s *InMemoryStore) Get(_ context.Context, feature, id string) (*SensorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.collections[feature] {
		if rec.UUID == id {
			found := *rec
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: uuid %q in %s", sensors.ErrNotFound, id, feature)
}
