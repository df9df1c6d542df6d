package sensorstore

import (
	"context"
	"time"

	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
)

// SensorRecord is a registered sensor and its latest normalized value. Records live in one
// collection per feature.
type SensorRecord struct {
	ID             string    `json:"id" firestore:"-"`
	UUID           string    `json:"uuid" firestore:"uuid"`
	Mac            string    `json:"mac" firestore:"mac"`
	Manufacturer   string    `json:"manufacturer" firestore:"manufacturer"`
	Model          string    `json:"model" firestore:"model"`
	ProfileOwnerID string    `json:"profileOwnerId" firestore:"profileOwnerId"`
	APIToken       string    `json:"apiToken" firestore:"apiToken"`
	CreatedAt      time.Time `json:"createdAt" firestore:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt" firestore:"modifiedAt"`
	Value          float64   `json:"value" firestore:"value"`
}

// Store is the document store behind the consumer pipeline and the registry API.
//
// ApplyReading is a single atomic find-and-update keyed by {uuid, apiToken} in the
// collection named by the message's feature. It sets value and modifiedAt and returns the
// record as it is after the update. When nothing matches it returns an error wrapping
// sensors.ErrNotFound and leaves storage untouched. Client failures wrap
// sensors.ErrStorageFault.
type Store interface {
	ApplyReading(ctx context.Context, msg sensors.Message) (*SensorRecord, error)
	// Register inserts a new record into the feature's collection. CreatedAt and
	// ModifiedAt are set by the store.
	Register(ctx context.Context, feature string, record SensorRecord) (*SensorRecord, error)
	// Get returns the first record in the feature's collection with the given uuid.
	Get(ctx context.Context, feature, uuid string) (*SensorRecord, error)
}

// Clock supplies modifiedAt and createdAt timestamps.
type Clock func() time.Time

type storeOptions struct {
	clock Clock
}

// Option configures a Store implementation.
type Option func(*storeOptions)

// WithClock replaces time.Now as the timestamp source.
func WithClock(clock Clock) Option {
	return func(o *storeOptions) {
		o.clock = clock
	}
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
