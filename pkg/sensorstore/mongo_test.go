package sensorstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-sensorflow/pkg/sensors"
	"github.com/illmade-knight/go-sensorflow/pkg/sensorstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockMongoStore(mt *mtest.T, now time.Time) *sensorstore.MongoStore {
	store, err := sensorstore.NewMongoStore(
		&sensorstore.MongoConfig{OperationTimeout: 5 * time.Second},
		mt.DB,
		zerolog.Nop(),
		sensorstore.WithClock(func() time.Time { return now }),
	)
	require.NoError(mt, err)
	return store
}

func TestMongoStore_ApplyReading(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("returns the post-update document", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		created := now.Add(-time.Hour)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: id},
			{Key: "uuid", Value: "u1"},
			{Key: "apiToken", Value: "t1"},
			{Key: "mac", Value: "00:11:22:33:44:55"},
			{Key: "createdAt", Value: created},
			{Key: "modifiedAt", Value: now},
			{Key: "value", Value: 99.0},
		}}))
		store := newMockMongoStore(mt, now)

		rec, err := store.ApplyReading(context.Background(), temperatureMessage("u1", "t1", 99.0))
		require.NoError(mt, err)
		assert.Equal(mt, id.Hex(), rec.ID)
		assert.Equal(mt, 99.0, rec.Value)
		assert.True(mt, rec.ModifiedAt.Equal(now))
		assert.True(mt, rec.CreatedAt.Equal(created))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "findAndModify", started.CommandName)
		assert.Equal(mt, sensors.FeatureTemperature, started.Command.Lookup("findAndModify").StringValue())
		assert.Equal(mt, "u1", started.Command.Lookup("query", "uuid").StringValue())
		assert.Equal(mt, "t1", started.Command.Lookup("query", "apiToken").StringValue())
		assert.Equal(mt, 99.0, started.Command.Lookup("update", "0", "$set", "value").Double())
		// modifiedAt = max(now, stored modifiedAt + 1ms), evaluated by the server.
		assert.True(mt, started.Command.Lookup("update", "0", "$set", "modifiedAt", "$max", "0").Time().Equal(now))
		assert.Equal(mt, "$modifiedAt", started.Command.Lookup("update", "0", "$set", "modifiedAt", "$max", "1", "$add", "0").StringValue())
		assert.Equal(mt, int64(1), started.Command.Lookup("update", "0", "$set", "modifiedAt", "$max", "1", "$add", "1").Int64())
		assert.True(mt, started.Command.Lookup("new").Boolean(), "the post-update document must be requested")
	})

	mt.Run("sub-millisecond clock is truncated before it is stored", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "uuid", Value: "u1"},
			{Key: "apiToken", Value: "t1"},
			{Key: "modifiedAt", Value: now.Add(time.Millisecond)},
			{Key: "value", Value: 2.0},
		}}))
		store := newMockMongoStore(mt, now.Add(500*time.Microsecond))

		_, err := store.ApplyReading(context.Background(), temperatureMessage("u1", "t1", 2.0))
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		sent := started.Command.Lookup("update", "0", "$set", "modifiedAt", "$max", "0").Time()
		assert.True(mt, sent.Equal(now), "got %s", sent)
	})

	mt.Run("no match is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil}))
		store := newMockMongoStore(mt, now)

		_, err := store.ApplyReading(context.Background(), temperatureMessage("u1", "wrong", 1.0))
		require.ErrorIs(mt, err, sensors.ErrNotFound)
		assert.NotErrorIs(mt, err, sensors.ErrStorageFault)
	})

	mt.Run("server error is a storage fault", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    11600,
			Name:    "InterruptedAtShutdown",
			Message: "interrupted at shutdown",
		}))
		store := newMockMongoStore(mt, now)

		_, err := store.ApplyReading(context.Background(), temperatureMessage("u1", "t1", 1.0))
		require.ErrorIs(mt, err, sensors.ErrStorageFault)
	})
}

func TestMongoStore_RegisterAndGet(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mt.Run("register inserts into the feature collection", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		store := newMockMongoStore(mt, now)

		rec, err := store.Register(context.Background(), sensors.FeatureHumidity, sensorstore.SensorRecord{
			UUID:     "h1",
			APIToken: "t1",
			Model:    "hygro",
		})
		require.NoError(mt, err)
		assert.NotEmpty(mt, rec.ID)
		assert.True(mt, rec.CreatedAt.Equal(now))
		assert.True(mt, rec.ModifiedAt.Equal(now))

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "insert", started.CommandName)
		assert.Equal(mt, sensors.FeatureHumidity, started.Command.Lookup("insert").StringValue())
	})

	mt.Run("get finds by uuid", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + sensors.FeatureLight
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "uuid", Value: "l1"},
			{Key: "value", Value: 300.0},
		}))
		store := newMockMongoStore(mt, now)

		rec, err := store.Get(context.Background(), sensors.FeatureLight, "l1")
		require.NoError(mt, err)
		assert.Equal(mt, "l1", rec.UUID)
		assert.Equal(mt, 300.0, rec.Value)
	})

	mt.Run("get with no document is not found", func(mt *mtest.T) {
		ns := mt.DB.Name() + "." + sensors.FeatureLight
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		store := newMockMongoStore(mt, now)

		_, err := store.Get(context.Background(), sensors.FeatureLight, "missing")
		require.ErrorIs(mt, err, sensors.ErrNotFound)
	})
}
