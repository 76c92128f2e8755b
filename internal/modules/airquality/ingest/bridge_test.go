package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-server/internal/modules/airquality/codec"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/store/memstore"
	"airquality-server/internal/modules/airquality/types"
)

func TestBridgeStore(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)

	t.Run("stores tagged documents as received", func(t *testing.T) {
		s := memstore.New(nil)
		b := NewBridge(s, WithNow(func() time.Time { return now }))
		doc := types.Document{
			"temperature": map[string]any{"doubleValue": 22.5},
			"humidity":    map[string]any{"doubleValue": 51.0},
			"airQuality":  map[string]any{"integerValue": "812"},
			"timestamp":   map[string]any{"timestampValue": "2024-06-01T12:00:00Z"},
		}

		ref, err := b.Store(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, store.CollectionReadings, ref.Collection)

		recs, err := s.QueryOnce(context.Background(), store.LatestReading())
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, map[string]any{"integerValue": "812"}, recs[0].Fields["airQuality"])
	})

	t.Run("stamps a missing timestamp", func(t *testing.T) {
		s := memstore.New(nil)
		b := NewBridge(s, WithNow(func() time.Time { return now }))
		doc := types.Document{"temperature": 20.0, "humidity": 40.0, "airQuality": 100.0}

		_, err := b.Store(context.Background(), doc)
		require.NoError(t, err)
		assert.NotContains(t, doc, "timestamp", "input is not mutated")

		recs, err := s.QueryOnce(context.Background(), store.LatestReading())
		require.NoError(t, err)
		require.Len(t, recs, 1)
		r, err := codec.DecodeReading(recs[0].Fields)
		require.NoError(t, err)
		assert.True(t, r.Timestamp.Equal(now))
	})

	t.Run("orders by reading time not arrival", func(t *testing.T) {
		s := memstore.New(nil)
		b := NewBridge(s)
		for _, ts := range []string{"2024-06-01T12:00:00Z", "2024-06-01T11:00:00Z"} {
			_, err := b.Store(context.Background(), types.Document{
				"temperature": 20.0, "humidity": 40.0, "airQuality": 100.0, "timestamp": ts,
			})
			require.NoError(t, err)
		}
		recs, err := s.QueryOnce(context.Background(), store.LatestReading())
		require.NoError(t, err)
		assert.Equal(t, "2024-06-01T12:00:00Z", recs[0].Fields["timestamp"])
	})

	t.Run("rejects invalid documents", func(t *testing.T) {
		s := memstore.New(nil)
		b := NewBridge(s)

		err := b.Handle(types.Document{"temperature": "warm", "humidity": 40.0, "airQuality": 1.0})
		var ferr *codec.FieldError
		require.ErrorAs(t, err, &ferr)
		assert.Equal(t, codec.FieldTemperature, ferr.Field)
		assert.Zero(t, s.Len())
	})
}
