package memstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-server/internal/modules/airquality/codec"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/types"
)

func seed(t *testing.T, s *Store, n int) {
	t.Helper()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		doc := types.Document{"airQuality": float64(i), "timestamp": ts.Format(time.RFC3339)}
		_, err := s.Insert(context.Background(), codec.SortKey(ts), doc)
		require.NoError(t, err)
	}
}

func TestQueryOnce_OrderAndLimit(t *testing.T) {
	s := New(nil)
	seed(t, s, 5)

	recs, err := s.QueryOnce(context.Background(), store.RecentReadings(3))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, want := range []float64{4, 3, 2} {
		assert.Equal(t, want, recs[i].Fields["airQuality"], "record %d", i)
		assert.Equal(t, store.CollectionReadings, recs[i].Ref.Collection)
	}

	all, err := s.QueryOnce(context.Background(), store.Query{Collection: store.CollectionReadings, OrderBy: store.OrderByTimestamp})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, float64(0), all[0].Fields["airQuality"])
}

func TestQueryOnce_UnknownCollection(t *testing.T) {
	s := New(nil)
	_, err := s.QueryOnce(context.Background(), store.Query{Collection: "nope"})
	assert.True(t, errors.Is(err, store.ErrUnknownCollection))
}

func TestQueryOnce_ReturnsCopies(t *testing.T) {
	s := New(nil)
	seed(t, s, 1)
	recs, err := s.QueryOnce(context.Background(), store.LatestReading())
	require.NoError(t, err)
	recs[0].Fields["airQuality"] = 999.0

	again, err := s.QueryOnce(context.Background(), store.LatestReading())
	require.NoError(t, err)
	assert.Equal(t, float64(0), again[0].Fields["airQuality"])
}

func TestDeleteBatch(t *testing.T) {
	s := New(nil, WithMaxBatchSize(2))
	seed(t, s, 3)
	recs, err := s.QueryOnce(context.Background(), store.RecentReadings(0))
	require.NoError(t, err)

	refs := make([]store.RecordRef, len(recs))
	for i, r := range recs {
		refs[i] = r.Ref
	}
	assert.True(t, errors.Is(s.DeleteBatch(context.Background(), refs), store.ErrBatchTooLarge))
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.DeleteBatch(context.Background(), refs[:2]))
	assert.Equal(t, 1, s.Len())
}

func TestDeleteBatch_InjectedFailure(t *testing.T) {
	s := New(nil, WithMaxBatchSize(1))
	seed(t, s, 2)
	s.FailDelete = FailAfter(1)
	recs, err := s.QueryOnce(context.Background(), store.RecentReadings(0))
	require.NoError(t, err)

	require.NoError(t, s.DeleteBatch(context.Background(), []store.RecordRef{recs[0].Ref}))
	require.Error(t, s.DeleteBatch(context.Background(), []store.RecordRef{recs[1].Ref}))
	assert.Equal(t, 1, s.Len())
}

func TestSubscribe_SeesInsertsAndDeletes(t *testing.T) {
	s := New(nil)
	snaps := make(chan store.Snapshot, 16)
	unsub, err := s.Subscribe(context.Background(), store.LatestReading(), func(sn store.Snapshot) { snaps <- sn }, func(error) {})
	require.NoError(t, err)
	defer unsub()

	next := func() store.Snapshot {
		select {
		case sn := <-snaps:
			return sn
		case <-time.After(2 * time.Second):
			t.Fatal("no snapshot")
			return store.Snapshot{}
		}
	}

	assert.True(t, next().Empty())
	seed(t, s, 1)
	sn := next()
	require.Len(t, sn.Records, 1)

	require.NoError(t, s.DeleteBatch(context.Background(), []store.RecordRef{sn.Records[0].Ref}))
	assert.True(t, next().Empty(), fmt.Sprintf("subscribers=%d", s.Subscribers()))
}
