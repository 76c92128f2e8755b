package history

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-server/internal/modules/airquality/codec"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/store/memstore"
	"airquality-server/internal/modules/airquality/types"
)

var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *memstore.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		doc := types.Document{
			"temperature": 20.0 + float64(i%5),
			"humidity":    map[string]any{"doubleValue": 45.5},
			"airQuality":  float64(i * 80),
			"timestamp":   ts.Format(time.RFC3339),
		}
		_, err := s.Insert(context.Background(), codec.SortKey(ts), doc)
		require.NoError(t, err)
	}
}

// failingQuerier fails every read.
type failingQuerier struct {
	*memstore.Store
	err error
}

func (f *failingQuerier) QueryOnce(ctx context.Context, q store.Query) ([]store.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.Store.QueryOnce(ctx, q)
}

func TestFetchRecent_NewestFirstDefaultLimit(t *testing.T) {
	s := memstore.New(nil)
	seed(t, s, 60)
	p := NewProjection(s)
	assert.True(t, p.State().Loading)

	got, err := p.FetchRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultLimit)
	assert.True(t, got[0].Timestamp.After(got[1].Timestamp))
	assert.Equal(t, 59*80, got[0].AirQuality)
	assert.Equal(t, 45.5, got[0].Humidity)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEmpty(t, got[0].Label)

	st := p.State()
	assert.False(t, st.Loading)
	assert.Len(t, st.Readings, DefaultLimit)
}

func TestFetchRecent_ExplicitLimit(t *testing.T) {
	s := memstore.New(nil)
	seed(t, s, 10)
	p := NewProjection(s, WithLimit(3))

	got, err := p.FetchRecent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.False(t, p.State().Refreshing)
}

func TestFetchRecent_ErrorKeepsList(t *testing.T) {
	fq := &failingQuerier{Store: memstore.New(nil)}
	seed(t, fq.Store, 5)
	p := NewProjection(fq)

	_, err := p.FetchRecent(context.Background(), 0)
	require.NoError(t, err)

	fq.err = errors.New("network down")
	got, err := p.Refresh(context.Background())
	var ferr *FetchError
	require.True(t, errors.As(err, &ferr))
	assert.Len(t, got, 5, "stale list stays visible")

	st := p.State()
	assert.False(t, st.Loading)
	assert.False(t, st.Refreshing)
	assert.Len(t, st.Readings, 5)
	assert.Error(t, st.Err)
}

func TestLoad_SkipsUndecodable(t *testing.T) {
	s := memstore.New(nil)
	seed(t, s, 2)
	_, err := s.Insert(context.Background(), codec.SortKey(base.Add(time.Hour)), types.Document{"airQuality": 1.0})
	require.NoError(t, err)

	got, err := Load(context.Background(), s, 0, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestDeleteAll_ThenFetchIsEmpty(t *testing.T) {
	s := memstore.New(nil, memstore.WithMaxBatchSize(7))
	seed(t, s, 50)
	p := NewProjection(s)

	got, err := p.FetchRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 50)

	c := p.RequestDeleteAll()
	n, err := p.ConfirmDeleteAll(context.Background(), c.Token)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.Empty(t, p.State().Readings)
	assert.NotNil(t, p.State().Readings)

	got, err = p.FetchRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, s.Len())
}

func TestDeleteAll_FailureMidBatch(t *testing.T) {
	s := memstore.New(nil, memstore.WithMaxBatchSize(20))
	seed(t, s, 50)
	s.FailDelete = memstore.FailAfter(1)
	p := NewProjection(s)

	_, err := p.FetchRecent(context.Background(), 0)
	require.NoError(t, err)

	c := p.RequestDeleteAll()
	n, err := p.ConfirmDeleteAll(context.Background(), c.Token)
	var derr *DeleteError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, 20, n)
	assert.Equal(t, 20, derr.Deleted)
	assert.LessOrEqual(t, derr.Deleted, 50-s.Len())

	st := p.State()
	assert.False(t, st.Loading)
	assert.False(t, st.Deleting)
	assert.Len(t, st.Readings, 50, "local list is not reconciled")
}

func TestConfirmDeleteAll_RequiresToken(t *testing.T) {
	s := memstore.New(nil)
	seed(t, s, 3)
	now := base
	p := NewProjection(s, WithConfirmTTL(time.Minute), WithNow(func() time.Time { return now }))

	_, err := p.ConfirmDeleteAll(context.Background(), "bogus")
	assert.True(t, errors.Is(err, ErrConfirmationRequired))

	c := p.RequestDeleteAll()
	assert.Equal(t, base.Add(time.Minute), c.ExpiresAt)
	now = now.Add(2 * time.Minute)
	_, err = p.ConfirmDeleteAll(context.Background(), c.Token)
	assert.True(t, errors.Is(err, ErrConfirmationRequired), "expired")

	now = base
	c = p.RequestDeleteAll()
	assert.True(t, p.CancelDeleteAll(c.Token))
	assert.False(t, p.CancelDeleteAll(c.Token))
	_, err = p.ConfirmDeleteAll(context.Background(), c.Token)
	assert.True(t, errors.Is(err, ErrConfirmationRequired), "cancelled")
	assert.Equal(t, 3, s.Len())

	c = p.RequestDeleteAll()
	n, err := p.ConfirmDeleteAll(context.Background(), c.Token)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = p.ConfirmDeleteAll(context.Background(), c.Token)
	assert.True(t, errors.Is(err, ErrConfirmationRequired), "single use")
}

func TestDeleteAll_EmptyStore(t *testing.T) {
	p := NewProjection(memstore.New(nil))
	n, err := p.ConfirmDeleteAll(context.Background(), p.RequestDeleteAll().Token)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFetchRecent_EmptyStoreIsEmptyList(t *testing.T) {
	p := NewProjection(memstore.New(nil))

	got, err := p.FetchRecent(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, p.State().Readings)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))
}
