package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"airquality-server/internal/modules/airquality/animate"
	"airquality-server/internal/modules/airquality/store"
)

// fakeSubscriber hands the test direct control over callbacks.
type fakeSubscriber struct {
	mu           sync.Mutex
	err          error
	onSnapshot   func(store.Snapshot)
	onError      func(error)
	query        store.Query
	subscribes   int
	unsubscribes int
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, q store.Query, onSnapshot func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subscribes++
	f.query = q
	f.onSnapshot = onSnapshot
	f.onError = onError
	return func() {
		f.mu.Lock()
		f.unsubscribes++
		f.mu.Unlock()
	}, nil
}

func (f *fakeSubscriber) emit(ev SnapshotEvent) {
	f.mu.Lock()
	cb := f.onSnapshot
	f.mu.Unlock()
	cb(ev.Snapshot)
}

func (f *fakeSubscriber) fail(err error) {
	f.mu.Lock()
	cb := f.onError
	f.mu.Unlock()
	cb(err)
}

func (f *fakeSubscriber) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, f.unsubscribes
}

func newTestProjection(sub store.Subscriber, clock animate.Clock) *Projection {
	return NewProjection(sub, WithClock(clock), WithEasing(animate.Linear))
}

func TestProjection_ActivateQueriesLatest(t *testing.T) {
	sub := &fakeSubscriber{}
	p := newTestProjection(sub, animate.NewManualClock(time.Unix(0, 0)))

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	assert.Equal(t, store.LatestReading(), sub.query)
	assert.True(t, p.State().Loading)
	assert.True(t, p.Active())
}

func TestProjection_SingleActiveSession(t *testing.T) {
	sub := &fakeSubscriber{}
	p := newTestProjection(sub, nil)

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)

	_, err = p.Activate(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyActive))

	sess.Release()
	sess.Release()
	subs, unsubs := sub.counts()
	assert.Equal(t, 1, subs)
	assert.Equal(t, 1, unsubs)

	sess2, err := p.Activate(context.Background())
	require.NoError(t, err)
	sess2.Release()
}

func TestProjection_ReleaseOnContextEnd(t *testing.T) {
	sub := &fakeSubscriber{}
	p := newTestProjection(sub, nil)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.Activate(ctx)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		_, unsubs := sub.counts()
		return unsubs == 1 && !p.Active()
	}, time.Second, 5*time.Millisecond)
}

func TestProjection_DropsCallbacksAfterRelease(t *testing.T) {
	sub := &fakeSubscriber{}
	p := newTestProjection(sub, nil)

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)
	sess.Release()

	sub.emit(snapshot(reading(0.0)))
	assert.False(t, p.State().HasData())
}

func TestProjection_EventSequence(t *testing.T) {
	sub := &fakeSubscriber{}
	clock := animate.NewManualClock(time.Unix(0, 0))
	p := newTestProjection(sub, clock)

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	sub.emit(snapshot(reading(4095.0)))
	st := <-p.Updates()
	require.NotNil(t, st.Reading)
	assert.Equal(t, 0, st.Reading.Percentage)

	sub.emit(snapshot())
	st = <-p.Updates()
	assert.Equal(t, 0, st.Reading.Percentage)

	sub.emit(snapshot(reading(0.0)))
	st = <-p.Updates()
	assert.Equal(t, 100, st.Reading.Percentage)
	assert.Equal(t, st, p.State())
}

func TestProjection_UpdatesCoalesce(t *testing.T) {
	sub := &fakeSubscriber{}
	p := newTestProjection(sub, nil)

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	sub.emit(snapshot(reading(4095.0)))
	sub.emit(snapshot(reading(2048.0)))
	sub.emit(snapshot(reading(0.0)))

	st := <-p.Updates()
	assert.Equal(t, 100, st.Reading.Percentage)
	select {
	case <-p.Updates():
		t.Fatal("expected a single coalesced update")
	default:
	}
}

func TestProjection_GaugeAnimatesFromZero(t *testing.T) {
	sub := &fakeSubscriber{}
	clock := animate.NewManualClock(time.Unix(0, 0))
	p := newTestProjection(sub, clock)

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	sub.emit(snapshot(reading(0.0)))
	assert.True(t, p.Animating())
	assert.Equal(t, 0, p.GaugeValue())

	clock.Advance(750 * time.Millisecond)
	assert.Equal(t, 50, p.GaugeValue())

	clock.Advance(750 * time.Millisecond)
	assert.Equal(t, 100, p.GaugeValue())
	assert.False(t, p.Animating())

	// A new reading restarts the sweep from zero.
	sub.emit(snapshot(reading(2048.0)))
	assert.Equal(t, 0, p.GaugeValue())
	clock.Advance(2 * time.Second)
	assert.Equal(t, 50, p.GaugeValue())
}

func TestProjection_GaugeFromCurrent(t *testing.T) {
	sub := &fakeSubscriber{}
	clock := animate.NewManualClock(time.Unix(0, 0))
	p := NewProjection(sub, WithClock(clock), WithEasing(animate.Linear), WithStartPolicy(animate.FromCurrent), WithAnimationDuration(time.Second))

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	sub.emit(snapshot(reading(0.0)))
	clock.Advance(time.Second)
	sub.emit(snapshot(reading(2048.0)))
	assert.Equal(t, 100, p.GaugeValue())
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, 75, p.GaugeValue())
}

func TestProjection_SubscriptionError(t *testing.T) {
	sub := &fakeSubscriber{}
	p := newTestProjection(sub, nil)

	sess, err := p.Activate(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	sub.fail(errors.New("unavailable"))
	st := <-p.Updates()
	assert.False(t, st.Loading)
	var subErr *SubscriptionError
	assert.True(t, errors.As(st.Err, &subErr))
}

func TestProjection_SubscribeFailsSynchronously(t *testing.T) {
	boom := errors.New("offline")
	sub := &fakeSubscriber{err: boom}
	p := newTestProjection(sub, nil)

	_, err := p.Activate(context.Background())
	require.True(t, errors.Is(err, boom))
	assert.False(t, p.Active())

	st := <-p.Updates()
	assert.False(t, st.Loading)
	assert.Error(t, st.Err)
}
