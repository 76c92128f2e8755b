package store

import (
	"context"
	"log/slog"
	"sync"
)

// FetchFunc runs a query against the backing store.
type FetchFunc func(ctx context.Context, q Query) ([]Record, error)

// Hub fans store changes out to subscriptions. Each subscription owns one
// goroutine that re-runs its query whenever the hub is notified, so delivery
// for a subscription is serial. Notifications that arrive while a fetch is
// running collapse into a single follow-up fetch.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[uint64]*hubSub
	nextID uint64
	closed bool
}

type hubSub struct {
	wake   chan struct{}
	cancel context.CancelFunc
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, subs: make(map[uint64]*hubSub)}
}

// Subscribe validates q, schedules the initial fetch and returns immediately.
func (h *Hub) Subscribe(ctx context.Context, q Query, fetch FetchFunc, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	sub := &hubSub{wake: make(chan struct{}, 1), cancel: cancel}
	sub.wake <- struct{}{}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		return nil, context.Canceled
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go h.run(ctx, id, sub, q, fetch, onSnapshot, onError)

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (h *Hub) run(ctx context.Context, id uint64, sub *hubSub, q Query, fetch FetchFunc, onSnapshot func(Snapshot), onError func(error)) {
	defer h.remove(id)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.wake:
		}
		records, err := fetch(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			h.logger.Warn("subscription ended", "collection", q.Collection, "error", err)
			onError(err)
			return
		}
		onSnapshot(Snapshot{Records: records})
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		sub.cancel()
		delete(h.subs, id)
	}
}

// Notify marks every subscription stale.
func (h *Hub) Notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

// Len reports the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close cancels every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, sub := range h.subs {
		sub.cancel()
	}
}
