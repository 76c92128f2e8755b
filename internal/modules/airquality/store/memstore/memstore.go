// Package memstore keeps readings in process memory. It backs development
// runs without a database and the projection tests.
package memstore

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/types"
)

const DefaultMaxBatchSize = 500

type entry struct {
	id      string
	sortKey string
	seq     uint64
	doc     types.Document
}

type Store struct {
	hub          *store.Hub
	maxBatchSize int

	mu      sync.RWMutex
	entries map[string]entry
	seq     uint64

	// FailDelete, when set, is consulted before each batch commit.
	FailDelete func(batch int) error
}

type Option func(*Store)

func WithMaxBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

func New(logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		hub:          store.NewHub(logger),
		maxBatchSize: DefaultMaxBatchSize,
		entries:      make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Subscribe(ctx context.Context, q store.Query, onSnapshot func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, q, s.QueryOnce, onSnapshot, onError)
}

func (s *Store) QueryOnce(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	list := make([]entry, 0, len(s.entries))
	for _, e := range s.entries {
		list = append(list, e)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.sortKey != b.sortKey {
			if q.Descending {
				return a.sortKey > b.sortKey
			}
			return a.sortKey < b.sortKey
		}
		if q.Descending {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	if q.Limit > 0 && len(list) > q.Limit {
		list = list[:q.Limit]
	}

	out := make([]store.Record, len(list))
	for i, e := range list {
		out[i] = store.Record{
			Ref:    store.RecordRef{Collection: store.CollectionReadings, ID: e.id},
			Fields: cloneDoc(e.doc),
		}
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, sortKey string, doc types.Document) (store.RecordRef, error) {
	if err := ctx.Err(); err != nil {
		return store.RecordRef{}, err
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.seq++
	s.entries[id] = entry{id: id, sortKey: sortKey, seq: s.seq, doc: cloneDoc(doc)}
	s.mu.Unlock()
	s.hub.Notify()
	return store.RecordRef{Collection: store.CollectionReadings, ID: id}, nil
}

func (s *Store) DeleteBatch(ctx context.Context, refs []store.RecordRef) error {
	if err := store.CheckBatch(refs, s.maxBatchSize); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.FailDelete != nil {
		if err := s.FailDelete(len(refs)); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	for _, ref := range refs {
		delete(s.entries, ref.ID)
	}
	s.mu.Unlock()
	s.hub.Notify()
	return nil
}

func (s *Store) MaxBatchSize() int { return s.maxBatchSize }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Subscribers reports the number of live subscriptions.
func (s *Store) Subscribers() int { return s.hub.Len() }

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

var errInjected = errors.New("memstore: injected failure")

// FailAfter returns a FailDelete hook that lets n batches commit and fails the rest.
func FailAfter(n int) func(int) error {
	var calls int
	return func(int) error {
		calls++
		if calls > n {
			return errInjected
		}
		return nil
	}
}

func cloneDoc(doc types.Document) types.Document {
	out := make(types.Document, len(doc))
	for k, v := range doc {
		if m, ok := v.(map[string]any); ok {
			inner := make(map[string]any, len(m))
			for ik, iv := range m {
				inner[ik] = iv
			}
			v = inner
		}
		out[k] = v
	}
	return out
}

var _ store.RecordStore = (*Store)(nil)
