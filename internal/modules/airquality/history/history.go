// Package history holds the one-shot list of recent readings and the
// confirmed bulk delete.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"airquality-server/internal/modules/airquality/codec"
	"airquality-server/internal/modules/airquality/quality"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/types"
)

const (
	DefaultLimit      = 50
	DefaultConfirmTTL = 2 * time.Minute
)

var ErrConfirmationRequired = errors.New("history: delete not confirmed")

// FetchError reports a failed read. The previous list stays in place.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch readings: %v", e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }

// DeleteError reports a failed bulk delete. Deleted counts only records
// removed by batches the store confirmed.
type DeleteError struct {
	Deleted int
	Err     error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete readings: %d deleted before failure: %v", e.Deleted, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// Store is what the history view needs from the record store.
type Store interface {
	store.Querier
	store.Deleter
}

type State struct {
	Readings   []types.HistoryReading
	Loading    bool
	Refreshing bool
	Deleting   bool
	Err        error
}

// Confirmation is the first step of a bulk delete.
type Confirmation struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Projection struct {
	store      Store
	logger     *slog.Logger
	limit      int
	confirmTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	state   State
	pending map[string]time.Time
}

type Option func(*Projection)

func WithLogger(l *slog.Logger) Option { return func(p *Projection) { p.logger = l } }

func WithLimit(n int) Option {
	return func(p *Projection) {
		if n > 0 {
			p.limit = n
		}
	}
}

func WithConfirmTTL(d time.Duration) Option {
	return func(p *Projection) {
		if d > 0 {
			p.confirmTTL = d
		}
	}
}

func WithNow(now func() time.Time) Option { return func(p *Projection) { p.now = now } }

func NewProjection(s Store, opts ...Option) *Projection {
	p := &Projection{
		store:      s,
		limit:      DefaultLimit,
		confirmTTL: DefaultConfirmTTL,
		now:        time.Now,
		state:      State{Loading: true},
		pending:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func (p *Projection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.state
	s.Readings = cloneReadings(p.state.Readings)
	return s
}

// Limit is the page size used by Refresh.
func (p *Projection) Limit() int { return p.limit }

// FetchRecent replaces the list with the newest limit readings. limit <= 0
// uses the configured page size.
func (p *Projection) FetchRecent(ctx context.Context, limit int) ([]types.HistoryReading, error) {
	return p.fetch(ctx, limit, false)
}

// Refresh re-reads the list. Concurrent calls are not deduplicated here.
func (p *Projection) Refresh(ctx context.Context) ([]types.HistoryReading, error) {
	return p.fetch(ctx, p.limit, true)
}

func (p *Projection) fetch(ctx context.Context, limit int, refreshing bool) ([]types.HistoryReading, error) {
	if limit <= 0 {
		limit = p.limit
	}
	p.mu.Lock()
	if refreshing {
		p.state.Refreshing = true
	} else {
		p.state.Loading = true
	}
	p.mu.Unlock()

	readings, err := Load(ctx, p.store, limit, p.logger)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Loading = false
	p.state.Refreshing = false
	if err != nil {
		ferr := &FetchError{Err: err}
		p.state.Err = ferr
		p.logger.Error("fetch history", "limit", limit, "error", err)
		return cloneReadings(p.state.Readings), ferr
	}
	p.state.Readings = readings
	p.state.Err = nil
	return cloneReadings(readings), nil
}

// cloneReadings copies rs; an empty list stays empty rather than nil.
func cloneReadings(rs []types.HistoryReading) []types.HistoryReading {
	if rs == nil {
		return nil
	}
	out := make([]types.HistoryReading, len(rs))
	copy(out, rs)
	return out
}

// Load reads up to limit readings newest first; limit <= 0 reads them all.
// Records that cannot be decoded are skipped.
func Load(ctx context.Context, q store.Querier, limit int, logger *slog.Logger) ([]types.HistoryReading, error) {
	if logger == nil {
		logger = slog.Default()
	}
	records, err := q.QueryOnce(ctx, store.RecentReadings(limit))
	if err != nil {
		return nil, err
	}
	out := make([]types.HistoryReading, 0, len(records))
	for _, rec := range records {
		r, err := codec.DecodeReading(rec.Fields)
		if err != nil {
			logger.Warn("skip undecodable reading", "id", rec.Ref.ID, "error", err)
			continue
		}
		out = append(out, types.HistoryReading{
			ID:         rec.Ref.ID,
			Reading:    r,
			Assessment: quality.Assess(r.AirQuality),
		})
	}
	return out, nil
}

// RequestDeleteAll issues a single-use token that ConfirmDeleteAll must
// present before it deletes anything.
func (p *Projection) RequestDeleteAll() Confirmation {
	now := p.now()
	token := uuid.NewString()
	expires := now.Add(p.confirmTTL)

	p.mu.Lock()
	defer p.mu.Unlock()
	for t, exp := range p.pending {
		if !now.Before(exp) {
			delete(p.pending, t)
		}
	}
	p.pending[token] = expires
	return Confirmation{Token: token, ExpiresAt: expires}
}

// CancelDeleteAll discards a pending confirmation.
func (p *Projection) CancelDeleteAll(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[token]
	delete(p.pending, token)
	return ok
}

// ConfirmDeleteAll consumes token and deletes every stored reading in batches
// of the store's maximum size. On success the local list is cleared without
// re-reading the store.
func (p *Projection) ConfirmDeleteAll(ctx context.Context, token string) (int, error) {
	p.mu.Lock()
	exp, ok := p.pending[token]
	delete(p.pending, token)
	if !ok || !p.now().Before(exp) {
		p.mu.Unlock()
		return 0, ErrConfirmationRequired
	}
	p.state.Deleting = true
	p.mu.Unlock()

	deleted, err := p.deleteAll(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Deleting = false
	p.state.Loading = false
	if err != nil {
		derr := &DeleteError{Deleted: deleted, Err: err}
		p.state.Err = derr
		p.logger.Error("delete all readings", "deleted", deleted, "error", err)
		return deleted, derr
	}
	p.state.Readings = []types.HistoryReading{}
	p.state.Err = nil
	p.logger.Info("deleted all readings", "deleted", deleted)
	return deleted, nil
}

func (p *Projection) deleteAll(ctx context.Context) (int, error) {
	records, err := p.store.QueryOnce(ctx, store.RecentReadings(0))
	if err != nil {
		return 0, err
	}
	size := p.store.MaxBatchSize()
	if size <= 0 {
		size = len(records)
	}

	deleted := 0
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		refs := make([]store.RecordRef, 0, end-start)
		for _, rec := range records[start:end] {
			refs = append(refs, rec.Ref)
		}
		if err := p.store.DeleteBatch(ctx, refs); err != nil {
			return deleted, err
		}
		deleted += len(refs)
	}
	return deleted, nil
}
