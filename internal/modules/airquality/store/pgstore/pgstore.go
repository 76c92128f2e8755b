// Package pgstore stores readings in PostgreSQL. A statement trigger raises a
// notification on every insert or delete and each subscription listens for it
// on a dedicated pooled connection, so writes from other processes (another
// replica, a manual cleanup) reach live views too.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/types"
)

//go:embed sql/schema.sql
var schemaSQL string

//go:embed sql/select-readings-desc.sql
var selectReadingsDescSQL string

//go:embed sql/select-readings-asc.sql
var selectReadingsAscSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/delete-readings.sql
var deleteReadingsSQL string

const (
	notifyChannel       = "sensor_readings_changed"
	DefaultMaxBatchSize = 500
)

type Store struct {
	pool         *pgxpool.Pool
	logger       *slog.Logger
	maxBatchSize int

	closing  context.Context
	closeAll context.CancelFunc
	wg       sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Connect opens a pool for dsn and ensures the schema exists.
func Connect(ctx context.Context, dsn string, logger *slog.Logger, maxBatchSize int) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	s := New(pool, logger, maxBatchSize)
	if err := s.InitializeSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func New(pool *pgxpool.Pool, logger *slog.Logger, maxBatchSize int) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	closing, closeAll := context.WithCancel(context.Background())
	return &Store{pool: pool, logger: logger, maxBatchSize: maxBatchSize, closing: closing, closeAll: closeAll}
}

// InitializeSchema creates the readings table and its change trigger.
func (s *Store) InitializeSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	s.logger.Info("postgres schema ready", "table", store.CollectionReadings)
	return nil
}

func (s *Store) QueryOnce(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query := selectReadingsAscSQL
	if q.Descending {
		query = selectReadingsDescSQL
	}
	// LIMIT NULL is unbounded.
	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		var id string
		var doc types.Document
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, store.Record{
			Ref:    store.RecordRef{Collection: store.CollectionReadings, ID: id},
			Fields: doc,
		})
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, sortKey string, doc types.Document) (store.RecordRef, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return store.RecordRef{}, fmt.Errorf("encode document: %w", err)
	}
	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx, insertReadingSQL, id, sortKey, string(raw)); err != nil {
		return store.RecordRef{}, fmt.Errorf("insert reading: %w", err)
	}
	return store.RecordRef{Collection: store.CollectionReadings, ID: id}, nil
}

// DeleteBatch removes refs with a single statement.
func (s *Store) DeleteBatch(ctx context.Context, refs []store.RecordRef) error {
	if err := store.CheckBatch(refs, s.maxBatchSize); err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}
	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
	}
	if _, err := s.pool.Exec(ctx, deleteReadingsSQL, ids); err != nil {
		return fmt.Errorf("delete readings: %w", err)
	}
	return nil
}

func (s *Store) MaxBatchSize() int { return s.maxBatchSize }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Subscribe holds one pooled connection in LISTEN for the lifetime of the
// subscription and re-runs q after every notification.
func (s *Store) Subscribe(ctx context.Context, q store.Query, onSnapshot func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	// Register with Close before touching the pool so Close cannot start
	// waiting while a listener is still being set up.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, context.Canceled
	}
	s.wg.Add(1)
	s.mu.Unlock()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.wg.Done()
		return nil, fmt.Errorf("acquire listen conn: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel}.Sanitize()); err != nil {
		conn.Release()
		s.wg.Done()
		return nil, fmt.Errorf("listen: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.closing, cancel)
	go func() {
		defer s.wg.Done()
		defer stop()
		s.listen(ctx, conn, q, onSnapshot, onError)
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *Store) listen(ctx context.Context, conn *pgxpool.Conn, q store.Query, onSnapshot func(store.Snapshot), onError func(error)) {
	defer func() {
		if ctx.Err() != nil {
			// An interrupted wait leaves the connection unusable; the pool drops closed conns.
			_ = conn.Conn().Close(context.Background())
		} else if _, err := conn.Exec(context.Background(), "UNLISTEN *"); err != nil {
			s.logger.Warn("unlisten", "error", err)
		}
		conn.Release()
	}()

	for {
		records, err := s.QueryOnce(ctx, q)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("subscription ended", "collection", q.Collection, "error", err)
			onError(err)
			return
		}
		onSnapshot(store.Snapshot{Records: records})

		if _, err := conn.Conn().WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("subscription ended", "collection", q.Collection, "error", err)
			onError(fmt.Errorf("wait for notification: %w", err))
			return
		}
	}
}

// Close ends every subscription, waits for listeners to return their
// connections and closes the pool.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.closeAll()
	s.wg.Wait()
	s.pool.Close()
	return nil
}

var _ store.RecordStore = (*Store)(nil)
