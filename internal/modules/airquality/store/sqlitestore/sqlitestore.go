// Package sqlitestore stores readings in SQLite. Documents are kept as JSON
// text next to their ordering key; subscriptions are refreshed in-process
// after every write made through this store.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/types"
)

//go:embed sql/select-readings-desc.sql
var selectReadingsDescSQL string

//go:embed sql/select-readings-asc.sql
var selectReadingsAscSQL string

//go:embed sql/insert-reading.sql
var insertReadingSQL string

//go:embed sql/delete-reading.sql
var deleteReadingSQL string

const DefaultMaxBatchSize = 500

type Store struct {
	db           *sql.DB
	hub          *store.Hub
	logger       *slog.Logger
	maxBatchSize int
}

// New wraps an opened and migrated database.
func New(db *sql.DB, logger *slog.Logger, maxBatchSize int) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	return &Store{db: db, hub: store.NewHub(logger), logger: logger, maxBatchSize: maxBatchSize}
}

func (s *Store) Subscribe(ctx context.Context, q store.Query, onSnapshot func(store.Snapshot), onError func(error)) (store.Unsubscribe, error) {
	return s.hub.Subscribe(ctx, q, s.QueryOnce, onSnapshot, onError)
}

func (s *Store) QueryOnce(ctx context.Context, q store.Query) ([]store.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query := selectReadingsAscSQL
	if q.Descending {
		query = selectReadingsDescSQL
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close readings rows", "error", err)
		}
	}()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]store.Record, error) {
	var out []store.Record
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var doc types.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
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
	if _, err := s.db.ExecContext(ctx, insertReadingSQL, id, sortKey, string(raw)); err != nil {
		return store.RecordRef{}, fmt.Errorf("insert reading: %w", err)
	}
	s.hub.Notify()
	return store.RecordRef{Collection: store.CollectionReadings, ID: id}, nil
}

// DeleteBatch removes refs in one transaction.
func (s *Store) DeleteBatch(ctx context.Context, refs []store.RecordRef) (err error) {
	if err := store.CheckBatch(refs, s.maxBatchSize); err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("rollback delete", "error", rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, deleteReadingSQL)
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ref := range refs {
		if _, err = stmt.ExecContext(ctx, ref.ID); err != nil {
			return fmt.Errorf("delete reading %s: %w", ref.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	s.hub.Notify()
	return nil
}

func (s *Store) MaxBatchSize() int { return s.maxBatchSize }

func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// Close ends all subscriptions. The database handle belongs to the caller.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

var _ store.RecordStore = (*Store)(nil)
