// Package store defines the record store the projections read from and the
// in-process fan-out shared by the embedded backends.
package store

import (
	"context"
	"errors"
	"fmt"

	"airquality-server/internal/modules/airquality/types"
)

const (
	CollectionReadings = "sensor_readings"
	OrderByTimestamp   = "timestamp"
)

var (
	ErrBatchTooLarge     = errors.New("store: batch exceeds maximum size")
	ErrUnknownCollection = errors.New("store: unknown collection")
)

// Query selects records of one collection. Limit <= 0 means unbounded.
type Query struct {
	Collection string
	OrderBy    string
	Descending bool
	Limit      int
}

// Validate checks the query against the single collection the store serves.
func (q Query) Validate() error {
	if q.Collection != CollectionReadings {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, q.Collection)
	}
	if q.OrderBy != "" && q.OrderBy != OrderByTimestamp {
		return fmt.Errorf("%w: %q has no ordering %q", ErrUnknownCollection, q.Collection, q.OrderBy)
	}
	return nil
}

// LatestReading is the live view query.
func LatestReading() Query {
	return Query{Collection: CollectionReadings, OrderBy: OrderByTimestamp, Descending: true, Limit: 1}
}

// RecentReadings is the history view query; limit <= 0 returns every record.
func RecentReadings(limit int) Query {
	return Query{Collection: CollectionReadings, OrderBy: OrderByTimestamp, Descending: true, Limit: limit}
}

// RecordRef identifies a stored record.
type RecordRef struct {
	Collection string
	ID         string
}

type Record struct {
	Ref    RecordRef
	Fields types.Document
}

// Snapshot is the full result of a query at one point in time.
type Snapshot struct {
	Records []Record
}

func (s Snapshot) Empty() bool { return len(s.Records) == 0 }

// Unsubscribe stops a subscription. It does not wait for an in-flight callback.
type Unsubscribe func()

// Subscriber delivers a snapshot immediately and again on every change.
// Delivery is ordered per subscription and an error ends it.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot), onError func(error)) (Unsubscribe, error)
}

type Querier interface {
	QueryOnce(ctx context.Context, q Query) ([]Record, error)
}

// Deleter removes records. Each DeleteBatch call commits atomically.
type Deleter interface {
	DeleteBatch(ctx context.Context, refs []RecordRef) error
	MaxBatchSize() int
}

type Writer interface {
	Insert(ctx context.Context, sortKey string, doc types.Document) (RecordRef, error)
}

type RecordStore interface {
	Subscriber
	Querier
	Deleter
	Writer
	Ping(ctx context.Context) error
	Close() error
}

// CheckBatch validates a delete batch against max.
func CheckBatch(refs []RecordRef, max int) error {
	if len(refs) > max {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(refs), max)
	}
	for _, ref := range refs {
		if ref.Collection != CollectionReadings {
			return fmt.Errorf("%w: %q", ErrUnknownCollection, ref.Collection)
		}
	}
	return nil
}
