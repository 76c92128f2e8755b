// Package ingest stores sensor documents received from the transport.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"airquality-server/internal/modules/airquality/codec"
	"airquality-server/internal/modules/airquality/quality"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/types"
)

const defaultTimeout = 5 * time.Second

type Bridge struct {
	writer  store.Writer
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

type Option func(*Bridge)

func WithLogger(l *slog.Logger) Option { return func(b *Bridge) { b.logger = l } }

func WithNow(now func() time.Time) Option { return func(b *Bridge) { b.now = now } }

// WithTimeout bounds each store write.
func WithTimeout(d time.Duration) Option { return func(b *Bridge) { b.timeout = d } }

func NewBridge(w store.Writer, opts ...Option) *Bridge {
	b := &Bridge{writer: w, now: time.Now, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Store validates doc and writes it unchanged apart from a timestamp
// stamped on documents that arrive without one.
func (b *Bridge) Store(ctx context.Context, doc types.Document) (store.RecordRef, error) {
	if _, ok := doc[codec.FieldTimestamp]; !ok {
		doc = stamp(doc, b.now().UTC())
	}
	r, err := codec.DecodeReading(doc)
	if err != nil {
		return store.RecordRef{}, fmt.Errorf("invalid sensor document: %w", err)
	}
	if !quality.InSensorRange(r.AirQuality) {
		b.logger.Warn("air quality outside sensor range", "raw", r.AirQuality)
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	ref, err := b.writer.Insert(ctx, codec.SortKey(r.Timestamp), doc)
	if err != nil {
		return store.RecordRef{}, fmt.Errorf("insert reading: %w", err)
	}
	b.logger.Debug("stored sensor reading", "id", ref.ID, "timestamp", r.Timestamp, "air_quality", r.AirQuality)
	return ref, nil
}

// Handle adapts Store to the transport's message handler signature.
func (b *Bridge) Handle(doc types.Document) error {
	_, err := b.Store(context.Background(), doc)
	return err
}

func stamp(doc types.Document, at time.Time) types.Document {
	out := make(types.Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out[codec.FieldTimestamp] = at.Format(time.RFC3339Nano)
	return out
}
