package live

import (
	"fmt"

	"airquality-server/internal/modules/airquality/codec"
	"airquality-server/internal/modules/airquality/quality"
	"airquality-server/internal/modules/airquality/store"
	"airquality-server/internal/modules/airquality/types"
)

// State is the live view: the newest reading, if any was ever seen.
type State struct {
	Reading *types.LiveReading
	Loading bool
	Err     error
}

func InitialState() State { return State{Loading: true} }

// HasData reports whether a reading has been published.
func (s State) HasData() bool { return s.Reading != nil }

type Event interface{ event() }

type SnapshotEvent struct {
	Snapshot store.Snapshot
}

type ErrorEvent struct {
	Err error
}

func (SnapshotEvent) event() {}
func (ErrorEvent) event()    {}

// SubscriptionError reports that the live listener failed. It is not retried.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("live reading subscription failed: %v", e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// Reduce applies ev to s. An empty snapshot keeps the last reading. A record
// that cannot be decoded keeps it too; the decode error is returned so the
// caller can log it.
func Reduce(s State, ev Event) (State, error) {
	switch ev := ev.(type) {
	case SnapshotEvent:
		s.Loading = false
		if ev.Snapshot.Empty() {
			return s, nil
		}
		rec := ev.Snapshot.Records[0]
		r, err := codec.DecodeReading(rec.Fields)
		if err != nil {
			return s, fmt.Errorf("decode reading %s: %w", rec.Ref.ID, err)
		}
		s.Reading = &types.LiveReading{Reading: r, Assessment: quality.Assess(r.AirQuality)}
		s.Err = nil
		return s, nil
	case ErrorEvent:
		s.Loading = false
		s.Err = &SubscriptionError{Err: ev.Err}
		return s, nil
	default:
		return s, fmt.Errorf("unknown event %T", ev)
	}
}
