// Package live projects the newest stored reading into view state and drives
// the gauge animation for it.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"airquality-server/internal/modules/airquality/animate"
	"airquality-server/internal/modules/airquality/quality"
	"airquality-server/internal/modules/airquality/store"
)

const DefaultAnimationDuration = 1500 * time.Millisecond

var ErrAlreadyActive = errors.New("live: projection already active")

type options struct {
	logger   *slog.Logger
	clock    animate.Clock
	duration time.Duration
	easing   animate.Easing
	policy   animate.StartPolicy
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithClock(c animate.Clock) Option { return func(o *options) { o.clock = c } }

func WithAnimationDuration(d time.Duration) Option { return func(o *options) { o.duration = d } }

func WithEasing(e animate.Easing) Option { return func(o *options) { o.easing = e } }

func WithStartPolicy(p animate.StartPolicy) Option { return func(o *options) { o.policy = p } }

// Projection owns at most one live subscription at a time.
type Projection struct {
	sub      store.Subscriber
	logger   *slog.Logger
	animator *animate.Animator
	updates  chan State

	mu     sync.Mutex
	state  State
	active *Session
}

func NewProjection(sub store.Subscriber, opts ...Option) *Projection {
	o := options{duration: DefaultAnimationDuration, policy: animate.FromZero}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = animate.RealClock{}
	}
	return &Projection{
		sub:      sub,
		logger:   o.logger,
		animator: animate.NewAnimator(o.clock, o.duration, o.easing, o.policy),
		updates:  make(chan State, 1),
		state:    InitialState(),
	}
}

// Session is the handle for one activation. Release it on every exit path;
// it is also released when the activation context ends.
type Session struct {
	p     *Projection
	once  sync.Once
	unsub store.Unsubscribe
	stop  func() bool
}

// Activate subscribes to the latest reading.
func (p *Projection) Activate(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	if p.active != nil {
		p.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	sess := &Session{p: p}
	p.active = sess
	p.mu.Unlock()

	unsub, err := p.sub.Subscribe(ctx, store.LatestReading(),
		func(s store.Snapshot) { p.apply(sess, SnapshotEvent{Snapshot: s}) },
		func(err error) { p.apply(sess, ErrorEvent{Err: err}) },
	)
	if err != nil {
		p.mu.Lock()
		p.active = nil
		p.state, _ = Reduce(p.state, ErrorEvent{Err: err})
		p.publishLocked()
		p.mu.Unlock()
		p.logger.Error("live subscribe failed", "error", err)
		return nil, fmt.Errorf("subscribe latest reading: %w", err)
	}

	p.mu.Lock()
	sess.unsub = unsub
	sess.stop = context.AfterFunc(ctx, sess.Release)
	p.mu.Unlock()
	return sess, nil
}

// Release unsubscribes. It is safe to call more than once.
func (s *Session) Release() {
	s.once.Do(func() {
		p := s.p
		p.mu.Lock()
		if p.active == s {
			p.active = nil
		}
		unsub, stop := s.unsub, s.stop
		p.mu.Unlock()
		if stop != nil {
			stop()
		}
		if unsub != nil {
			unsub()
		}
	})
}

func (p *Projection) apply(sess *Session, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != sess {
		return
	}
	next, err := Reduce(p.state, ev)
	if err != nil {
		p.logger.Warn("live reading skipped", "error", err)
	}
	if ev, ok := ev.(ErrorEvent); ok {
		p.logger.Error("live subscription failed", "error", ev.Err)
	}
	if next.Reading != nil && next.Reading != p.state.Reading {
		raw := next.Reading.AirQuality
		if !quality.InSensorRange(raw) {
			p.logger.Warn("air quality outside sensor range", "raw", raw, "percentage", next.Reading.Percentage)
		}
		p.animator.Start(float64(next.Reading.Percentage))
	}
	p.state = next
	p.publishLocked()
}

// publishLocked replaces any unread update with the current state.
func (p *Projection) publishLocked() {
	select {
	case <-p.updates:
	default:
	}
	p.updates <- p.state
}

func (p *Projection) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Updates carries the latest state after every change. Unread states are
// replaced, so a slow reader only sees the newest one.
func (p *Projection) Updates() <-chan State { return p.updates }

// GaugeValue is the animated percentage to draw right now.
func (p *Projection) GaugeValue() int {
	return int(math.Floor(p.animator.Value() + 0.5))
}

func (p *Projection) Animating() bool { return p.animator.Running() }

// Active reports whether a session is currently held.
func (p *Projection) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}
