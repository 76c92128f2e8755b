// Package animate interpolates a numeric value over time.
package animate

import (
	"sync"
	"time"
)

// Easing maps linear progress in [0,1] to eased progress.
type Easing func(p float64) float64

func Linear(p float64) float64 { return p }

// EaseInOut is a cubic ease-in-out curve.
func EaseInOut(p float64) float64 {
	if p < 0.5 {
		return 4 * p * p * p
	}
	q := -2*p + 2
	return 1 - q*q*q/2
}

// Tween moves from From to To over Duration. A nil Easing is linear.
type Tween struct {
	From     float64
	To       float64
	Duration time.Duration
	Easing   Easing
}

// Progress returns the linear progress at elapsed, clamped to [0,1].
func (t Tween) Progress(elapsed time.Duration) float64 {
	if t.Duration <= 0 || elapsed >= t.Duration {
		return 1
	}
	if elapsed <= 0 {
		return 0
	}
	return float64(elapsed) / float64(t.Duration)
}

// At returns the interpolated value at elapsed.
func (t Tween) At(elapsed time.Duration) float64 {
	p := t.Progress(elapsed)
	if t.Easing != nil {
		p = t.Easing(p)
	}
	return t.From + (t.To-t.From)*p
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ManualClock only moves when advanced.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StartPolicy chooses where a new tween begins.
type StartPolicy int

const (
	// FromZero restarts every tween at 0.
	FromZero StartPolicy = iota
	// FromCurrent continues from the value shown when the new target arrives.
	FromCurrent
)

// Animator tweens towards the most recent target.
type Animator struct {
	clock    Clock
	duration time.Duration
	easing   Easing
	policy   StartPolicy

	mu      sync.Mutex
	tween   Tween
	started time.Time
}

func NewAnimator(clock Clock, duration time.Duration, easing Easing, policy StartPolicy) *Animator {
	if clock == nil {
		clock = RealClock{}
	}
	if easing == nil {
		easing = EaseInOut
	}
	return &Animator{
		clock:    clock,
		duration: duration,
		easing:   easing,
		policy:   policy,
		tween:    Tween{Easing: easing},
		started:  clock.Now(),
	}
}

// Start begins a tween to target, replacing any running one.
func (a *Animator) Start(target float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock.Now()
	var from float64
	if a.policy == FromCurrent {
		from = a.tween.At(now.Sub(a.started))
	}
	a.tween = Tween{From: from, To: target, Duration: a.duration, Easing: a.easing}
	a.started = now
}

// Value returns the current interpolated value.
func (a *Animator) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tween.At(a.clock.Now().Sub(a.started))
}

// Target returns the value the animator is heading to.
func (a *Animator) Target() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tween.To
}

func (a *Animator) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tween.Progress(a.clock.Now().Sub(a.started)) < 1
}
