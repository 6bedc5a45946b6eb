package enforcement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultTick      = 60 * time.Second
	DefaultPausePoll = 5 * time.Second
)

// ErrStopped is returned when sending to a reflector whose loop has exited.
var ErrStopped = errors.New("reflector stopped")

// Option configures a Reflector
type Option func(*Reflector)

// WithTick sets the periodic re-evaluation interval.
func WithTick(d time.Duration) Option {
	return func(r *Reflector) { r.tick = d }
}

// WithPausePoll sets how often an expired pause is looked for.
func WithPausePoll(d time.Duration) Option {
	return func(r *Reflector) { r.pausePoll = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reflector) { r.now = now }
}

// OnDecision registers a callback run on the loop after every evaluation.
func OnDecision(fn func(Decision)) Option {
	return func(r *Reflector) { r.observers = append(r.observers, fn) }
}

// Reflector keeps the shield in line with the cached state. The state is
// owned by the Run goroutine; every change arrives as a function over the
// updates channel and is followed by an evaluation.
type Reflector struct {
	shield    Shield
	tick      time.Duration
	pausePoll time.Duration
	now       func() time.Time
	observers []func(Decision)

	updates    chan func(*State)
	foreground chan struct{}
	done       chan struct{}

	state State

	mu   sync.RWMutex
	last *Decision
}

// NewReflector creates a reflector for shield. Call Run to start it.
func NewReflector(shield Shield, opts ...Option) *Reflector {
	r := &Reflector{
		shield:     shield,
		tick:       DefaultTick,
		pausePoll:  DefaultPausePoll,
		now:        time.Now,
		updates:    make(chan func(*State)),
		foreground: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run evaluates immediately and then on every tick, update, foreground
// signal and pause expiry until ctx is done.
func (r *Reflector) Run(ctx context.Context) error {
	defer close(r.done)

	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	poll := time.NewTicker(r.pausePoll)
	defer poll.Stop()

	r.evaluate()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-r.updates:
			fn(&r.state)
			r.evaluate()
		case <-r.foreground:
			r.evaluate()
		case <-ticker.C:
			r.evaluate()
		case <-poll.C:
			if r.state.PauseUntil != nil && !r.state.Paused(r.now()) {
				log.Info().Time("pause_until", *r.state.PauseUntil).Msg("Pause expired")
				r.state.PauseUntil = nil
				r.evaluate()
			}
		}
	}
}

// Update applies fn to the cached state on the loop goroutine.
func (r *Reflector) Update(ctx context.Context, fn func(*State)) error {
	select {
	case r.updates <- fn:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetManualBlock switches the manual override.
func (r *Reflector) SetManualBlock(ctx context.Context, on bool) error {
	return r.Update(ctx, func(s *State) { s.ManualBlock = on })
}

// SetPauseUntil replaces the cached pause. nil ends it.
func (r *Reflector) SetPauseUntil(ctx context.Context, until *time.Time) error {
	return r.Update(ctx, func(s *State) { s.PauseUntil = until })
}

// Foreground requests an evaluation, e.g. when the app becomes visible.
func (r *Reflector) Foreground() {
	select {
	case r.foreground <- struct{}{}:
	default:
	}
}

// Decision returns the last evaluation, if any.
func (r *Reflector) Decision() (Decision, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Decision{}, false
	}
	return *r.last, true
}

func (r *Reflector) evaluate() {
	d := Evaluate(r.state, r.shield.IsAuthorized(), r.now())
	if err := r.shield.Apply(d.Selection, d.Active); err != nil {
		log.Error().Err(err).Str("reason", d.Reason).Msg("Failed to apply shield")
	}

	r.mu.Lock()
	r.last = &d
	r.mu.Unlock()

	for _, fn := range r.observers {
		fn(d)
	}
}
