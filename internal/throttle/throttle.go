package throttle

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

const (
	// SourceMinSpacing and SourceJitter give the 9-11s floor between source API calls.
	SourceMinSpacing = 9 * time.Second
	SourceJitter     = 2 * time.Second
	// PublishSpacing is the fixed floor between destination publish calls.
	PublishSpacing = 15 * time.Second
)

// Clock abstracts time so waits can be observed in tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock uses the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }

// WaitObserver receives the time spent waiting at a gate.
type WaitObserver interface {
	ObserveThrottleWait(gate string, d time.Duration)
}

// Gate enforces a minimum spacing since the last call to one dependency.
// It is not safe for concurrent use; the scanner drives it from one goroutine.
type Gate struct {
	name    string
	spacing time.Duration
	jitter  time.Duration
	last    time.Time

	clock    Clock
	intn     func(n int64) int64
	logger   *slog.Logger
	observer WaitObserver
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Gate) { g.clock = c }
}

// WithRandom replaces the jitter source; intn must return a value in [0, n).
func WithRandom(intn func(n int64) int64) Option {
	return func(g *Gate) { g.intn = intn }
}

// WithLogger attaches a logger for wait messages.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithObserver reports waits to metrics.
func WithObserver(o WaitObserver) Option {
	return func(g *Gate) { g.observer = o }
}

// NewGate builds a gate whose required spacing is drawn uniformly from
// [spacing, spacing+jitter) on every wait.
func NewGate(name string, spacing, jitter time.Duration, opts ...Option) *Gate {
	g := &Gate{
		name:    name,
		spacing: spacing,
		jitter:  jitter,
		clock:   SystemClock{},
		intn:    rand.Int64N,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait suspends until the required spacing since the last Mark has elapsed and
// returns the time slept. It is not interrupted by ctx cancellation: waits are
// suspension points that always run to completion.
func (g *Gate) Wait(_ context.Context) time.Duration {
	required := g.spacing
	if ms := int64(g.jitter / time.Millisecond); ms > 0 {
		required += time.Duration(g.intn(ms)) * time.Millisecond
	}

	elapsed := g.clock.Now().Sub(g.last)
	if g.last.IsZero() || elapsed >= required {
		return 0
	}

	remaining := required - elapsed
	if g.logger != nil {
		g.logger.Info("throttle wait", "gate", g.name, "sleep_ms", remaining.Milliseconds())
	}
	g.clock.Sleep(remaining)
	if g.observer != nil {
		g.observer.ObserveThrottleWait(g.name, remaining)
	}
	return remaining
}

// Mark records that a gated call just completed.
func (g *Gate) Mark() {
	g.last = g.clock.Now()
}

// Limiter holds one gate per rate-limited dependency.
type Limiter struct {
	Source  *Gate
	Publish *Gate
}

// NewLimiter builds the source and publish gates with shared options.
func NewLimiter(sourceSpacing, sourceJitter, publishSpacing time.Duration, opts ...Option) *Limiter {
	return &Limiter{
		Source:  NewGate("source", sourceSpacing, sourceJitter, opts...),
		Publish: NewGate("publish", publishSpacing, 0, opts...),
	}
}
