// Package resilience guards flaky dependencies with retries and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

var stateNames = [...]string{Closed: "closed", Open: "open", HalfOpen: "half_open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Breaker opens once at least minRequests outcomes have been seen in the
// current window and the failure share reaches failureRatio. After openFor it
// lets one probe through; the probe's outcome closes or reopens it.
//
// Callers report business outcomes such as "not found" as successes.
type Breaker struct {
	minRequests  int
	failureRatio float64
	openFor      time.Duration
	now          func() time.Time

	mu       sync.Mutex
	state    State
	window   outcomes
	openedAt time.Time
	probing  bool
	target   string
	logger   zerolog.Logger
}

type outcomes struct{ ok, failed int }

func (o outcomes) total() int { return o.ok + o.failed }

// NewBreaker builds a closed breaker. Out-of-range settings fall back to
// 1 request, a 0.5 ratio and a 30s cool-off.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	b := &Breaker{
		minRequests:  max(minRequests, 1),
		failureRatio: failureRatio,
		openFor:      openFor,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
	if b.failureRatio <= 0 || b.failureRatio > 1 {
		b.failureRatio = 0.5
	}
	if b.openFor <= 0 {
		b.openFor = 30 * time.Second
	}
	return b
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	setStateGauge(b.label(), b.state)
	return b
}

// WithLogger sets the fallback logger for transition events. A logger carried
// on the call context takes precedence.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. While half-open only one probe
// is outstanding at a time.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.openFor {
			return false
		}
		b.moveLocked(ctx, HalfOpen)
	}
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

// Report records the outcome of a call admitted by Allow.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
		return
	}

	if success {
		b.window.ok++
	} else {
		b.window.failed++
	}
	total := b.window.total()
	if total < b.minRequests {
		return
	}
	if float64(b.window.failed)/float64(total) >= b.failureRatio {
		b.moveLocked(ctx, Open)
		return
	}
	// Halve the window once it is twice the minimum so old successes fade.
	if total >= 2*b.minRequests {
		b.window = outcomes{ok: (b.window.ok + 1) / 2, failed: (b.window.failed + 1) / 2}
	}
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	from := b.state
	if from == next {
		return
	}
	b.state = next
	b.window = outcomes{}
	b.probing = false
	if next == Open {
		b.openedAt = b.now()
	}

	label := b.label()
	setStateGauge(label, next)
	countTransition(label, from, next)

	logger := b.logger
	if ctxLogger := zerolog.Ctx(ctx); ctxLogger.GetLevel() != zerolog.Disabled {
		logger = *ctxLogger
	}
	evt := logger.Info().Str("target", label).Stringer("from_state", from).Stringer("to_state", next)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("store breaker transition")
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}
