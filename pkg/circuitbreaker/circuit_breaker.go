package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config tunes a breaker. Zero values fall back to the defaults below.
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit from closed.
	MaxFailures uint32
	// ResetTimeout is how long the circuit stays open before a half-open
	// probe is allowed.
	ResetTimeout time.Duration
	// HalfOpenSuccesses is the number of consecutive probe successes that
	// close the circuit again.
	HalfOpenSuccesses uint32
}

const (
	defaultMaxFailures       = 5
	defaultResetTimeout      = 30 * time.Second
	defaultHalfOpenSuccesses = 2
)

// Breaker guards calls to one external collaborator. A run of failures opens
// the circuit; while open, Execute fails fast with *OpenError until
// ResetTimeout elapses, after which probe calls decide whether to close it.
type Breaker struct {
	name   string
	cfg    Config
	logger *logrus.Logger

	mu          sync.Mutex
	state       State
	failures    uint32
	probeStreak uint32
	openedAt    time.Time
}

// New creates a breaker named after the collaborator it guards.
func New(name string, cfg Config, logger *logrus.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}
	if cfg.HalfOpenSuccesses == 0 {
		cfg.HalfOpenSuccesses = defaultHalfOpenSuccesses
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Breaker{name: name, cfg: cfg, logger: logger}
}

// Execute runs fn unless the circuit is open. fn's error both propagates to
// the caller and counts against the failure threshold.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)
	b.record(err == nil)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cfg.ResetTimeout {
			return &OpenError{Name: b.name}
		}
		b.state = StateHalfOpen
		b.probeStreak = 0
		b.logger.WithFields(logrus.Fields{
			"breaker": b.name,
			"state":   StateHalfOpen.String(),
		}).Info("Circuit breaker probing after reset timeout")
	}
	return nil
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ok {
		switch b.state {
		case StateHalfOpen:
			b.probeStreak++
			if b.probeStreak >= b.cfg.HalfOpenSuccesses {
				b.state = StateClosed
				b.failures = 0
				b.logger.WithFields(logrus.Fields{
					"breaker": b.name,
					"state":   StateClosed.String(),
				}).Info("Circuit breaker closed after recovery")
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.probeStreak = 0
		b.logger.WithFields(logrus.Fields{
			"breaker":  b.name,
			"failures": b.failures,
			"state":    StateOpen.String(),
		}).Warn("Circuit breaker opened")
	}
}

// CurrentState reports the breaker state without advancing it.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OpenError is returned when a call is rejected because the circuit is open.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// IsOpen reports whether err is a fast-fail rejection from an open breaker.
func IsOpen(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}
