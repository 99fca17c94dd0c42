package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen lets trial requests through to test whether the dependency recovered.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker guards calls to a flaky dependency.
type CircuitBreaker interface {
	// Execute runs fn unless the circuit is open. A non-nil error from fn counts as a failure.
	Execute(fn func() error) error
	// State returns the current state of the circuit breaker.
	State() State
}

// Settings configures a breaker.
type Settings struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold uint32
	// Timeout is how long the circuit stays open before allowing a trial.
	Timeout time.Duration
	// OnStateChange, if set, is called with the lock released after each transition.
	OnStateChange func(from, to State)
}

type breaker struct {
	settings             Settings
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	state                State
	now                  func() time.Time
	mutex                sync.Mutex
}

// New creates a breaker. Zero thresholds default to 5 failures and 1 success,
// and a zero timeout to 30s.
func New(s Settings) CircuitBreaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	return &breaker{settings: s, state: Closed, now: time.Now}
}

// FromConfig returns nil when the breaker is disabled.
func FromConfig(cfg config.CircuitBreakerConfig, onChange func(from, to State)) CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}
	return New(Settings{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          config.Duration(cfg.Timeout, 30*time.Second),
		OnStateChange:    onChange,
	})
}

func (cb *breaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

func (cb *breaker) Execute(fn func() error) error {
	cb.mutex.Lock()
	from := cb.state
	cb.maybeHalfOpen()
	state := cb.state
	cb.mutex.Unlock()
	cb.notify(from, state)

	if state == Open {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *breaker) maybeHalfOpen() {
	if cb.state == Open && cb.now().Sub(cb.openedAt) >= cb.settings.Timeout {
		cb.state = HalfOpen
		cb.consecutiveSuccesses = 0
	}
}

func (cb *breaker) record(ok bool) {
	cb.mutex.Lock()
	from := cb.state
	if ok {
		switch cb.state {
		case HalfOpen:
			cb.consecutiveSuccesses++
			if cb.consecutiveSuccesses >= cb.settings.SuccessThreshold {
				cb.state = Closed
				cb.consecutiveFailures = 0
				cb.consecutiveSuccesses = 0
			}
		case Closed:
			cb.consecutiveFailures = 0
		}
	} else {
		switch cb.state {
		case HalfOpen:
			cb.trip()
		case Closed:
			cb.consecutiveFailures++
			if cb.consecutiveFailures >= cb.settings.FailureThreshold {
				cb.trip()
			}
		}
	}
	to := cb.state
	cb.mutex.Unlock()
	cb.notify(from, to)
}

func (cb *breaker) trip() {
	cb.state = Open
	cb.openedAt = cb.now()
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
}

func (cb *breaker) notify(from, to State) {
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(from, to)
	}
}
