// Package breaker guards calls to external dependencies with a circuit
// breaker so a persistently failing provider stops consuming retries and
// quota until it recovers.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// ErrBreakerOpen is returned when the circuit rejects a call without
// executing it.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Settings tunes a breaker. Zero fields take defaults.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit. Default 5.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before allowing
	// a probe call. Default 60s.
	RecoveryTimeout time.Duration
}

func (s *Settings) applyDefaults() {
	if s.FailureThreshold < 1 {
		s.FailureThreshold = 5
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = 60 * time.Second
	}
}

// Breaker wraps a single named circuit. In the half-open state exactly one
// probe call is admitted; its outcome closes or re-opens the circuit.
type Breaker struct {
	name string
	cb   *gobreaker.CircuitBreaker
}

// New creates a breaker for the named dependency.
func New(name string, s Settings, log *logrus.Entry) *Breaker {
	s.applyDefaults()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     s.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(s.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if log != nil {
				log.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Circuit breaker state change")
			}
		},
	})
	return &Breaker{name: name, cb: cb}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current circuit state as a string (closed, half-open,
// open).
func (b *Breaker) State() string { return b.cb.State().String() }

// Execute runs fn through the circuit. When the circuit is open, or a
// second caller races the half-open probe, it returns ErrBreakerOpen
// without running fn.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrBreakerOpen
	}
	return err
}

// Registry hands out shared breakers by dependency name so every worker
// hitting the same endpoint observes the same circuit.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	settings Settings
	log      *logrus.Entry
}

// NewRegistry creates a registry applying the same settings to each breaker
// it creates.
func NewRegistry(s Settings, log *logrus.Entry) *Registry {
	s.applyDefaults()
	return &Registry{
		breakers: make(map[string]*Breaker),
		settings: s,
		log:      log,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.settings, r.log)
	r.breakers[name] = b
	return b
}

// States returns a snapshot of every breaker's state, keyed by name.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}
