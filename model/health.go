package model

import (
	"sync"
	"time"
)

// EndpointHealth is a snapshot of an endpoint's circuit state.
type EndpointHealth struct {
	FailureCount    int       `json:"failure_count"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
}

// HealthConfig configures the per-endpoint circuit breaker.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failed calls that
	// opens the circuit.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects calls before a
	// trial call is let through.
	RecoveryTimeout time.Duration

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// DefaultHealthConfig returns the breaker defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		Now:              time.Now,
	}
}

type healthState struct {
	mu       sync.Mutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
}

func newHealthState(cfg HealthConfig) *healthState {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &healthState{
		config:   cfg,
		statuses: make(map[string]*EndpointHealth),
	}
}

func (h *healthState) status(name string) *EndpointHealth {
	s, ok := h.statuses[name]
	if !ok {
		s = &EndpointHealth{}
		h.statuses[name] = s
	}
	return s
}

// SetHealthConfig replaces the breaker configuration and clears state.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = newHealthState(cfg)
}

// MarkEndpointSuccess closes the endpoint's circuit.
func (r *Registry) MarkEndpointSuccess(name string) {
	h := r.healthState()
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.status(name)
	s.LastSuccess = h.config.Now()
	s.FailureCount = 0
	s.CircuitOpen = false
}

// MarkEndpointFailure records a failed call and opens the circuit once
// the threshold is reached.
func (r *Registry) MarkEndpointFailure(name string) {
	h := r.healthState()
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.status(name)
	now := h.config.Now()
	s.LastFailure = now
	s.FailureCount++
	if s.FailureCount >= h.config.FailureThreshold {
		s.CircuitOpen = true
		s.CircuitOpenedAt = now
	}
}

// IsEndpointAvailable reports whether calls to the endpoint are allowed.
// An open circuit allows a trial call once the recovery timeout passed.
func (r *Registry) IsEndpointAvailable(name string) bool {
	h := r.healthState()
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.statuses[name]
	if !ok || !s.CircuitOpen {
		return true
	}
	return h.config.Now().Sub(s.CircuitOpenedAt) >= h.config.RecoveryTimeout
}

// EndpointHealth returns a copy of the endpoint's health, or nil if no
// call has been recorded.
func (r *Registry) EndpointHealth(name string) *EndpointHealth {
	h := r.healthState()
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.statuses[name]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

func (r *Registry) healthState() *healthState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.health
}
