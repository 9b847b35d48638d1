package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownEndpoint is returned when a name does not match a configured
// endpoint.
var ErrUnknownEndpoint = errors.New("unknown model endpoint")

// EndpointConfig describes one generation endpoint.
type EndpointConfig struct {
	// Provider selects the wire format (groq, ollama, openai, anthropic).
	Provider string `yaml:"provider" json:"provider"`

	// URL overrides the provider's default base URL.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Model is the identifier sent to the provider.
	Model string `yaml:"model" json:"model"`

	// MaxTokens is the default completion budget for this endpoint.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
}

// Registry resolves capabilities to endpoints. There is no fallback
// chain: each capability maps to exactly one endpoint.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]string
	endpoints    map[string]*EndpointConfig
	defaultName  string
	health       *healthState
}

// NewRegistry creates a registry whose capabilities all resolve to
// defaultName until overridden with SetCapability.
func NewRegistry(endpoints map[string]*EndpointConfig, defaultName string) *Registry {
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	return &Registry{
		capabilities: make(map[Capability]string),
		endpoints:    endpoints,
		defaultName:  defaultName,
		health:       newHealthState(DefaultHealthConfig()),
	}
}

// NewDefaultRegistry returns a registry with the hosted Groq endpoint
// used when nothing is configured.
func NewDefaultRegistry() *Registry {
	return NewRegistry(map[string]*EndpointConfig{
		"llama-3.1-8b-instant": {
			Provider:  "groq",
			Model:     "llama-3.1-8b-instant",
			MaxTokens: 512,
		},
	}, "llama-3.1-8b-instant")
}

// Resolve returns the endpoint name for a capability.
func (r *Registry) Resolve(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.capabilities[c]; ok && name != "" {
		return name
	}
	return r.defaultName
}

// Endpoint returns the named endpoint configuration.
func (r *Registry) Endpoint(name string) (*EndpointConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[name]
	if !ok || ep == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEndpoint, name)
	}
	return ep, nil
}

// SetCapability routes a capability to a named endpoint.
func (r *Registry) SetCapability(c Capability, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c] = name
}

// SetEndpoint adds or replaces an endpoint.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = cfg
}

// Default returns the default endpoint name.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// ListEndpoints returns the configured endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
