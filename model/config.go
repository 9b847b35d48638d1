package model

import (
	"fmt"
)

// RegistryConfig is the serialized form of a Registry, embedded in the
// application config under "model".
type RegistryConfig struct {
	// Default names the endpoint used for capabilities without a route.
	Default string `yaml:"default"`

	// Endpoints lists the available endpoints by name.
	Endpoints map[string]*EndpointConfig `yaml:"endpoints"`

	// Capabilities optionally routes a capability to another endpoint.
	Capabilities map[string]string `yaml:"capabilities,omitempty"`
}

// Validate checks that every referenced endpoint exists.
func (c RegistryConfig) Validate() error {
	if c.Default == "" {
		return fmt.Errorf("model.default is required")
	}
	if _, ok := c.Endpoints[c.Default]; !ok {
		return fmt.Errorf("model.default %q: %w", c.Default, ErrUnknownEndpoint)
	}
	for name, ep := range c.Endpoints {
		if ep == nil || ep.Provider == "" {
			return fmt.Errorf("model.endpoints.%s.provider is required", name)
		}
		if ep.Model == "" {
			return fmt.Errorf("model.endpoints.%s.model is required", name)
		}
	}
	for capName, name := range c.Capabilities {
		if ParseCapability(capName) == "" {
			return fmt.Errorf("model.capabilities: unknown capability %q", capName)
		}
		if _, ok := c.Endpoints[name]; !ok {
			return fmt.Errorf("model.capabilities.%s %q: %w", capName, name, ErrUnknownEndpoint)
		}
	}
	return nil
}

// NewRegistryFromConfig validates cfg and builds a registry from it.
func NewRegistryFromConfig(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoints := make(map[string]*EndpointConfig, len(cfg.Endpoints))
	for name, ep := range cfg.Endpoints {
		cp := *ep
		endpoints[name] = &cp
	}
	r := NewRegistry(endpoints, cfg.Default)
	for capName, name := range cfg.Capabilities {
		r.SetCapability(ParseCapability(capName), name)
	}
	return r, nil
}

// ToConfig converts the registry back to its serialized form.
func (r *Registry) ToConfig() RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := RegistryConfig{
		Default:   r.defaultName,
		Endpoints: make(map[string]*EndpointConfig, len(r.endpoints)),
	}
	for name, ep := range r.endpoints {
		cp := *ep
		cfg.Endpoints[name] = &cp
	}
	if len(r.capabilities) > 0 {
		cfg.Capabilities = make(map[string]string, len(r.capabilities))
		for c, name := range r.capabilities {
			cfg.Capabilities[string(c)] = name
		}
	}
	return cfg
}
