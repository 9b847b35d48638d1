package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semtrip/cache"
	"github.com/c360studio/semtrip/model"
)

// SystemPrompt is sent with every generation request.
const SystemPrompt = "You are a travel planning expert assistant."

// DefaultMaxTokens is the completion budget used when a caller passes 0.
const DefaultMaxTokens = 512

// Generator is the cache-aside front of a Completer. Identical
// (model, maxTokens, prompt) tuples are answered from the cache until the
// entry expires; failures are never cached.
type Generator struct {
	backend  Completer
	registry *model.Registry
	cache    *cache.TTL[string]
	logger   *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a generator. The cache is owned by the caller and
// may be shared between generators.
func NewGenerator(backend Completer, registry *model.Registry, c *cache.TTL[string], opts ...GeneratorOption) *Generator {
	g := &Generator{
		backend:  backend,
		registry: registry,
		cache:    c,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ModelFor returns the endpoint name a capability resolves to.
func (g *Generator) ModelFor(c model.Capability) string {
	return g.registry.Resolve(c)
}

// Invoke returns the model's answer to prompt. On a cache miss the
// backend is called with SystemPrompt at temperature 0 and a successful
// answer is cached. Any backend failure wraps ErrGenerationUnavailable.
func (g *Generator) Invoke(ctx context.Context, prompt, modelID string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	key := cache.MakeKey(modelID, maxTokens, prompt)
	if text, ok := g.cache.Get(key); ok {
		g.logger.Debug("Generation cache hit", "model", modelID)
		return text, nil
	}

	temperature := 0.0
	resp, err := g.backend.Complete(ctx, Request{
		Endpoint: modelID,
		Messages: []Message{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: &temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrGenerationUnavailable, modelID, err)
	}

	g.cache.Set(key, resp.Content)
	return resp.Content, nil
}
