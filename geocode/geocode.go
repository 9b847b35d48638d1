// Package geocode resolves a free-text place name to coordinates using a
// primary provider with ordered fallbacks.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semtrip/fallback"
	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/metrics"
)

var (
	// ErrUnavailable is returned when no provider could resolve the place.
	ErrUnavailable = errors.New("geocode unavailable")

	// ErrNotFound is returned by a provider that answered but had no match.
	ErrNotFound = errors.New("place not found")
)

// Provider looks up a single place name.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, name string) (geo.Point, error)
}

// Resolver tries providers in order until one returns a valid point.
type Resolver struct {
	providers []Provider
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithMetrics records provider outcomes.
func WithMetrics(m *metrics.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// NewResolver creates a resolver over providers, primary first.
func NewResolver(providers []Provider, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		providers: providers,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the coordinates of place. Only the first comma-separated
// token is used, so "Jaipur, Ayodhya" resolves Jaipur.
func (r *Resolver) Resolve(ctx context.Context, place string) (geo.Point, error) {
	name := PrimaryName(place)
	if name == "" {
		return geo.Point{}, fmt.Errorf("%w: empty place name", ErrUnavailable)
	}

	strategies := make([]fallback.Strategy[geo.Point], 0, len(r.providers))
	for _, p := range r.providers {
		strategies = append(strategies, fallback.Strategy[geo.Point]{
			Name: p.Name(),
			Run: func(ctx context.Context) (geo.Point, error) {
				pt, err := p.Lookup(ctx, name)
				if err != nil {
					return geo.Point{}, err
				}
				if !pt.Valid() {
					return geo.Point{}, fmt.Errorf("invalid coordinates %s", pt)
				}
				pt.Source = p.Name()
				return pt, nil
			},
		})
	}

	pt, source, err := fallback.First(ctx, strategies, nil,
		fallback.WithChainName("geocode"),
		fallback.WithLogger(r.logger),
		fallback.WithMetrics(r.metrics))
	if err != nil {
		return geo.Point{}, fmt.Errorf("%w: %q: %w", ErrUnavailable, name, err)
	}

	r.logger.Debug("Resolved place", "place", name, "source", source, "lat", pt.Lat, "lon", pt.Lon)
	return pt, nil
}

// PrimaryName returns the first comma-separated token of place, trimmed.
func PrimaryName(place string) string {
	name, _, _ := strings.Cut(place, ",")
	return strings.TrimSpace(name)
}
