// Package fallback runs an ordered list of acquisition strategies and
// returns the first usable result.
//
// Strategies run sequentially. A strategy that errors or yields an empty
// value is logged and the next one is tried; tier N+1 never starts before
// tier N has finished.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/semtrip/metrics"
)

// ErrExhausted is returned when every strategy failed or came back empty.
var ErrExhausted = errors.New("all strategies exhausted")

// Strategy is one named attempt in a chain.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Option configures a call to First.
type Option func(*settings)

type settings struct {
	chain   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// WithChainName labels log lines and metrics for the chain.
func WithChainName(name string) Option {
	return func(s *settings) {
		s.chain = name
	}
}

// WithLogger sets the logger used for failed attempts.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics records per-tier outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

// First runs strategies in order and returns the first value for which
// empty reports false, together with the winning strategy name. A nil
// empty treats every successful value as usable.
//
// When nothing succeeds the error wraps ErrExhausted and joins the
// individual strategy errors. A cancelled context stops the chain.
func First[T any](ctx context.Context, strategies []Strategy[T], empty func(T) bool, opts ...Option) (T, string, error) {
	s := settings{chain: "fallback", logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	var (
		zero T
		errs []error
	)
	for i, st := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", fmt.Errorf("%s: %w", s.chain, err)
		}

		v, err := st.Run(ctx)
		if err != nil {
			s.metrics.TierAttempt(s.chain, st.Name, metrics.OutcomeError)
			s.logger.Warn("Fallback tier failed",
				"chain", s.chain,
				"tier", st.Name,
				"position", i+1,
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", st.Name, err))
			continue
		}
		if empty != nil && empty(v) {
			s.metrics.TierAttempt(s.chain, st.Name, metrics.OutcomeEmpty)
			s.logger.Debug("Fallback tier returned nothing",
				"chain", s.chain,
				"tier", st.Name,
				"position", i+1)
			continue
		}

		s.metrics.TierAttempt(s.chain, st.Name, metrics.OutcomeHit)
		if i > 0 {
			s.logger.Info("Fallback tier succeeded",
				"chain", s.chain,
				"tier", st.Name,
				"position", i+1)
		}
		return v, st.Name, nil
	}

	return zero, "", fmt.Errorf("%s: %w", s.chain, errors.Join(append([]error{ErrExhausted}, errs...)...))
}

// EmptySlice reports whether a slice result has no elements.
func EmptySlice[E any](v []E) bool {
	return len(v) == 0
}
