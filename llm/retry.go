package llm

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how often a failed generation is retried. Only
// transient failures (network, 429, 5xx) are retried.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig makes a single attempt. The cache in front of the
// client absorbs repeated prompts; raise MaxAttempts in config to retry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       1,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        10 * time.Second,
	}
}

// delay is the wait after the given failed attempt (1-based): exponential
// growth capped at MaxBackoff, with +/- 25% jitter.
func (r RetryConfig) delay(attempt int) time.Duration {
	d := float64(r.BackoffBase) * math.Pow(r.BackoffMultiplier, float64(attempt-1))
	d = math.Min(d, float64(r.MaxBackoff))
	return time.Duration(d + d*0.25*(rand.Float64()*2-1))
}
