// Package pipeline runs an ordered list of stages over a trip.State.
//
// Stages run one after another. Each returns a Delta that is merged into
// the state; the first error stops the run, records the failing stage in
// the state and is returned as an *AbortedError. Stages are never
// retried by the orchestrator.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semtrip/metrics"
	"github.com/c360studio/semtrip/trip"
)

// Step statuses.
const (
	StepOK    = "ok"
	StepError = "error"
)

// Stage is one step of the pipeline. Run reads the fields earlier stages
// produced and returns only the fields it writes. A Delta returned
// together with an error is discarded.
type Stage interface {
	Name() string
	Run(ctx context.Context, st trip.State) (trip.Delta, error)
}

// Detailer is implemented by stages that can summarize their output for
// observers.
type Detailer interface {
	Detail(d trip.Delta) string
}

// StepResult describes one finished stage.
type StepResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Detail   string        `json:"detail,omitempty"`
}

// Observer is notified after every stage.
type Observer interface {
	OnStep(ctx context.Context, st trip.State, step StepResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, st trip.State, step StepResult)

func (f ObserverFunc) OnStep(ctx context.Context, st trip.State, step StepResult) {
	f(ctx, st, step)
}

// AbortedError reports the stage that stopped a run.
type AbortedError struct {
	Stage string
	Err   error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("pipeline aborted at %s: %v", e.Stage, e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}

// Pipeline is an immutable, reusable stage sequence. It is safe to call
// Run concurrently; each call owns its state.
type Pipeline struct {
	stages    []Stage
	observers []Observer
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithObserver adds an observer. Observers are called in the order added.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		p.observers = append(p.observers, o)
	}
}

// WithMetrics records stage durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New creates a pipeline running stages in the given order.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: append([]Stage(nil), stages...),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StageNames returns the stage names in run order.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage and returns the final state. On failure the
// returned state still carries the fields produced before the failing
// stage.
func (p *Pipeline) Run(ctx context.Context, st trip.State) (trip.State, error) {
	final, _, err := p.RunSteps(ctx, st)
	return final, err
}

// RunSteps is Run that also returns the per-stage results.
func (p *Pipeline) RunSteps(ctx context.Context, st trip.State) (trip.State, []StepResult, error) {
	logger := p.logger.With("trip_id", st.ID, "city", st.City)
	steps := make([]StepResult, 0, len(p.stages))
	started := time.Now()

	for _, stage := range p.stages {
		name := stage.Name()
		stageStart := time.Now()

		delta, err := runStage(ctx, stage, st)
		step := StepResult{Name: name, Duration: time.Since(stageStart)}

		if err != nil {
			st.Status = trip.StatusError
			st.Error = fmt.Sprintf("%s: %v", name, err)
			st.FailedStage = name

			step.Status = StepError
			step.Detail = err.Error()
			p.record(ctx, st, step)
			steps = append(steps, step)

			logger.Error("Stage failed", "stage", name, "duration", step.Duration, "error", err)
			return st, steps, &AbortedError{Stage: name, Err: err}
		}

		st = st.Apply(delta)
		st.Status = name

		step.Status = StepOK
		if d, ok := stage.(Detailer); ok {
			step.Detail = d.Detail(delta)
		}
		p.record(ctx, st, step)
		steps = append(steps, step)

		logger.Debug("Stage completed", "stage", name, "duration", step.Duration, "detail", step.Detail)
	}

	st.Status = trip.StatusCompleted
	st.Error = ""
	logger.Info("Trip planned", "stages", len(p.stages), "duration", time.Since(started))
	return st, steps, nil
}

func (p *Pipeline) record(ctx context.Context, st trip.State, step StepResult) {
	p.metrics.ObserveStage(step.Name, step.Status, step.Duration)
	for _, o := range p.observers {
		o.OnStep(ctx, st, step)
	}
}

// runStage turns a stage panic into an error so one bad stage cannot take
// down a server handling other runs.
func runStage(ctx context.Context, stage Stage, st trip.State) (d trip.Delta, err error) {
	defer func() {
		if r := recover(); r != nil {
			d = trip.Delta{}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(ctx, st)
}
