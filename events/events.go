// Package events publishes pipeline step notifications to NATS so other
// processes can follow a run as it progresses.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/trip"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "semtrip.runs"

// Event is the JSON payload of one step notification.
type Event struct {
	RunID      string    `json:"run_id"`
	City       string    `json:"city"`
	Stage      string    `json:"stage"`
	Status     string    `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
	TripStatus string    `json:"trip_status"`
	Timestamp  time.Time `json:"timestamp"`
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

var _ Conn = (*nats.Conn)(nil)

// Publisher is a pipeline.Observer that publishes every finished stage.
// Publish failures are logged and never fail the run.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

// NewPublisher creates a publisher over an existing connection.
func NewPublisher(conn Conn, prefix string, opts ...Option) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	p := &Publisher{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subject returns the subject for a run's stage: <prefix>.<run>.<stage>.
func (p *Publisher) Subject(runID, stage string) string {
	return p.prefix + "." + token(runID) + "." + token(stage)
}

// OnStep implements pipeline.Observer.
func (p *Publisher) OnStep(ctx context.Context, st trip.State, step pipeline.StepResult) {
	if err := ctx.Err(); err != nil {
		p.logger.Debug("Skipping step event", "stage", step.Name, "error", err)
		return
	}

	ev := Event{
		RunID:      st.ID,
		City:       st.City,
		Stage:      step.Name,
		Status:     step.Status,
		DurationMS: step.Duration.Milliseconds(),
		Detail:     step.Detail,
		TripStatus: st.Status,
		Timestamp:  p.now().UTC(),
	}
	if step.Status == pipeline.StepError {
		ev.Error = st.Error
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to encode step event", "stage", step.Name, "error", err)
		return
	}
	subject := p.Subject(st.ID, step.Name)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish step event", "subject", subject, "error", err)
	}
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
