// Package api exposes the trip pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/storage"
	"github.com/c360studio/semtrip/trip"
)

// Defaults applied when options leave them unset.
const (
	DefaultRequestTimeout = 2 * time.Minute
	DefaultMaxConcurrent  = 4
	shutdownTimeout       = 10 * time.Second
	saveTimeout           = 5 * time.Second
)

// Runner executes one trip. *pipeline.Pipeline implements it.
type Runner interface {
	RunSteps(ctx context.Context, st trip.State) (trip.State, []pipeline.StepResult, error)
}

// TripResult is the data of a trip response.
type TripResult struct {
	State trip.State            `json:"state"`
	Steps []pipeline.StepResult `json:"steps"`
	Error *ErrorInfo            `json:"error,omitempty"`
}

// ErrorInfo describes why a run failed.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// Server serves the trip API. Concurrent pipeline runs are bounded by a
// weighted semaphore.
type Server struct {
	runner         Runner
	logger         *slog.Logger
	gatherer       prometheus.Gatherer
	store          storage.Store
	requestTimeout time.Duration
	maxConcurrent  int64
	sem            *semaphore.Weighted
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRequestTimeout bounds each pipeline run, including the wait for a
// free slot.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.requestTimeout = d
		}
	}
}

// WithMaxConcurrent sets how many runs may execute at once.
func WithMaxConcurrent(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

// WithGatherer exposes g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStore keeps every finished run in store and serves them on
// GET /api/v1/trips.
func WithStore(store storage.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// NewServer creates a server running trips through runner.
func NewServer(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:         runner,
		logger:         slog.Default(),
		requestTimeout: DefaultRequestTimeout,
		maxConcurrent:  DefaultMaxConcurrent,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(s.maxConcurrent)
	return s
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/health", s.health)
	if s.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/trips", s.createTrip)
		if s.store != nil {
			v1.GET("/trips", s.listTrips)
			v1.GET("/trips/:id", s.getTrip)
		}
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("API shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "semtrip API is running",
	})
}

func (s *Server) createTrip(c *gin.Context) {
	var req trip.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", TripResult{
			Error: &ErrorInfo{Kind: KindInputInvalid, Message: err.Error()},
		})
		return
	}

	st, err := trip.NewState(req)
	if err != nil {
		kind, status := Classify(c.Request.Context(), err)
		Error(c, status, err.Error(), TripResult{Error: &ErrorInfo{Kind: kind, Message: err.Error()}})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.logger.Warn("No free pipeline slot", "trip_id", st.ID, "error", err)
		Error(c, http.StatusServiceUnavailable, "server busy, try again later", TripResult{
			Error: &ErrorInfo{Kind: KindBusy, Message: err.Error()},
		})
		return
	}
	defer s.sem.Release(1)

	final, steps, err := s.runner.RunSteps(ctx, st)
	s.save(c.Request.Context(), final, steps)
	if err != nil {
		kind, status := Classify(ctx, err)
		info := &ErrorInfo{Kind: kind, Message: err.Error()}
		var aborted *pipeline.AbortedError
		if errors.As(err, &aborted) {
			info.Stage = aborted.Stage
		}
		Error(c, status, err.Error(), TripResult{State: final, Steps: steps, Error: info})
		return
	}
	Success(c, TripResult{State: final, Steps: steps})
}

// save stores a finished run. The request context may already be done,
// so the write gets its own deadline.
func (s *Server) save(ctx context.Context, st trip.State, steps []pipeline.StepResult) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := s.store.Put(ctx, &storage.Record{State: st, Steps: steps}); err != nil {
		s.logger.Warn("Failed to store trip run", "trip_id", st.ID, "error", err)
	}
}

func (s *Server) getTrip(c *gin.Context) {
	rec, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		Error(c, http.StatusNotFound, err.Error(), TripResult{
			Error: &ErrorInfo{Kind: KindNotFound, Message: err.Error()},
		})
		return
	}
	if err != nil {
		s.logger.Error("Failed to load trip run", "trip_id", c.Param("id"), "error", err)
		Error(c, http.StatusInternalServerError, "failed to load trip run", nil)
		return
	}
	Success(c, TripResult{State: rec.State, Steps: rec.Steps})
}

// TripSummary is one entry of the run listing.
type TripSummary struct {
	ID        string    `json:"id"`
	City      string    `json:"city"`
	Days      int       `json:"days"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) listTrips(c *gin.Context) {
	records, err := s.store.List(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to list trip runs", "error", err)
		Error(c, http.StatusInternalServerError, "failed to list trip runs", nil)
		return
	}
	out := make([]TripSummary, 0, len(records))
	for _, r := range records {
		out = append(out, TripSummary{
			ID:        r.State.ID,
			City:      r.State.City,
			Days:      r.State.Days,
			Status:    r.State.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	Success(c, out)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP())
	}
}
