package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360studio/semtrip/cache"
	"github.com/c360studio/semtrip/cache/httpcache"
	"github.com/c360studio/semtrip/config"
	"github.com/c360studio/semtrip/events"
	"github.com/c360studio/semtrip/fetch"
	"github.com/c360studio/semtrip/geocode"
	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/metrics"
	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/route"
	"github.com/c360studio/semtrip/stages"
	"github.com/c360studio/semtrip/storage"
	"github.com/c360studio/semtrip/weather"

	// Register LLM providers via init()
	_ "github.com/c360studio/semtrip/llm/providers"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *prometheus.Registry
	metrics  *metrics.Metrics

	httpStore httpcache.Store
	nc        *nats.Conn
	store     storage.Store
	pipeline  *pipeline.Pipeline
}

// NewApp builds every component from cfg. Extra observers are notified
// after each stage, after the event publisher.
func NewApp(cfg *config.Config, logger *slog.Logger, observers ...pipeline.Observer) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.New(a.registry)
	}

	httpClient, err := a.upstreamClient()
	if err != nil {
		return nil, err
	}

	deps, err := a.stageDeps(httpClient)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger), pipeline.WithMetrics(a.metrics)}
	if cfg.NATS.URL != "" {
		if err := a.startNATS(); err != nil {
			if cfg.Storage.Backend == config.BackendNATS {
				a.Close()
				return nil, err
			}
			// Step events are optional; planning works without them.
			logger.Warn("Stage events disabled", "url", cfg.NATS.URL, "error", err)
		} else {
			pub := events.NewPublisher(a.nc, cfg.NATS.SubjectPrefix, events.WithLogger(logger))
			opts = append(opts, pipeline.WithObserver(pub))
		}
	}
	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	for _, o := range observers {
		opts = append(opts, pipeline.WithObserver(o))
	}

	a.pipeline = pipeline.New(stages.Default(deps), opts...)
	return a, nil
}

func (a *App) startNATS() error {
	nc, err := nats.Connect(a.cfg.NATS.URL,
		nats.Name("semtrip"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				a.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			a.logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	a.nc = nc
	a.logger.Debug("Connected to NATS", "url", a.cfg.NATS.URL)
	return nil
}

// openStore selects where finished runs are kept.
func (a *App) openStore() error {
	sc := a.cfg.Storage
	if sc.Backend != config.BackendNATS {
		a.store = storage.NewMemoryStore(sc.Retention, sc.MaxEntries,
			cache.WithLogger(a.logger), cache.WithMetrics(a.metrics))
		return nil
	}

	if a.nc == nil {
		return fmt.Errorf("storage.backend %q requires nats.url", config.BackendNATS)
	}
	js, err := jetstream.New(a.nc)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.NewKVStore(ctx, js, sc.Bucket, sc.Retention)
	if err != nil {
		return err
	}
	a.store = store
	return nil
}

// upstreamClient returns the HTTP client shared by the upstream data
// services, fronted by the response cache when enabled.
func (a *App) upstreamClient() (*http.Client, error) {
	hc := a.cfg.HTTPCache
	if !hc.Enabled {
		return http.DefaultClient, nil
	}

	var store httpcache.Store
	switch hc.Backend {
	case config.BackendSQLite:
		s, err := httpcache.OpenSQLite(hc.Path)
		if err != nil {
			return nil, fmt.Errorf("open http cache: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		n, err := s.Prune(ctx, time.Now().Add(-hc.Expire))
		cancel()
		if err != nil {
			a.logger.Warn("Failed to prune http cache", "path", hc.Path, "error", err)
		} else if n > 0 {
			a.logger.Debug("Pruned http cache", "path", hc.Path, "removed", n)
		}
		store = s
	default:
		store = httpcache.NewMemoryStore(hc.Expire, hc.MaxEntries,
			cache.WithLogger(a.logger), cache.WithMetrics(a.metrics))
	}
	a.httpStore = store

	return httpcache.NewTransport(store,
		httpcache.WithExpire(hc.Expire),
		httpcache.WithLogger(a.logger),
		httpcache.WithMetrics(a.metrics),
	).Client(), nil
}

func (a *App) stageDeps(httpClient *http.Client) (stages.Deps, error) {
	cfg := a.cfg
	p := cfg.Providers

	client := func(service string, timeout time.Duration) *fetch.Client {
		return fetch.New(service,
			fetch.WithHTTPClient(httpClient),
			fetch.WithUserAgent(p.UserAgent),
			fetch.WithTimeout(timeout),
			fetch.WithMetrics(a.metrics))
	}
	otm := client("opentripmap", cfg.HTTP.Timeout)
	otmKey := p.OpenTripMapKey()

	geocoders := []geocode.Provider{
		geocode.NewNominatimProvider(client("nominatim", cfg.HTTP.Timeout), p.NominatimURL),
	}
	var directory poi.Directory
	if otmKey != "" {
		geocoders = append(geocoders, geocode.NewOpenTripMapProvider(otm, p.OpenTripMapURL+"/geoname", otmKey))
		directory = poi.NewOpenTripMap(otm, p.OpenTripMapURL+"/radius", otmKey)
	} else {
		a.logger.Warn("OpenTripMap disabled, no API key in environment", "env", p.OpenTripMapKeyEnv)
	}

	registry, err := model.NewRegistryFromConfig(cfg.Model.RegistryConfig)
	if err != nil {
		return stages.Deps{}, fmt.Errorf("model registry: %w", err)
	}
	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Model.MaxAttempts
	backend := llm.NewClient(registry,
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
		llm.WithRetryConfig(retry),
		llm.WithLogger(a.logger))
	generations := cache.New[string](cfg.Cache.TTL, cfg.Cache.MaxEntries,
		cache.WithName("generation"),
		cache.WithLogger(a.logger),
		cache.WithMetrics(a.metrics))

	return stages.Deps{
		Generator: llm.NewGenerator(backend, registry, generations, llm.WithGeneratorLogger(a.logger)),
		Geocoder: geocode.NewResolver(geocoders,
			geocode.WithLogger(a.logger), geocode.WithMetrics(a.metrics)),
		Places: poi.NewSearcher(directory,
			poi.NewOverpass(client("overpass", cfg.HTTP.OverpassTimeout), p.OverpassURL),
			poi.WithLogger(a.logger), poi.WithMetrics(a.metrics)),
		Forecasts: weather.NewClient(client("open-meteo", cfg.HTTP.Timeout), p.OpenMeteoURL),
		Router:    route.NewPlanner(client("osrm", cfg.HTTP.Timeout), p.OSRMURL),
		Settings: stages.Settings{
			MaxTokens: cfg.Model.MaxTokens,
			Radius:    cfg.Search.Radius,
			Limit:     cfg.Search.Limit,
			TopN:      cfg.Search.TopN,
			MaxStops:  cfg.Route.MaxStops,
		},
		Logger: a.logger,
	}, nil
}

// Pipeline returns the configured stage pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Store returns where finished runs are kept.
func (a *App) Store() storage.Store {
	return a.store
}

// Gatherer returns the metrics registry, or nil when metrics are off.
func (a *App) Gatherer() prometheus.Gatherer {
	if a.registry == nil {
		return nil
	}
	return a.registry
}

// Close drains the NATS connection and closes the response cache.
func (a *App) Close() error {
	var errs []error
	if a.nc != nil {
		errs = append(errs, a.nc.Drain())
	}
	if a.httpStore != nil {
		errs = append(errs, a.httpStore.Close())
	}
	return errors.Join(errs...)
}
