// Package stages implements the concrete pipeline stages: plan,
// attractions, weather, route and narrative, in that order.
package stages

import (
	"context"
	"log/slog"

	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/route"
	"github.com/c360studio/semtrip/weather"
)

// Stage names, also used as trip.State.Status values.
const (
	NamePlan        = "plan"
	NameAttractions = "attractions"
	NameWeather     = "weather"
	NameRoute       = "route"
	NameNarrative   = "narrative"
)

// Generator produces text for a prompt. *llm.Generator implements it.
type Generator interface {
	Invoke(ctx context.Context, prompt, modelID string, maxTokens int) (string, error)
	ModelFor(c model.Capability) string
}

// Geocoder resolves a place name. *geocode.Resolver implements it.
type Geocoder interface {
	Resolve(ctx context.Context, place string) (geo.Point, error)
}

// PlaceSearcher finds attractions. *poi.Searcher implements it.
type PlaceSearcher interface {
	Search(ctx context.Context, center geo.Point, radius, limit int) ([]poi.Place, error)
}

// Forecaster fetches daily weather. *weather.Client implements it.
type Forecaster interface {
	Forecast(ctx context.Context, lat, lon float64, days int) (*weather.Forecast, error)
}

// Router orders stops. *route.Planner implements it.
type Router interface {
	Order(ctx context.Context, points []geo.Point) (*route.Plan, error)
}

// Settings tunes the stages.
type Settings struct {
	// MaxTokens is the completion budget of each generation call.
	MaxTokens int
	// Radius and Limit bound the attraction search.
	Radius int
	Limit  int
	// TopN is how many unfiltered attractions are kept when no attraction
	// matches the interests.
	TopN int
	// MaxStops caps how many attractions a run keeps; all kept ones are routed.
	MaxStops int
}

// DefaultSettings returns the standard tuning.
func DefaultSettings() Settings {
	return Settings{
		MaxTokens: 512,
		Radius:    poi.DefaultRadius,
		Limit:     poi.DefaultLimit,
		TopN:      poi.DefaultTopN,
		MaxStops:  25,
	}
}

// Deps are the collaborators shared by the stages.
type Deps struct {
	Generator Generator
	Geocoder  Geocoder
	Places    PlaceSearcher
	Forecasts Forecaster
	Router    Router
	Settings  Settings
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Default returns the stages in run order.
func Default(d Deps) []pipeline.Stage {
	return []pipeline.Stage{
		&PlanStage{deps: d},
		&AttractionsStage{deps: d},
		&WeatherStage{deps: d},
		&RouteStage{deps: d},
		&NarrativeStage{deps: d},
	}
}
