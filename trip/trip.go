// Package trip defines the record threaded through the planning pipeline.
//
// State is a value. Stages never modify it in place; they return a Delta
// and the orchestrator merges it with Apply, which copies every slice it
// writes.
package trip

import (
	"slices"

	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/route"
	"github.com/c360studio/semtrip/weather"
)

// Status values set by the orchestrator besides stage names.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// DayPlan is one day of the outline.
type DayPlan struct {
	Day         int      `json:"day"`
	Theme       string   `json:"theme"`
	Activities  []string `json:"activities"`
	Description string   `json:"description"`
}

// PlanOutline is the structured plan produced by the plan stage.
type PlanOutline struct {
	TripOverview string    `json:"trip_overview"`
	Days         []DayPlan `json:"days"`
}

func (p *PlanOutline) clone() *PlanOutline {
	if p == nil {
		return nil
	}
	cp := &PlanOutline{TripOverview: p.TripOverview, Days: make([]DayPlan, len(p.Days))}
	for i, d := range p.Days {
		d.Activities = slices.Clone(d.Activities)
		cp.Days[i] = d
	}
	return cp
}

// State is the full trip record.
type State struct {
	ID        string   `json:"id"`
	City      string   `json:"city"`
	Days      int      `json:"days"`
	Interests []string `json:"interests"`
	Budget    string   `json:"budget"`

	Plan          *PlanOutline      `json:"plan,omitempty"`
	Center        *geo.Point        `json:"center,omitempty"`
	Attractions   []poi.Place       `json:"attractions,omitempty"`
	Weather       *weather.Forecast `json:"weather,omitempty"`
	Route         *route.Plan       `json:"route,omitempty"`
	ItineraryText string            `json:"itinerary_text,omitempty"`

	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	FailedStage string `json:"failed_stage,omitempty"`
}

// Delta carries the fields one stage produced. Nil fields are left
// untouched by Apply.
type Delta struct {
	Plan          *PlanOutline
	Center        *geo.Point
	Attractions   []poi.Place
	Weather       *weather.Forecast
	Route         *route.Plan
	ItineraryText *string
}

// IsEmpty reports whether the delta sets nothing.
func (d Delta) IsEmpty() bool {
	return d.Plan == nil && d.Center == nil && d.Attractions == nil &&
		d.Weather == nil && d.Route == nil && d.ItineraryText == nil
}

// Apply returns a copy of s with the fields present in d overwritten.
// s itself is not modified and the result shares no slices with d.
func (s State) Apply(d Delta) State {
	next := s
	next.Interests = slices.Clone(s.Interests)

	if d.Plan != nil {
		next.Plan = d.Plan.clone()
	}
	if d.Center != nil {
		c := *d.Center
		next.Center = &c
	}
	if d.Attractions != nil {
		next.Attractions = slices.Clone(d.Attractions)
	}
	if d.Weather != nil {
		next.Weather = &weather.Forecast{
			Dates:   slices.Clone(d.Weather.Dates),
			MaxTemp: slices.Clone(d.Weather.MaxTemp),
			MinTemp: slices.Clone(d.Weather.MinTemp),
			Codes:   slices.Clone(d.Weather.Codes),
		}
	}
	if d.Route != nil {
		next.Route = &route.Plan{
			Ordered:      slices.Clone(d.Route.Ordered),
			OrderIndices: slices.Clone(d.Route.OrderIndices),
			Distance:     d.Route.Distance,
		}
	}
	if d.ItineraryText != nil {
		next.ItineraryText = *d.ItineraryText
	}
	return next
}

// Failed reports whether the run aborted.
func (s State) Failed() bool {
	return s.Error != ""
}
