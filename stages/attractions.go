package stages

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/trip"
)

// AttractionsStage geocodes the city once, searches around it and keeps
// the places matching the traveller's interests, at most Settings.MaxStops
// of them. The kept list is exactly what the route stage orders.
type AttractionsStage struct {
	deps Deps
}

func (s *AttractionsStage) Name() string { return NameAttractions }

func (s *AttractionsStage) Run(ctx context.Context, st trip.State) (trip.Delta, error) {
	if st.Plan == nil || st.City == "" {
		return trip.Delta{}, errors.New("missing plan outline or city")
	}

	center, err := s.deps.Geocoder.Resolve(ctx, st.City)
	if err != nil {
		return trip.Delta{}, err
	}

	set := s.deps.Settings
	places, err := s.deps.Places.Search(ctx, center, set.Radius, set.Limit)
	if err != nil {
		return trip.Delta{}, fmt.Errorf("search around %s: %w", center, err)
	}

	selected := poi.FilterByInterests(places, st.Interests, set.TopN)
	if selected == nil {
		selected = []poi.Place{}
	}
	if n := set.MaxStops; n > 0 && len(selected) > n {
		selected = selected[:n]
	}
	s.deps.logger().Debug("Attractions selected",
		"city", st.City,
		"source", center.Source,
		"found", len(places),
		"selected", len(selected))

	return trip.Delta{Center: &center, Attractions: selected}, nil
}

func (s *AttractionsStage) Detail(d trip.Delta) string {
	return fmt.Sprintf("%d attractions near %s via %s", len(d.Attractions), d.Center, d.Center.Source)
}
