package stages

import (
	"context"
	"fmt"

	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/trip"
)

// RouteStage orders every selected attraction into a visiting sequence.
type RouteStage struct {
	deps Deps
}

func (s *RouteStage) Name() string { return NameRoute }

func (s *RouteStage) Run(ctx context.Context, st trip.State) (trip.Delta, error) {
	points := make([]geo.Point, len(st.Attractions))
	for i, p := range st.Attractions {
		points[i] = p.Point()
	}

	plan, err := s.deps.Router.Order(ctx, points)
	if err != nil {
		return trip.Delta{}, err
	}
	return trip.Delta{Route: plan}, nil
}

func (s *RouteStage) Detail(d trip.Delta) string {
	return fmt.Sprintf("%d stops, %.1f km", len(d.Route.OrderIndices), d.Route.Distance/1000)
}
