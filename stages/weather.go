package stages

import (
	"context"
	"fmt"

	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
)

// WeatherStage fetches the daily forecast at the resolved city center.
type WeatherStage struct {
	deps Deps
}

func (s *WeatherStage) Name() string { return NameWeather }

func (s *WeatherStage) Run(ctx context.Context, st trip.State) (trip.Delta, error) {
	center := st.Center
	if center == nil {
		if st.City == "" {
			return trip.Delta{}, fmt.Errorf("no city provided")
		}
		pt, err := s.deps.Geocoder.Resolve(ctx, st.City)
		if err != nil {
			return trip.Delta{}, err
		}
		center = &pt
	}

	f, err := s.deps.Forecasts.Forecast(ctx, center.Lat, center.Lon, weather.ClampDays(st.Days))
	if err != nil {
		return trip.Delta{}, err
	}
	return trip.Delta{Weather: f}, nil
}

func (s *WeatherStage) Detail(d trip.Delta) string {
	return fmt.Sprintf("%d forecast days", d.Weather.Len())
}
