package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/route"
	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
)

type fakeGenerator struct {
	text    string
	err     error
	prompts []string
	models  []string
}

func (g *fakeGenerator) Invoke(_ context.Context, prompt, modelID string, _ int) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.models = append(g.models, modelID)
	return g.text, g.err
}

func (g *fakeGenerator) ModelFor(c model.Capability) string {
	return "model-" + string(c)
}

type fakeGeocoder struct {
	point geo.Point
	err   error
	calls int
}

func (f *fakeGeocoder) Resolve(context.Context, string) (geo.Point, error) {
	f.calls++
	return f.point, f.err
}

type fakeSearcher struct {
	places []poi.Place
}

func (f *fakeSearcher) Search(context.Context, geo.Point, int, int) ([]poi.Place, error) {
	return f.places, nil
}

type fakeForecaster struct {
	lat, lon float64
	days     int
}

func (f *fakeForecaster) Forecast(_ context.Context, lat, lon float64, days int) (*weather.Forecast, error) {
	f.lat, f.lon, f.days = lat, lon, days
	return &weather.Forecast{Dates: []string{"2026-05-01"}, MaxTemp: []float64{20}, MinTemp: []float64{11}, Codes: []int{61}}, nil
}

type fakeRouter struct {
	got []geo.Point
}

func (f *fakeRouter) Order(_ context.Context, points []geo.Point) (*route.Plan, error) {
	f.got = points
	idx := make([]int, len(points))
	for i := range idx {
		idx[i] = i
	}
	return &route.Plan{Ordered: points, OrderIndices: idx}, nil
}

func parisState() trip.State {
	return trip.State{ID: "t1", City: "Paris", Days: 2, Interests: []string{"museums", "food"}, Budget: "low"}
}

func sampleOutline() *trip.PlanOutline {
	return &trip.PlanOutline{
		TripOverview: "Art and food",
		Days: []trip.DayPlan{
			{Day: 1, Theme: "Museums", Activities: []string{"Louvre", "Orsay"}},
			{Day: 2, Theme: "Food", Activities: []string{"Market tour"}, Description: "Eat well."},
		},
	}
}

func TestParseOutline(t *testing.T) {
	plan, err := ParseOutline("Here you go:\n```json\n{\"trip_overview\":\"x\",\"days\":[{\"theme\":\"a\",\"activities\":[\"b\"]},]}\n```")
	require.NoError(t, err)
	require.Len(t, plan.Days, 1)
	assert.Equal(t, 1, plan.Days[0].Day, "missing day numbers are filled in order")

	_, err = ParseOutline("I cannot help with that.")
	assert.ErrorIs(t, err, ErrMalformedPlan)

	_, err = ParseOutline(`{"trip_overview":"x","days":[]}`)
	assert.ErrorIs(t, err, ErrMalformedPlan)
}

func TestPlanStage(t *testing.T) {
	gen := &fakeGenerator{text: `{"trip_overview":"Art","days":[{"day":1,"theme":"Louvre","activities":["a","b"],"description":"d"}]}`}
	stage := &PlanStage{deps: Deps{Generator: gen, Settings: DefaultSettings()}}

	d, err := stage.Run(context.Background(), parisState())
	require.NoError(t, err)
	require.NotNil(t, d.Plan)
	assert.Equal(t, "Art", d.Plan.TripOverview)
	assert.Equal(t, "1 days outlined", stage.Detail(d))

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "City: Paris")
	assert.Contains(t, gen.prompts[0], "Duration (days): 2")
	assert.Contains(t, gen.prompts[0], "Interests: museums,food")
	assert.Contains(t, gen.prompts[0], "Budget level: low")
	assert.Equal(t, []string{"model-planning"}, gen.models)
}

func TestPlanStageMissingInputs(t *testing.T) {
	gen := &fakeGenerator{}
	stage := &PlanStage{deps: Deps{Generator: gen}}

	st := parisState()
	st.Interests = nil
	_, err := stage.Run(context.Background(), st)
	assert.ErrorIs(t, err, trip.ErrInputInvalid)
	assert.Empty(t, gen.prompts)
}

func TestPlanStageGenerationFailure(t *testing.T) {
	cause := errors.New("backend down")
	stage := &PlanStage{deps: Deps{Generator: &fakeGenerator{err: cause}}}
	_, err := stage.Run(context.Background(), parisState())
	assert.ErrorIs(t, err, cause)
}

func TestAttractionsStage(t *testing.T) {
	places := []poi.Place{
		{ID: "a", Name: "Louvre", Kinds: []string{"museums", "cultural"}, Lat: 48.86, Lon: 2.33},
		{ID: "b", Name: "Park", Kinds: []string{"natural"}, Lat: 48.85, Lon: 2.34},
	}
	gc := &fakeGeocoder{point: geo.Point{Lat: 48.85, Lon: 2.35, Source: "nominatim"}}
	stage := &AttractionsStage{deps: Deps{Geocoder: gc, Places: &fakeSearcher{places: places}, Settings: DefaultSettings()}}

	st := parisState()
	st.Plan = sampleOutline()
	d, err := stage.Run(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, d.Center)
	assert.Equal(t, "nominatim", d.Center.Source)
	require.Len(t, d.Attractions, 1)
	assert.Equal(t, "Louvre", d.Attractions[0].Name)
	assert.Contains(t, stage.Detail(d), "1 attractions")
}

func TestAttractionsStageNoResults(t *testing.T) {
	stage := &AttractionsStage{deps: Deps{
		Geocoder: &fakeGeocoder{point: geo.Point{Lat: 1, Lon: 1}},
		Places:   &fakeSearcher{places: []poi.Place{}},
	}}
	st := parisState()
	st.Plan = sampleOutline()

	d, err := stage.Run(context.Background(), st)
	require.NoError(t, err)
	assert.NotNil(t, d.Attractions, "an empty result is still recorded")
	assert.Empty(t, d.Attractions)
}

func TestAttractionsStageRequiresPlan(t *testing.T) {
	gc := &fakeGeocoder{}
	stage := &AttractionsStage{deps: Deps{Geocoder: gc}}
	_, err := stage.Run(context.Background(), parisState())
	require.Error(t, err)
	assert.Zero(t, gc.calls)
}

func TestWeatherStageReusesCenter(t *testing.T) {
	gc := &fakeGeocoder{}
	fc := &fakeForecaster{}
	stage := &WeatherStage{deps: Deps{Geocoder: gc, Forecasts: fc}}

	st := parisState()
	st.Days = 30
	st.Center = &geo.Point{Lat: 48.85, Lon: 2.35}
	d, err := stage.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Weather.Len())
	assert.Zero(t, gc.calls)
	assert.Equal(t, 48.85, fc.lat)
	assert.Equal(t, weather.MaxDays, fc.days, "days clamped to the forecast horizon")
}

func TestWeatherStageGeocodesWithoutCenter(t *testing.T) {
	gc := &fakeGeocoder{point: geo.Point{Lat: 10, Lon: 20}}
	fc := &fakeForecaster{}
	stage := &WeatherStage{deps: Deps{Geocoder: gc, Forecasts: fc}}

	_, err := stage.Run(context.Background(), parisState())
	require.NoError(t, err)
	assert.Equal(t, 1, gc.calls)
	assert.Equal(t, 20.0, fc.lon)
}

func TestAttractionsStageCapsStops(t *testing.T) {
	var places []poi.Place
	for i := range 5 {
		places = append(places, poi.Place{ID: string(rune('a' + i)), Kinds: []string{"museums"}, Lat: float64(i), Lon: float64(i)})
	}
	set := DefaultSettings()
	set.MaxStops = 3
	stage := &AttractionsStage{deps: Deps{
		Geocoder: &fakeGeocoder{point: geo.Point{Lat: 1, Lon: 1}},
		Places:   &fakeSearcher{places: places},
		Settings: set,
	}}

	st := parisState()
	st.Plan = sampleOutline()
	d, err := stage.Run(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, d.Attractions, 3)
	assert.Equal(t, "a", d.Attractions[0].ID)
}

func TestRouteStageRoutesEveryAttraction(t *testing.T) {
	var places []poi.Place
	for i := range 30 {
		places = append(places, poi.Place{ID: fmt.Sprint(i), Lat: float64(i) / 10, Lon: float64(i) / 10})
	}
	router := &fakeRouter{}
	set := DefaultSettings()
	set.MaxStops = 3
	stage := &RouteStage{deps: Deps{Router: router, Settings: set}}

	st := parisState()
	st.Attractions = places
	d, err := stage.Run(context.Background(), st)
	require.NoError(t, err)
	assert.Len(t, router.got, 30)
	assert.Len(t, d.Route.OrderIndices, 30)
}

func TestEnsureDayHeadings(t *testing.T) {
	plan := sampleOutline()
	rendered := RenderOutline(plan)
	assert.Equal(t, "Day 1: Museums\n- Louvre\n- Orsay\n\nDay 2: Food\n- Market tour\nEat well.", rendered)

	tests := []struct {
		name string
		text string
		want string
	}{
		{"keeps headed text", "Day 1: Art\n- Louvre", "Day 1: Art\n- Louvre"},
		{"markdown heading", "## Day 1\nMorning walk", "## Day 1\nMorning walk"},
		{"appends outline", "Enjoy Paris!", "Enjoy Paris!\n\n" + rendered},
		{"blank uses outline", "  \n", rendered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EnsureDayHeadings(tt.text, plan))
		})
	}
}

func TestNarrativeStage(t *testing.T) {
	gen := &fakeGenerator{text: "A lovely trip."}
	stage := &NarrativeStage{deps: Deps{Generator: gen}}

	st := parisState()
	st.Plan = sampleOutline()
	st.Attractions = []poi.Place{{Name: "Louvre"}, {Name: "Orsay"}}
	st.Route = &route.Plan{OrderIndices: []int{1, 0}}
	st.Weather = &weather.Forecast{Dates: []string{"2026-05-01"}, MaxTemp: []float64{20}, MinTemp: []float64{11}, Codes: []int{61}}

	d, err := stage.Run(context.Background(), st)
	require.NoError(t, err)
	require.NotNil(t, d.ItineraryText)
	assert.True(t, strings.HasPrefix(*d.ItineraryText, "A lovely trip.\n\nDay 1: Museums"))

	prompt := gen.prompts[0]
	assert.Contains(t, prompt, `"trip_overview": "Art and food"`)
	assert.Contains(t, prompt, "1. Orsay\n2. Louvre")
	assert.Contains(t, prompt, "2026-05-01: "+weather.Describe(61))
	assert.Equal(t, []string{"model-writing"}, gen.models)
}

func TestDefaultOrder(t *testing.T) {
	var names []string
	for _, s := range Default(Deps{}) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{NamePlan, NameAttractions, NameWeather, NameRoute, NameNarrative}, names)
}
