package stages_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/cache"
	"github.com/c360studio/semtrip/fetch"
	"github.com/c360studio/semtrip/geocode"
	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/llm/testutil"
	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/pipeline"
	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/route"
	"github.com/c360studio/semtrip/stages"
	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
)

const outlineJSON = `{"trip_overview":"Two days of art","days":[
{"day":1,"theme":"Louvre","activities":["Louvre","Tuileries"],"description":"Classics."},
{"day":2,"theme":"Orsay","activities":["Musee d'Orsay"],"description":"Impressionists."}]}`

// world fakes every upstream service on one server.
type world struct {
	srv *httptest.Server

	nominatimSlow bool
	tableFails    bool
	otmPlaces     string
	overpass      string

	nominatim atomic.Int32
	geoname   atomic.Int32
	radius    atomic.Int32
	overpassN atomic.Int32
	forecast  atomic.Int32
	table     atomic.Int32
}

func newWorld(t *testing.T, configure ...func(*world)) *world {
	t.Helper()
	w := &world{
		otmPlaces: `[
{"xid":"L1","name":"Louvre","kinds":"museums,cultural","dist":900,"point":{"lat":48.8606,"lon":2.3376}},
{"xid":"O1","name":"Musee d'Orsay","kinds":"museums,architecture","point":{"lat":48.86,"lon":2.3266}},
{"xid":"N1","name":"Notre-Dame","kinds":"religion,cathedrals","point":{"lat":48.853,"lon":2.3499}}]`,
		overpass: `{"elements":[]}`,
	}
	for _, fn := range configure {
		fn(w)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(rw http.ResponseWriter, r *http.Request) {
		w.nominatim.Add(1)
		if w.nominatimSlow {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = rw.Write([]byte(`[{"lat":"48.8566","lon":"2.3522"}]`))
	})
	mux.HandleFunc("/geoname", func(rw http.ResponseWriter, r *http.Request) {
		w.geoname.Add(1)
		_, _ = rw.Write([]byte(`{"status":"OK","lat":48.85341,"lon":2.3488}`))
	})
	mux.HandleFunc("/radius", func(rw http.ResponseWriter, r *http.Request) {
		w.radius.Add(1)
		_, _ = rw.Write([]byte(w.otmPlaces))
	})
	mux.HandleFunc("/interpreter", func(rw http.ResponseWriter, r *http.Request) {
		w.overpassN.Add(1)
		_, _ = rw.Write([]byte(w.overpass))
	})
	mux.HandleFunc("/forecast", func(rw http.ResponseWriter, r *http.Request) {
		w.forecast.Add(1)
		_, _ = rw.Write([]byte(`{"daily":{"time":["2026-05-01","2026-05-02"],
"weathercode":[0,61],"temperature_2m_max":[21.5,18],"temperature_2m_min":[12,null]}}`))
	})
	mux.HandleFunc("/table/v1/driving/", func(rw http.ResponseWriter, r *http.Request) {
		w.table.Add(1)
		if w.tableFails {
			http.Error(rw, "boom", http.StatusInternalServerError)
			return
		}
		n := len(strings.Split(strings.TrimPrefix(r.URL.Path, "/table/v1/driving/"), ";"))
		durations := make([][]float64, n)
		distances := make([][]float64, n)
		for i := range n {
			durations[i] = make([]float64, n)
			distances[i] = make([]float64, n)
			for j := range n {
				if i != j {
					durations[i][j], distances[i][j] = 120, 1000
				}
			}
		}
		_ = json.NewEncoder(rw).Encode(map[string]any{"code": "Ok", "durations": durations, "distances": distances})
	})

	w.srv = httptest.NewServer(mux)
	t.Cleanup(w.srv.Close)
	return w
}

type harness struct {
	pipeline *pipeline.Pipeline
	mock     *testutil.MockLLMClient
}

func (w *world) harness(geocodeTimeout time.Duration, tune ...func(*stages.Settings)) *harness {
	mock := &testutil.MockLLMClient{
		Respond: func(req llm.Request) (*llm.Response, error) {
			if strings.Contains(testutil.UserPrompt(req), "Output ONLY valid JSON") {
				return &llm.Response{Content: "```json\n" + outlineJSON + "\n```"}, nil
			}
			return &llm.Response{Content: "Day 1: Louvre\n- Morning at the Louvre\nDay 2: Orsay\n- Afternoon at Orsay"}, nil
		},
	}
	gen := llm.NewGenerator(mock, model.NewDefaultRegistry(), cache.New[string](time.Hour, 16))

	fast := fetch.New("geocode", fetch.WithTimeout(geocodeTimeout))
	client := fetch.New("upstream")
	resolver := geocode.NewResolver([]geocode.Provider{
		geocode.NewNominatimProvider(fast, w.srv.URL+"/search"),
		geocode.NewOpenTripMapProvider(client, w.srv.URL+"/geoname", "key"),
	})
	searcher := poi.NewSearcher(
		poi.NewOpenTripMap(client, w.srv.URL+"/radius", "key"),
		poi.NewOverpass(client, w.srv.URL+"/interpreter"),
	)

	deps := stages.Deps{
		Generator: gen,
		Geocoder:  resolver,
		Places:    searcher,
		Forecasts: weather.NewClient(client, w.srv.URL+"/forecast"),
		Router:    route.NewPlanner(client, w.srv.URL),
		Settings:  stages.DefaultSettings(),
	}
	for _, fn := range tune {
		fn(&deps.Settings)
	}
	return &harness{pipeline: pipeline.New(stages.Default(deps)), mock: mock}
}

func newParisState(t *testing.T) trip.State {
	t.Helper()
	st, err := trip.NewState(trip.Request{City: "Paris", Days: 2, Interests: []string{"museums"}})
	require.NoError(t, err)
	return st
}

func TestScenarioParis(t *testing.T) {
	w := newWorld(t)
	h := w.harness(5 * time.Second)

	final, steps, err := h.pipeline.RunSteps(context.Background(), newParisState(t))
	require.NoError(t, err)

	assert.Equal(t, trip.StatusCompleted, final.Status)
	require.Len(t, steps, 5)
	for _, s := range steps {
		assert.Equal(t, pipeline.StepOK, s.Status, s.Name)
	}

	require.NotNil(t, final.Plan)
	assert.Len(t, final.Plan.Days, 2)

	require.NotNil(t, final.Center)
	assert.Equal(t, geocode.SourceNominatim, final.Center.Source)
	assert.InDelta(t, 48.8566, final.Center.Lat, 1e-9)

	require.Len(t, final.Attractions, 2, "only museum kinds are kept")
	assert.Equal(t, "Louvre", final.Attractions[0].Name)
	assert.EqualValues(t, 1, w.radius.Load(), "rated tier answered")
	assert.Zero(t, w.overpassN.Load())

	require.NotNil(t, final.Weather)
	assert.Equal(t, 1, final.Weather.Len(), "series end at the first missing value")

	require.NotNil(t, final.Route)
	assert.ElementsMatch(t, []int{0, 1}, final.Route.OrderIndices)
	assert.Equal(t, 0, final.Route.OrderIndices[0])
	assert.Equal(t, 1000.0, final.Route.Distance)

	assert.Contains(t, final.ItineraryText, "Day 1: Louvre")
	assert.Equal(t, 2, h.mock.CallCount())
	assert.Zero(t, w.geoname.Load())
}

func TestScenarioRepeatedRunUsesGenerationCache(t *testing.T) {
	w := newWorld(t)
	h := w.harness(5 * time.Second)

	_, err := h.pipeline.Run(context.Background(), newParisState(t))
	require.NoError(t, err)
	_, err = h.pipeline.Run(context.Background(), newParisState(t))
	require.NoError(t, err)

	assert.Equal(t, 2, h.mock.CallCount(), "second run answered from cache")
}

func TestScenarioGeocodeFallback(t *testing.T) {
	w := newWorld(t, func(w *world) { w.nominatimSlow = true })
	h := w.harness(50 * time.Millisecond)

	final, err := h.pipeline.Run(context.Background(), newParisState(t))
	require.NoError(t, err)

	require.NotNil(t, final.Center)
	assert.Equal(t, geocode.SourceOpenTripMap, final.Center.Source)
	assert.InDelta(t, 48.85341, final.Center.Lat, 1e-9)
	assert.EqualValues(t, 1, w.nominatim.Load())
	assert.EqualValues(t, 1, w.geoname.Load())
	assert.Equal(t, trip.StatusCompleted, final.Status)
}

func TestScenarioNoAttractions(t *testing.T) {
	w := newWorld(t, func(w *world) { w.otmPlaces = `[]` })
	h := w.harness(5 * time.Second)

	final, err := h.pipeline.Run(context.Background(), newParisState(t))
	require.NoError(t, err)

	assert.EqualValues(t, 5, w.radius.Load(), "every directory tier tried")
	assert.EqualValues(t, 1, w.overpassN.Load())
	assert.Empty(t, final.Attractions)
	require.NotNil(t, final.Route)
	assert.Empty(t, final.Route.OrderIndices)
	assert.Zero(t, w.table.Load(), "no routing call without stops")
	assert.Contains(t, final.ItineraryText, "Day 1")
	assert.Equal(t, trip.StatusCompleted, final.Status)
}

func TestScenarioOverpassRescues(t *testing.T) {
	w := newWorld(t, func(w *world) {
		w.otmPlaces = `[]`
		w.overpass = `{"elements":[
{"type":"node","id":1,"lat":48.86,"lon":2.34,"tags":{"name":"Museum X","tourism":"museum"}},
{"type":"way","id":2,"center":{"lat":48.87,"lon":2.35},"tags":{"historic":"monument"}}]}`
	})
	h := w.harness(5 * time.Second)

	final, err := h.pipeline.Run(context.Background(), newParisState(t))
	require.NoError(t, err)

	// No open-data kind contains "museums", so the unfiltered head is kept.
	require.Len(t, final.Attractions, 2)
	assert.Equal(t, "Museum X", final.Attractions[0].Name)
	assert.Equal(t, "POI", final.Attractions[1].Name)
	assert.EqualValues(t, 1, w.table.Load())
	assert.Equal(t, []int{0, 1}, final.Route.OrderIndices)
}

func TestScenarioRoutingFailureAborts(t *testing.T) {
	w := newWorld(t, func(w *world) { w.tableFails = true })
	h := w.harness(5 * time.Second)

	final, err := h.pipeline.Run(context.Background(), newParisState(t))

	var aborted *pipeline.AbortedError
	require.ErrorAs(t, err, &aborted)
	assert.Equal(t, stages.NameRoute, aborted.Stage)
	assert.ErrorIs(t, err, route.ErrUnavailable)
	assert.Equal(t, stages.NameRoute, final.FailedStage)
	assert.Nil(t, final.Route)
	assert.Empty(t, final.ItineraryText)
	assert.Equal(t, 1, h.mock.CallCount(), "narrative never ran")
}

func manyMuseums(n int) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = fmt.Sprintf(`{"xid":"M%d","name":"Museum %d","kinds":"museums","point":{"lat":%f,"lon":%f}}`,
			i, i, 48.85+float64(i)*0.001, 2.35+float64(i)*0.001)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func assertPermutation(t *testing.T, n int, indices []int) {
	t.Helper()
	want := make([]int, n)
	for i := range want {
		want[i] = i
	}
	assert.ElementsMatch(t, want, indices)
}

func TestScenarioRoutesEveryKeptAttraction(t *testing.T) {
	tests := []struct {
		name     string
		maxStops int
		want     int
	}{
		{"default cap", stages.DefaultSettings().MaxStops, 25},
		{"uncapped", 0, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t, func(w *world) { w.otmPlaces = manyMuseums(40) })
			h := w.harness(5*time.Second, func(s *stages.Settings) { s.MaxStops = tt.maxStops })

			final, err := h.pipeline.Run(context.Background(), newParisState(t))
			require.NoError(t, err)
			assert.Equal(t, trip.StatusCompleted, final.Status)

			require.Len(t, final.Attractions, tt.want)
			require.NotNil(t, final.Route)
			assert.Len(t, final.Route.OrderIndices, len(final.Attractions))
			assertPermutation(t, len(final.Attractions), final.Route.OrderIndices)
		})
	}
}
