package trip

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/route"
	"github.com/c360studio/semtrip/weather"
)

func TestApplyCopiesOnWrite(t *testing.T) {
	base := State{City: "Paris", Days: 2, Interests: []string{"culture"}, Status: StatusPending}

	places := []poi.Place{{ID: "a", Name: "Louvre"}}
	center := geo.Point{Lat: 48.85, Lon: 2.35, Source: "nominatim"}
	next := base.Apply(Delta{Attractions: places, Center: &center})

	assert.Nil(t, base.Attractions, "original untouched")
	require.Len(t, next.Attractions, 1)

	places[0].Name = "changed"
	center.Lat = 0
	assert.Equal(t, "Louvre", next.Attractions[0].Name, "delta slice not shared")
	assert.Equal(t, 48.85, next.Center.Lat)

	next.Interests[0] = "food"
	assert.Equal(t, "culture", base.Interests[0])
}

func TestApplyOnlyPresentFields(t *testing.T) {
	text := "Day 1: Art"
	s := State{
		Plan:    &PlanOutline{TripOverview: "x", Days: []DayPlan{{Day: 1, Activities: []string{"a"}}}},
		Weather: &weather.Forecast{Dates: []string{"2026-01-01"}, MaxTemp: []float64{1}, MinTemp: []float64{0}, Codes: []int{0}},
	}

	next := s.Apply(Delta{ItineraryText: &text, Route: &route.Plan{OrderIndices: []int{0}}})
	assert.Equal(t, "Day 1: Art", next.ItineraryText)
	assert.Same(t, s.Plan, next.Plan, "absent fields carried over")
	assert.Equal(t, []int{0}, next.Route.OrderIndices)

	plan := &PlanOutline{Days: []DayPlan{{Day: 1, Activities: []string{"walk"}}}}
	next = s.Apply(Delta{Plan: plan})
	plan.Days[0].Activities[0] = "run"
	assert.Equal(t, "walk", next.Plan.Days[0].Activities[0])
}

func TestDeltaIsEmpty(t *testing.T) {
	assert.True(t, Delta{}.IsEmpty())
	text := ""
	assert.False(t, Delta{ItineraryText: &text}.IsEmpty())
}

func TestNewState(t *testing.T) {
	st, err := NewState(Request{
		City:      "  Paris ",
		Days:      2,
		Interests: []string{" culture", "", "food "},
	})
	require.NoError(t, err)

	_, err = uuid.Parse(st.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Paris", st.City)
	assert.Equal(t, []string{"culture", "food"}, st.Interests)
	assert.Equal(t, BudgetMedium, st.Budget)
	assert.Equal(t, StatusPending, st.Status)
}

func TestValidate(t *testing.T) {
	valid := Request{City: "Paris", Days: 2, Interests: []string{"culture"}, Budget: "low"}

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr string
	}{
		{"valid", func(*Request) {}, ""},
		{"empty city", func(r *Request) { r.City = "" }, "city is required"},
		{"zero days", func(r *Request) { r.Days = 0 }, "days must be between"},
		{"too many days", func(r *Request) { r.Days = 31 }, "days must be between"},
		{"no interests", func(r *Request) { r.Interests = nil }, "at least one interest"},
		{"blank interest", func(r *Request) { r.Interests = []string{"x", " "} }, "interest 1 is empty"},
		{"bad budget", func(r *Request) { r.Budget = "lavish" }, "budget must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.Interests = append([]string(nil), valid.Interests...)
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInputInvalid)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseInterests(t *testing.T) {
	assert.Equal(t, []string{"culture", "food"}, ParseInterests(" culture, ,food,"))
	assert.Nil(t, ParseInterests(""))
}
