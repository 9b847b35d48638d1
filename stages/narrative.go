package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
)

const narrativePrompt = `You are a travel itinerary writer.

Based on the following JSON plan:
%s
%s%s
Create a human-readable day-by-day itinerary.
Start each day with a "Day N:" heading and list activities as "- " bullets.
Include morning/afternoon/evening suggestions.
Return only the text.`

var dayHeading = regexp.MustCompile(`(?mi)^\W*day\s+\d+`)

// NarrativeStage writes the final itinerary text.
type NarrativeStage struct {
	deps Deps
}

func (s *NarrativeStage) Name() string { return NameNarrative }

func (s *NarrativeStage) Run(ctx context.Context, st trip.State) (trip.Delta, error) {
	if st.Plan == nil {
		return trip.Delta{}, fmt.Errorf("missing plan outline")
	}

	prompt, err := NarrativePrompt(st)
	if err != nil {
		return trip.Delta{}, err
	}
	modelID := s.deps.Generator.ModelFor(model.CapabilityForStage(NameNarrative))
	text, err := s.deps.Generator.Invoke(ctx, prompt, modelID, s.deps.Settings.MaxTokens)
	if err != nil {
		return trip.Delta{}, err
	}

	text = EnsureDayHeadings(text, st.Plan)
	return trip.Delta{ItineraryText: &text}, nil
}

func (s *NarrativeStage) Detail(d trip.Delta) string {
	return fmt.Sprintf("%d characters", len(*d.ItineraryText))
}

// NarrativePrompt builds the writing prompt from the outline, the routed
// stops and the forecast.
func NarrativePrompt(st trip.State) (string, error) {
	raw, err := json.MarshalIndent(st.Plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode plan: %w", err)
	}
	return fmt.Sprintf(narrativePrompt, raw, stopsSection(st), forecastSection(st.Weather)), nil
}

func stopsSection(st trip.State) string {
	if st.Route == nil || len(st.Route.OrderIndices) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nSuggested visiting order:\n")
	for n, idx := range st.Route.OrderIndices {
		if idx < 0 || idx >= len(st.Attractions) {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", n+1, st.Attractions[idx].Name)
	}
	return b.String()
}

func forecastSection(f *weather.Forecast) string {
	if f.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nWeather forecast:\n")
	for i := range f.Len() {
		fmt.Fprintf(&b, "%s: %s, %.0f to %.0f°C\n",
			f.Dates[i], weather.Describe(f.Codes[i]), f.MinTemp[i], f.MaxTemp[i])
	}
	return b.String()
}

// EnsureDayHeadings returns text unchanged when it already has "Day N"
// headings. Otherwise the outline is rendered and appended, or used
// alone when text is blank.
func EnsureDayHeadings(text string, plan *trip.PlanOutline) string {
	text = strings.TrimSpace(text)
	if dayHeading.MatchString(text) {
		return text
	}
	outline := RenderOutline(plan)
	if text == "" {
		return outline
	}
	if outline == "" {
		return text
	}
	return text + "\n\n" + outline
}

// RenderOutline formats the outline as day headings with bullet lists.
func RenderOutline(plan *trip.PlanOutline) string {
	if plan == nil {
		return ""
	}
	var b strings.Builder
	for i, d := range plan.Days {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Day %d: %s\n", d.Day, d.Theme)
		for _, a := range d.Activities {
			fmt.Fprintf(&b, "- %s\n", a)
		}
		if d.Description != "" {
			b.WriteString(d.Description + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
