package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/model"
	"github.com/c360studio/semtrip/trip"
)

// ErrMalformedPlan is returned when the model's outline cannot be parsed.
var ErrMalformedPlan = errors.New("malformed plan outline")

const planPrompt = `Create a structured travel itinerary for the user.

City: %s
Duration (days): %d
Interests: %s
Budget level: %s

Rules:
1) Output ONLY valid JSON.
2) The JSON must have keys:
   "trip_overview": string,
   "days": list of objects with keys: "day" (int), "theme" (string),
   "activities" (list of string), "description" (string)
3) Provide 2-3 activities per day, aligned to interests.
4) Do not mention hotel/flight details.
5) Use concise descriptions.`

// PlanStage asks the model for a structured day-by-day outline.
type PlanStage struct {
	deps Deps
}

func (s *PlanStage) Name() string { return NamePlan }

func (s *PlanStage) Run(ctx context.Context, st trip.State) (trip.Delta, error) {
	if st.City == "" || st.Days <= 0 || len(st.Interests) == 0 {
		return trip.Delta{}, fmt.Errorf("%w: missing required inputs (city/days/interests)", trip.ErrInputInvalid)
	}
	budget := st.Budget
	if budget == "" {
		budget = trip.BudgetMedium
	}

	prompt := fmt.Sprintf(planPrompt, st.City, st.Days, strings.Join(st.Interests, ","), budget)
	modelID := s.deps.Generator.ModelFor(model.CapabilityForStage(NamePlan))
	text, err := s.deps.Generator.Invoke(ctx, prompt, modelID, s.deps.Settings.MaxTokens)
	if err != nil {
		return trip.Delta{}, err
	}

	plan, err := ParseOutline(text)
	if err != nil {
		s.deps.logger().Warn("Unparseable plan outline", "model", modelID, "output", truncate(text, 300))
		return trip.Delta{}, err
	}
	return trip.Delta{Plan: plan}, nil
}

func (s *PlanStage) Detail(d trip.Delta) string {
	return fmt.Sprintf("%d days outlined", len(d.Plan.Days))
}

// ParseOutline extracts the JSON outline from model output.
func ParseOutline(text string) (*trip.PlanOutline, error) {
	raw := llm.ExtractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in output", ErrMalformedPlan)
	}
	var plan trip.PlanOutline
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPlan, err)
	}
	if len(plan.Days) == 0 {
		return nil, fmt.Errorf("%w: no days", ErrMalformedPlan)
	}
	for i := range plan.Days {
		if plan.Days[i].Day <= 0 {
			plan.Days[i].Day = i + 1
		}
	}
	return &plan, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
