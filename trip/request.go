package trip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrInputInvalid is returned for missing or out-of-range request fields.
var ErrInputInvalid = errors.New("invalid input")

// Request limits.
const (
	MinDays = 1
	MaxDays = 30
)

// Budget levels.
const (
	BudgetLow    = "low"
	BudgetMedium = "medium"
	BudgetHigh   = "high"
)

// Request is the user-facing input of a run.
type Request struct {
	City      string   `json:"city"`
	Days      int      `json:"days"`
	Interests []string `json:"interests"`
	Budget    string   `json:"budget,omitempty"`
}

// Normalize trims every field, drops empty interests and defaults the
// budget to medium.
func (r Request) Normalize() Request {
	out := Request{
		City:   strings.TrimSpace(r.City),
		Days:   r.Days,
		Budget: strings.ToLower(strings.TrimSpace(r.Budget)),
	}
	for _, in := range r.Interests {
		if in = strings.TrimSpace(in); in != "" {
			out.Interests = append(out.Interests, in)
		}
	}
	if out.Budget == "" {
		out.Budget = BudgetMedium
	}
	return out
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	if r.City == "" {
		return fmt.Errorf("%w: city is required", ErrInputInvalid)
	}
	if r.Days < MinDays || r.Days > MaxDays {
		return fmt.Errorf("%w: days must be between %d and %d, got %d", ErrInputInvalid, MinDays, MaxDays, r.Days)
	}
	if len(r.Interests) == 0 {
		return fmt.Errorf("%w: at least one interest is required", ErrInputInvalid)
	}
	for i, in := range r.Interests {
		if strings.TrimSpace(in) == "" {
			return fmt.Errorf("%w: interest %d is empty", ErrInputInvalid, i)
		}
	}
	switch r.Budget {
	case BudgetLow, BudgetMedium, BudgetHigh:
	default:
		return fmt.Errorf("%w: budget must be low, medium or high, got %q", ErrInputInvalid, r.Budget)
	}
	return nil
}

// NewState normalizes and validates req and returns the initial state of
// a run with a fresh ID.
func NewState(req Request) (State, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return State{}, err
	}
	return State{
		ID:        uuid.New().String(),
		City:      req.City,
		Days:      req.Days,
		Interests: req.Interests,
		Budget:    req.Budget,
		Status:    StatusPending,
	}, nil
}

// ParseInterests splits a comma-separated interest list.
func ParseInterests(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
