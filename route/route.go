// Package route orders stops with a greedy nearest-neighbour heuristic
// over an OSRM duration table. The tour is not optimal.
package route

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/c360studio/semtrip/fetch"
	"github.com/c360studio/semtrip/geo"
)

// DefaultURL is the public OSRM demo server.
const DefaultURL = "http://router.project-osrm.org"

// ErrUnavailable is returned when the routing service is unreachable or
// returns a malformed table.
var ErrUnavailable = errors.New("route unavailable")

// Plan is an ordered visit sequence. OrderIndices is a permutation of the
// input positions; Distance is meters along the order when known.
type Plan struct {
	Ordered      []geo.Point `json:"ordered"`
	OrderIndices []int       `json:"order_indices"`
	Distance     float64     `json:"distance"`
}

// Planner requests duration tables and orders stops.
type Planner struct {
	client  *fetch.Client
	baseURL string
}

// NewPlanner creates a planner. An empty baseURL uses the public server.
func NewPlanner(client *fetch.Client, baseURL string) *Planner {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Planner{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

type tableResponse struct {
	Code      string       `json:"code"`
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

// Order returns the greedy visit order for points, starting at the first
// point. An empty input returns an empty plan without calling the service.
func (p *Planner) Order(ctx context.Context, points []geo.Point) (*Plan, error) {
	if len(points) == 0 {
		return &Plan{Ordered: []geo.Point{}, OrderIndices: []int{}}, nil
	}

	coords := make([]string, len(points))
	for i, pt := range points {
		coords[i] = pt.LonLat()
	}
	u := fmt.Sprintf("%s/table/v1/driving/%s?annotations=duration,distance", p.baseURL, strings.Join(coords, ";"))

	var table tableResponse
	if err := p.client.GetJSON(ctx, u, nil, &table); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if table.Code != "" && table.Code != "Ok" {
		return nil, fmt.Errorf("%w: osrm code %q", ErrUnavailable, table.Code)
	}

	n := len(points)
	durations, ok := square(table.Durations, n)
	if !ok {
		return nil, fmt.Errorf("%w: expected %dx%d duration table", ErrUnavailable, n, n)
	}

	order := GreedyOrder(n, durations)
	plan := &Plan{
		Ordered:      make([]geo.Point, n),
		OrderIndices: order,
	}
	for i, idx := range order {
		plan.Ordered[i] = points[idx]
	}
	if distances, ok := square(table.Distances, n); ok {
		plan.Distance = pathLength(order, distances)
	}
	return plan, nil
}

// square converts a nullable table to float64, mapping nulls to +Inf. It
// reports false unless the table is exactly n by n.
func square(table [][]*float64, n int) ([][]float64, bool) {
	if len(table) != n {
		return nil, false
	}
	out := make([][]float64, n)
	for i, row := range table {
		if len(row) != n {
			return nil, false
		}
		out[i] = make([]float64, n)
		for j, v := range row {
			if v == nil {
				out[i][j] = math.Inf(1)
			} else {
				out[i][j] = *v
			}
		}
	}
	return out, true
}

func pathLength(order []int, distances [][]float64) float64 {
	var total float64
	for i := 1; i < len(order); i++ {
		d := distances[order[i-1]][order[i]]
		if math.IsInf(d, 0) || math.IsNaN(d) {
			continue
		}
		total += d
	}
	return total
}

// GreedyOrder returns a visit order over n stops starting at 0, always
// moving to the unvisited stop with the smallest duration from the last
// visited one. Ties go to the lowest index. Missing or null entries count
// as unreachable; when every remaining stop is unreachable the lowest
// remaining index is taken, so the result is always a permutation of
// 0..n-1.
func GreedyOrder(n int, durations [][]float64) []int {
	if n <= 0 {
		return []int{}
	}

	visited := make([]bool, n)
	order := make([]int, 0, n)
	order = append(order, 0)
	visited[0] = true

	for len(order) < n {
		last := order[len(order)-1]
		next, best := -1, math.Inf(1)
		for j := range n {
			if visited[j] {
				continue
			}
			d := cost(durations, last, j)
			if next == -1 || d < best {
				next, best = j, d
			}
		}
		order = append(order, next)
		visited[next] = true
	}
	return order
}

func cost(durations [][]float64, from, to int) float64 {
	if from >= len(durations) || to >= len(durations[from]) {
		return math.Inf(1)
	}
	d := durations[from][to]
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}
