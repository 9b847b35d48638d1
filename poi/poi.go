// Package poi acquires points of interest around a coordinate.
//
// Search walks six progressively broader tiers: five OpenTripMap radius
// queries and, last, an Overpass query against OpenStreetMap data. The
// first tier that yields at least one place wins. Tier failures are logged
// and treated as empty, so Search only fails for invalid coordinates.
package poi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semtrip/fallback"
	"github.com/c360studio/semtrip/geo"
	"github.com/c360studio/semtrip/metrics"
)

// ErrInvalidCoordinates is returned when Search is called with a center
// outside the valid latitude/longitude range.
var ErrInvalidCoordinates = errors.New("attraction search: invalid coordinates")

// Kind filters used by the OpenTripMap tiers.
const (
	DefaultKinds = "interesting_places,historic,architecture,cultural,museums,natural,urban_environment,fortifications,monuments,temples,castles"
	BroaderKinds = "interesting_places,tourist_facilities,historic,architecture,cultural,museums,urban_environment,natural,monuments,fortifications,temples,bridges,other"
)

// Tier tuning.
const (
	MinRate         = 2
	WideRadius      = 20000
	DefaultTopN     = 20
	DefaultRadius   = 12000
	DefaultLimit    = 60
	overpassMinArea = 1000
	overpassMaxArea = 30000
)

// Place is a normalized point of interest. Distance is meters from the
// search center.
type Place struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Kinds    []string `json:"kinds"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Distance *float64 `json:"distance,omitempty"`
}

// Point returns the place coordinates.
func (p Place) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// RadiusQuery is one OpenTripMap /radius request.
type RadiusQuery struct {
	Center geo.Point
	Radius int
	Limit  int
	Kinds  string // empty means no kinds filter
	Rate   int    // 0 means no rating floor
}

// Directory is the primary POI source.
type Directory interface {
	Radius(ctx context.Context, q RadiusQuery) ([]Place, error)
}

// OpenData is the last-resort source.
type OpenData interface {
	Around(ctx context.Context, center geo.Point, radius, limit int) ([]Place, error)
}

// Searcher runs the tiered search.
type Searcher struct {
	directory Directory
	openData  OpenData
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) {
		s.logger = logger
	}
}

// WithMetrics records tier outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) {
		s.metrics = m
	}
}

// NewSearcher creates a searcher. Either source may be nil, in which case
// its tiers are skipped.
func NewSearcher(directory Directory, openData OpenData, opts ...Option) *Searcher {
	s := &Searcher{
		directory: directory,
		openData:  openData,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns up to limit places around center. An empty result with a
// nil error means every tier came back empty. A done context is returned
// as an error instead.
func (s *Searcher) Search(ctx context.Context, center geo.Point, radius, limit int) ([]Place, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCoordinates, center)
	}
	if radius <= 0 {
		radius = DefaultRadius
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	places, tier, err := fallback.First(ctx, s.tiers(center, radius, limit), fallback.EmptySlice[Place],
		fallback.WithChainName("poi"),
		fallback.WithLogger(s.logger),
		fallback.WithMetrics(s.metrics))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("attraction search: %w", ctxErr)
		}
		s.logger.Warn("All attraction tiers empty", "center", center.String(), "radius", radius, "error", err)
		return []Place{}, nil
	}

	s.logger.Debug("Attractions found", "tier", tier, "count", len(places))
	return places, nil
}

func (s *Searcher) tiers(center geo.Point, radius, limit int) []fallback.Strategy[[]Place] {
	var tiers []fallback.Strategy[[]Place]

	if s.directory != nil {
		queries := []struct {
			name string
			q    RadiusQuery
		}{
			{"otm_rated", RadiusQuery{Radius: radius, Kinds: DefaultKinds, Rate: MinRate}},
			{"otm_unrated", RadiusQuery{Radius: radius, Kinds: DefaultKinds}},
			{"otm_broader_kinds", RadiusQuery{Radius: radius, Kinds: BroaderKinds}},
			{"otm_wide_radius", RadiusQuery{Radius: max(radius, WideRadius), Kinds: BroaderKinds}},
			{"otm_any_kind", RadiusQuery{Radius: max(radius, WideRadius)}},
		}
		for _, tq := range queries {
			q := tq.q
			q.Center = center
			q.Limit = limit
			tiers = append(tiers, fallback.Strategy[[]Place]{
				Name: tq.name,
				Run: func(ctx context.Context) ([]Place, error) {
					places, err := s.directory.Radius(ctx, q)
					if err != nil {
						return nil, err
					}
					return normalize(center, places), nil
				},
			})
		}
	}

	if s.openData != nil {
		tiers = append(tiers, fallback.Strategy[[]Place]{
			Name: "overpass",
			Run: func(ctx context.Context) ([]Place, error) {
				area := min(max(radius, overpassMinArea), overpassMaxArea)
				places, err := s.openData.Around(ctx, center, area, limit)
				if err != nil {
					return nil, err
				}
				return normalize(center, places), nil
			},
		})
	}
	return tiers
}

// normalize drops places without usable coordinates, removes duplicate
// IDs keeping the first occurrence, and fills missing distances.
func normalize(center geo.Point, places []Place) []Place {
	seen := make(map[string]struct{}, len(places))
	out := make([]Place, 0, len(places))
	for _, p := range places {
		if !p.Point().Valid() {
			continue
		}
		if p.ID != "" {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
		}
		if p.Distance == nil {
			d := geo.Distance(center, p.Point())
			p.Distance = &d
		}
		out = append(out, p)
	}
	return out
}

// FilterByInterests keeps places whose kinds contain any interest keyword
// (case-insensitive substring). When nothing matches, the first topN
// places are returned unfiltered.
func FilterByInterests(places []Place, interests []string, topN int) []Place {
	if topN <= 0 {
		topN = DefaultTopN
	}

	keywords := make([]string, 0, len(interests))
	for _, in := range interests {
		if k := strings.ToLower(strings.TrimSpace(in)); k != "" {
			keywords = append(keywords, k)
		}
	}

	var filtered []Place
	for _, p := range places {
		if matchesAny(p.Kinds, keywords) {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) > 0 {
		return filtered
	}
	return places[:min(topN, len(places))]
}

func matchesAny(kinds, keywords []string) bool {
	for _, kind := range kinds {
		kind = strings.ToLower(kind)
		for _, k := range keywords {
			if strings.Contains(kind, k) {
				return true
			}
		}
	}
	return false
}
