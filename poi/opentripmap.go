package poi

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/c360studio/semtrip/fetch"
)

// DefaultOpenTripMapURL is the /radius endpoint of the public API.
const DefaultOpenTripMapURL = "https://api.opentripmap.com/0.1/en/places/radius"

// OpenTripMap is the primary Directory.
type OpenTripMap struct {
	client  *fetch.Client
	baseURL string
	apiKey  string
}

// NewOpenTripMap creates the directory client. An empty baseURL uses the
// public endpoint.
func NewOpenTripMap(client *fetch.Client, baseURL, apiKey string) *OpenTripMap {
	if baseURL == "" {
		baseURL = DefaultOpenTripMapURL
	}
	return &OpenTripMap{client: client, baseURL: baseURL, apiKey: apiKey}
}

type otmPlace struct {
	XID   string   `json:"xid"`
	Name  string   `json:"name"`
	Kinds string   `json:"kinds"`
	Dist  *float64 `json:"dist"`
	Point *struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	} `json:"point"`
}

// Radius runs one /radius query.
func (o *OpenTripMap) Radius(ctx context.Context, q RadiusQuery) ([]Place, error) {
	params := url.Values{
		"radius": {strconv.Itoa(q.Radius)},
		"lat":    {strconv.FormatFloat(q.Center.Lat, 'f', -1, 64)},
		"lon":    {strconv.FormatFloat(q.Center.Lon, 'f', -1, 64)},
		"format": {"json"},
		"limit":  {strconv.Itoa(q.Limit)},
		"apikey": {o.apiKey},
	}
	if q.Kinds != "" {
		params.Set("kinds", q.Kinds)
	}
	if q.Rate > 0 {
		params.Set("min_rate", strconv.Itoa(q.Rate))
	}

	var raw []otmPlace
	if err := o.client.GetJSON(ctx, o.baseURL, params, &raw); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(raw))
	for _, r := range raw {
		if r.Point == nil || r.Point.Lat == nil || r.Point.Lon == nil {
			continue
		}
		places = append(places, Place{
			ID:       r.XID,
			Name:     r.Name,
			Kinds:    splitKinds(r.Kinds),
			Lat:      *r.Point.Lat,
			Lon:      *r.Point.Lon,
			Distance: r.Dist,
		})
	}
	return places, nil
}

func splitKinds(s string) []string {
	var kinds []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
