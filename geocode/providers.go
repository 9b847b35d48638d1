package geocode

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/c360studio/semtrip/fetch"
	"github.com/c360studio/semtrip/geo"
)

// Default upstream endpoints.
const (
	DefaultNominatimURL   = "https://nominatim.openstreetmap.org/search"
	DefaultOpenTripMapURL = "https://api.opentripmap.com/0.1/en/places/geoname"
)

// Provider names, also recorded as geo.Point.Source.
const (
	SourceNominatim   = "nominatim"
	SourceOpenTripMap = "opentripmap"
)

// NominatimProvider queries the OpenStreetMap Nominatim search API.
type NominatimProvider struct {
	client  *fetch.Client
	baseURL string
}

// NewNominatimProvider creates the primary provider. An empty baseURL uses
// the public endpoint. Nominatim requires an identifying User-Agent, which
// the fetch client sends.
func NewNominatimProvider(client *fetch.Client, baseURL string) *NominatimProvider {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &NominatimProvider{client: client, baseURL: baseURL}
}

func (p *NominatimProvider) Name() string { return SourceNominatim }

// Lookup returns the first search hit for name.
func (p *NominatimProvider) Lookup(ctx context.Context, name string) (geo.Point, error) {
	var hits []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	q := url.Values{
		"q":      {name},
		"format": {"json"},
		"limit":  {"1"},
	}
	if err := p.client.GetJSON(ctx, p.baseURL, q, &hits); err != nil {
		return geo.Point{}, err
	}
	if len(hits) == 0 {
		return geo.Point{}, ErrNotFound
	}

	lat, err := strconv.ParseFloat(hits[0].Lat, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("parse lat %q: %w", hits[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(hits[0].Lon, 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("parse lon %q: %w", hits[0].Lon, err)
	}
	return geo.Point{Lat: lat, Lon: lon}, nil
}

// OpenTripMapProvider queries the OpenTripMap geoname endpoint.
type OpenTripMapProvider struct {
	client  *fetch.Client
	baseURL string
	apiKey  string
}

// NewOpenTripMapProvider creates the secondary provider.
func NewOpenTripMapProvider(client *fetch.Client, baseURL, apiKey string) *OpenTripMapProvider {
	if baseURL == "" {
		baseURL = DefaultOpenTripMapURL
	}
	return &OpenTripMapProvider{client: client, baseURL: baseURL, apiKey: apiKey}
}

func (p *OpenTripMapProvider) Name() string { return SourceOpenTripMap }

// Lookup resolves name through /geoname. The endpoint answers
// {"status":"NOT_FOUND"} without coordinates for unknown places.
func (p *OpenTripMapProvider) Lookup(ctx context.Context, name string) (geo.Point, error) {
	var body struct {
		Status string   `json:"status"`
		Lat    *float64 `json:"lat"`
		Lon    *float64 `json:"lon"`
	}
	q := url.Values{
		"name":   {name},
		"apikey": {p.apiKey},
	}
	if err := p.client.GetJSON(ctx, p.baseURL, q, &body); err != nil {
		return geo.Point{}, err
	}
	if body.Lat == nil || body.Lon == nil {
		return geo.Point{}, ErrNotFound
	}
	return geo.Point{Lat: *body.Lat, Lon: *body.Lon}, nil
}
