// Package weather fetches daily forecasts from Open-Meteo. There is a
// single source and no fallback provider.
package weather

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/c360studio/semtrip/fetch"
)

// DefaultURL is the public Open-Meteo forecast endpoint.
const DefaultURL = "https://api.open-meteo.com/v1/forecast"

// Forecast day range supported by the service.
const (
	MinDays = 1
	MaxDays = 16
)

// ErrUnavailable is returned on transport or schema errors.
var ErrUnavailable = errors.New("weather unavailable")

// Forecast is a daily series. All slices have the same length.
type Forecast struct {
	Dates   []string  `json:"dates"`
	MaxTemp []float64 `json:"max_temp"`
	MinTemp []float64 `json:"min_temp"`
	Codes   []int     `json:"codes"`
}

// Len returns the number of forecast days.
func (f *Forecast) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Dates)
}

// Client queries the forecast endpoint.
type Client struct {
	client  *fetch.Client
	baseURL string
}

// NewClient creates a client. An empty baseURL uses the public endpoint.
func NewClient(client *fetch.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{client: client, baseURL: baseURL}
}

// ClampDays limits days to the range the service accepts.
func ClampDays(days int) int {
	return min(max(days, MinDays), MaxDays)
}

type dailyResponse struct {
	Daily *struct {
		Time        []string   `json:"time"`
		WeatherCode []*int     `json:"weathercode"`
		TempMax     []*float64 `json:"temperature_2m_max"`
		TempMin     []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// Forecast returns the daily forecast for days days. Callers clamp days
// with ClampDays first.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, days int) (*Forecast, error) {
	q := url.Values{
		"latitude":      {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude":     {strconv.FormatFloat(lon, 'f', -1, 64)},
		"daily":         {"weathercode,temperature_2m_max,temperature_2m_min"},
		"timezone":      {"UTC"},
		"forecast_days": {strconv.Itoa(days)},
	}

	var body dailyResponse
	if err := c.client.GetJSON(ctx, c.baseURL, q, &body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if body.Daily == nil {
		return nil, fmt.Errorf("%w: response has no daily block", ErrUnavailable)
	}

	d := body.Daily
	n := min(len(d.Time), len(d.WeatherCode), len(d.TempMax), len(d.TempMin))
	f := &Forecast{
		Dates:   make([]string, 0, n),
		MaxTemp: make([]float64, 0, n),
		MinTemp: make([]float64, 0, n),
		Codes:   make([]int, 0, n),
	}
	// The series ends at the first day with a missing value.
	for i := range n {
		code, hi, lo := d.WeatherCode[i], d.TempMax[i], d.TempMin[i]
		if code == nil || hi == nil || lo == nil {
			break
		}
		f.Dates = append(f.Dates, d.Time[i])
		f.MaxTemp = append(f.MaxTemp, *hi)
		f.MinTemp = append(f.MinTemp, *lo)
		f.Codes = append(f.Codes, *code)
	}
	return f, nil
}
