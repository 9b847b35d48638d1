// Package geo holds the coordinate type shared by the acquisition packages
// and great-circle helpers built on s2.
package geo

import (
	"fmt"
	"math"

	"github.com/golang/geo/s2"
)

// EarthRadiusMeters is the mean Earth radius used to convert s2 angles.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate. Source names the provider that produced it
// when the point came from a lookup.
type Point struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Source string  `json:"source,omitempty"`
}

// Valid reports whether the point is a finite coordinate within the
// latitude and longitude ranges.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// LonLat formats the point as "lon,lat", the order routing services expect.
func (p Point) LonLat() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.5f, %.5f)", p.Lat, p.Lon)
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat, a.Lon)
	lb := s2.LatLngFromDegrees(b.Lat, b.Lon)
	return la.Distance(lb).Radians() * EarthRadiusMeters
}
