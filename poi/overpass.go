package poi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/c360studio/semtrip/fetch"
	"github.com/c360studio/semtrip/geo"
)

// DefaultOverpassURL is the public Overpass interpreter.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// Overpass queries OpenStreetMap for tourism and historic features.
type Overpass struct {
	client  *fetch.Client
	baseURL string
}

// NewOverpass creates the open-data client. Overpass queries are slow, so
// client should carry a longer timeout than the directory client.
func NewOverpass(client *fetch.Client, baseURL string) *Overpass {
	if baseURL == "" {
		baseURL = DefaultOverpassURL
	}
	return &Overpass{client: client, baseURL: baseURL}
}

type overpassElement struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat"`
	Lon    *float64          `json:"lon"`
	Center *overpassCenter   `json:"center"`
	Tags   map[string]string `json:"tags"`
}

type overpassCenter struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Query builds the Overpass QL request for features within radius meters.
func Query(center geo.Point, radius, limit int) string {
	around := fmt.Sprintf("(around:%d,%f,%f)", radius, center.Lat, center.Lon)
	return fmt.Sprintf(`[out:json][timeout:25];
(
  node%[1]s[tourism];
  node%[1]s[historic];
  way%[1]s[tourism];
  way%[1]s[historic];
  relation%[1]s[tourism];
  relation%[1]s[historic];
);
out center %[2]d;`, around, limit)
}

// Around returns up to limit features within radius meters of center.
func (o *Overpass) Around(ctx context.Context, center geo.Point, radius, limit int) ([]Place, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var body struct {
		Elements []overpassElement `json:"elements"`
	}
	form := url.Values{"data": {Query(center, radius, limit)}}
	if err := o.client.PostFormJSON(ctx, o.baseURL, form, &body); err != nil {
		return nil, err
	}

	places := make([]Place, 0, min(len(body.Elements), limit))
	for _, el := range body.Elements {
		lat, lon := el.Lat, el.Lon
		if el.Type != "node" {
			lat, lon = nil, nil
			if el.Center != nil {
				lat, lon = el.Center.Lat, el.Center.Lon
			}
		}
		if lat == nil || lon == nil {
			continue
		}

		places = append(places, Place{
			ID:    fmt.Sprintf("osm:%s:%d", el.Type, el.ID),
			Name:  elementName(el.Tags),
			Kinds: elementKinds(el.Tags),
			Lat:   *lat,
			Lon:   *lon,
		})
		if len(places) >= limit {
			break
		}
	}
	return places, nil
}

func elementName(tags map[string]string) string {
	if n := tags["name"]; n != "" {
		return n
	}
	if n := tags["name:en"]; n != "" {
		return n
	}
	return "POI"
}

func elementKinds(tags map[string]string) []string {
	var kinds []string
	if v, ok := tags["tourism"]; ok {
		kinds = append(kinds, "tourism:"+v)
	}
	if v, ok := tags["historic"]; ok {
		kinds = append(kinds, "historic:"+v)
	}
	if len(kinds) == 0 {
		return []string{"osm_poi"}
	}
	return kinds
}
