package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/c360studio/semtrip/geocode"
	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/poi"
	"github.com/c360studio/semtrip/route"
	"github.com/c360studio/semtrip/stages"
	"github.com/c360studio/semtrip/trip"
	"github.com/c360studio/semtrip/weather"
)

// Error kinds reported in failed responses.
const (
	KindInputInvalid           = "input_invalid"
	KindGeocodeUnavailable     = "geocode_unavailable"
	KindAttractionSearchFailed = "attraction_search_failed"
	KindWeatherUnavailable     = "weather_unavailable"
	KindRouteUnavailable       = "route_unavailable"
	KindGenerationUnavailable  = "generation_unavailable"
	KindMalformedPlan          = "malformed_plan"
	KindDeadlineExceeded       = "deadline_exceeded"
	KindCanceled               = "canceled"
	KindBusy                   = "busy"
	KindNotFound               = "not_found"
	KindInternal               = "internal"
)

// ctxDone rows take precedence only once the run context has ended.
var kinds = []struct {
	target  error
	kind    string
	status  int
	ctxDone bool
}{
	{trip.ErrInputInvalid, KindInputInvalid, http.StatusBadRequest, false},
	{context.DeadlineExceeded, KindDeadlineExceeded, http.StatusGatewayTimeout, true},
	{context.Canceled, KindCanceled, http.StatusServiceUnavailable, true},
	{geocode.ErrUnavailable, KindGeocodeUnavailable, http.StatusBadGateway, false},
	{poi.ErrInvalidCoordinates, KindAttractionSearchFailed, http.StatusBadGateway, false},
	{weather.ErrUnavailable, KindWeatherUnavailable, http.StatusBadGateway, false},
	{route.ErrUnavailable, KindRouteUnavailable, http.StatusBadGateway, false},
	{llm.ErrGenerationUnavailable, KindGenerationUnavailable, http.StatusBadGateway, false},
	{stages.ErrMalformedPlan, KindMalformedPlan, http.StatusBadGateway, false},
}

// Classify maps an error from a run under ctx to its kind and HTTP status.
// Once ctx is done, deadline checks come before upstream kinds so a
// timed-out run reports 504. While ctx is live, a timeout inside an
// upstream chain reports that upstream's kind.
func Classify(ctx context.Context, err error) (kind string, status int) {
	done := ctx.Err() != nil
	for _, k := range kinds {
		if k.ctxDone && !done {
			continue
		}
		if errors.Is(err, k.target) {
			return k.kind, k.status
		}
	}
	if !done {
		for _, k := range kinds {
			if k.ctxDone && errors.Is(err, k.target) {
				return k.kind, k.status
			}
		}
	}
	return KindInternal, http.StatusInternalServerError
}
