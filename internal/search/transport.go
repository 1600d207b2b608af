package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/search/types"
)

// geocode resolves the location with the first maps provider that knows it.
func (e *Engine) geocode(ctx context.Context, location string) (types.Coordinates, error) {
	if len(e.src.Maps) == 0 {
		return types.Coordinates{}, fmt.Errorf("%w: no maps provider configured", providers.ErrProviderUnavailable)
	}

	var errs []error
	for _, m := range e.src.Maps {
		c, err := callProvider(ctx, e.timeout, m.Name(), func(ctx context.Context) (types.Coordinates, error) {
			return m.Geocode(ctx, location)
		})
		if err == nil {
			return c, nil
		}
		errs = append(errs, err)
	}
	return types.Coordinates{}, errors.Join(errs...)
}

// transportation builds the transportation block around the geocoded
// location. It falls back when the location cannot be geocoded.
func (e *Engine) transportation(ctx context.Context, geocode locator) (t types.Transportation, degraded bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("transportation failed, serving fallback", "panic", r)
			t, degraded = fallbackTransportation(), true
		}
	}()

	center, err := geocode()
	if err != nil {
		e.logger.Warn("geocoding failed, serving fallback transportation", "error", err)
		return fallbackTransportation(), true
	}

	return types.Transportation{
		Coordinates:    center,
		Options:        append([]string(nil), transportOptions...),
		NearbyAirports: e.airports(ctx, center),
		TransitInfo:    "Public transportation available in most areas",
		Source:         types.SourceMaps,
	}, false
}

// airports asks the first maps provider able to list airports. Failures
// yield an empty list.
func (e *Engine) airports(ctx context.Context, center types.Coordinates) []types.Airport {
	for _, m := range e.src.Maps {
		finder, ok := m.(providers.AirportFinder)
		if !ok {
			continue
		}
		airports, err := callProvider(ctx, e.timeout, m.Name(), func(ctx context.Context) ([]types.Airport, error) {
			return finder.NearbyAirports(ctx, center, airportRadiusMeters)
		})
		if err != nil {
			e.logger.Warn("airport lookup failed", "provider", m.Name(), "error", err)
			continue
		}
		if airports == nil {
			airports = []types.Airport{}
		}
		return airports
	}
	return []types.Airport{}
}

// basicInfo describes the location. Unknown coordinates are reported as
// 0,0; only a failure to build the block marks it degraded.
func (e *Engine) basicInfo(q types.Query, geocode locator) (info types.BasicInfo, degraded bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("basic info failed", "panic", r)
			info, degraded = types.BasicInfo{Name: q.Location, Timestamp: e.now()}, true
		}
	}()

	center, _ := geocode()
	return types.BasicInfo{
		Name:        q.Location,
		Coordinates: center,
		Timestamp:   e.now(),
	}, false
}
