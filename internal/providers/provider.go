package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alex-user-go/tripdata/internal/search/types"
)

var (
	// ErrProviderUnavailable is returned for any failure to obtain data from
	// an upstream: transport errors, auth failures, throttling, timeouts and
	// open circuits.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoCredentials is returned without any network call when a provider
	// that needs credentials has none configured.
	ErrNoCredentials = fmt.Errorf("%w: no credentials configured", ErrProviderUnavailable)

	// ErrLocationNotFound is returned by Geocode when the upstream answered
	// but knows no such place.
	ErrLocationNotFound = errors.New("location not found")
)

// RawFact is a provider item converted out of the provider's wire format.
// Zero values mean the provider did not report the field.
type RawFact struct {
	ID           string
	Name         string
	Address      string
	Rating       float64
	PriceLevel   int
	NightlyPrice float64
	Types        []string
	Amenities    []string
	Location     types.Coordinates
	Photos       []string
	Description  string
	URL          string
	Source       types.Source
}

// Post is a social media post. Venue is the explicit location tag, if any.
type Post struct {
	ID        string
	Venue     string
	Caption   string
	Likes     int
	Comments  int
	Views     int
	Timestamp time.Time
	MediaURL  string
	Permalink string
	Location  *types.Coordinates
}

// CategorySearcher returns items of one category around a location.
type CategorySearcher interface {
	Name() string
	SearchCategory(ctx context.Context, location, categoryHint string) ([]RawFact, error)
}

// Geocoder resolves a free-text location to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, location string) (types.Coordinates, error)
}

// NearbySearcher returns items of one category around known coordinates.
type NearbySearcher interface {
	SearchNearby(ctx context.Context, center types.Coordinates, categoryHint string) ([]RawFact, error)
}

// MapsProvider searches places and geocodes locations. Callers that already
// hold the coordinates use SearchNearby and skip the geocoding round trip.
type MapsProvider interface {
	CategorySearcher
	NearbySearcher
	Geocoder
}

// AirportFinder lists airports around a point. Optional for maps providers.
type AirportFinder interface {
	NearbyAirports(ctx context.Context, center types.Coordinates, radiusMeters int) ([]types.Airport, error)
}

// PostSource returns recent social posts for a location.
type PostSource interface {
	Name() string
	RecentPosts(ctx context.Context, location string) ([]Post, error)
}

// CityOf returns the part of a location before the first comma.
func CityOf(location string) string {
	city, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(city)
}
