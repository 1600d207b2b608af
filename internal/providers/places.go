package providers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/alex-user-go/tripdata/internal/search/types"
)

// PlacesProvider is a maps provider backed by a Google-Places-style API.
type PlacesProvider struct {
	client *apiClient
	radius int
}

// NewPlacesProvider creates a new PlacesProvider. radius is the nearby
// search radius in meters.
func NewPlacesProvider(s Settings, radius int, d Deps) *PlacesProvider {
	return &PlacesProvider{
		client: newAPIClient(s, d),
		radius: radius,
	}
}

type placesLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type placesGeometry struct {
	Location placesLocation `json:"location"`
}

type placesGeocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string         `json:"formatted_address"`
		Geometry         placesGeometry `json:"geometry"`
	} `json:"results"`
}

type placesNearbyResponse struct {
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
	Results      []placesResult `json:"results"`
}

type placesResult struct {
	PlaceID          string         `json:"place_id"`
	Name             string         `json:"name"`
	Vicinity         string         `json:"vicinity"`
	FormattedAddress string         `json:"formatted_address"`
	Rating           float64        `json:"rating"`
	UserRatingsTotal int            `json:"user_ratings_total"`
	PriceLevel       int            `json:"price_level"`
	Types            []string       `json:"types"`
	Geometry         placesGeometry `json:"geometry"`
	Photos           []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}

// Name returns the provider name.
func (p *PlacesProvider) Name() string {
	return p.client.name
}

// Geocode resolves a location through the geocoding endpoint.
func (p *PlacesProvider) Geocode(ctx context.Context, location string) (types.Coordinates, error) {
	if p.client.apiKey == "" {
		return types.Coordinates{}, ErrNoCredentials
	}

	return guarded(ctx, p.client.guard, func(ctx context.Context) (types.Coordinates, error) {
		q := url.Values{}
		q.Set("address", location)
		q.Set("key", p.client.apiKey)

		var resp placesGeocodeResponse
		if err := p.client.getJSON(ctx, "/geocode/json", q, nil, &resp); err != nil {
			return types.Coordinates{}, err
		}

		switch resp.Status {
		case "OK":
		case "ZERO_RESULTS":
			return types.Coordinates{}, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
		default:
			return types.Coordinates{}, fmt.Errorf("geocode status %s: %s", resp.Status, resp.ErrorMessage)
		}
		if len(resp.Results) == 0 {
			return types.Coordinates{}, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
		}

		loc := resp.Results[0].Geometry.Location
		return types.Coordinates{Lat: loc.Lat, Lng: loc.Lng}, nil
	})
}

// SearchCategory geocodes the location and runs a nearby search for the
// place type given as categoryHint. An unknown location yields no items.
func (p *PlacesProvider) SearchCategory(ctx context.Context, location, categoryHint string) ([]RawFact, error) {
	if p.client.apiKey == "" {
		return nil, ErrNoCredentials
	}

	center, err := p.Geocode(ctx, location)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return p.SearchNearby(ctx, center, categoryHint)
}

// SearchNearby runs a nearby search for the place type given as
// categoryHint around center.
func (p *PlacesProvider) SearchNearby(ctx context.Context, center types.Coordinates, categoryHint string) ([]RawFact, error) {
	if p.client.apiKey == "" {
		return nil, ErrNoCredentials
	}

	return guarded(ctx, p.client.guard, func(ctx context.Context) ([]RawFact, error) {
		q := url.Values{}
		q.Set("location", formatLatLng(center))
		q.Set("radius", strconv.Itoa(p.radius))
		q.Set("type", categoryHint)
		q.Set("key", p.client.apiKey)

		var resp placesNearbyResponse
		if err := p.client.getJSON(ctx, "/place/nearbysearch/json", q, nil, &resp); err != nil {
			return nil, err
		}

		switch resp.Status {
		case "OK":
		case "ZERO_RESULTS":
			return []RawFact{}, nil
		default:
			return nil, fmt.Errorf("nearby search status %s: %s", resp.Status, resp.ErrorMessage)
		}

		facts := make([]RawFact, 0, len(resp.Results))
		for _, r := range resp.Results {
			facts = append(facts, p.toFact(r))
		}
		return facts, nil
	})
}

func (p *PlacesProvider) toFact(r placesResult) RawFact {
	address := r.Vicinity
	if address == "" {
		address = r.FormattedAddress
	}

	photos := make([]string, 0, len(r.Photos))
	for _, ph := range r.Photos {
		if ph.PhotoReference == "" {
			continue
		}
		photos = append(photos, p.client.baseURL+"/place/photo?maxwidth=400&photo_reference="+url.QueryEscape(ph.PhotoReference))
	}

	var description string
	if r.UserRatingsTotal > 0 {
		description = fmt.Sprintf("Rated %.1f by %d visitors", r.Rating, r.UserRatingsTotal)
	}

	return RawFact{
		ID:          r.PlaceID,
		Name:        r.Name,
		Address:     address,
		Rating:      r.Rating,
		PriceLevel:  r.PriceLevel,
		Types:       r.Types,
		Location:    types.Coordinates{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng},
		Photos:      photos,
		Description: description,
		Source:      types.SourceMaps,
	}
}

func formatLatLng(c types.Coordinates) string {
	return strconv.FormatFloat(c.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(c.Lng, 'f', -1, 64)
}
