package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/alex-user-go/tripdata/internal/search/types"
)

// directoryCategories maps place types to business directory categories.
// Place types not listed are passed through unchanged.
var directoryCategories = map[string]string{
	"lodging":    "hotels",
	"restaurant": "restaurants",
	"food":       "food",
	"bar":        "bars",
	"night_club": "danceclubs",
	"museum":     "museums",
	"spa":        "spas",
}

// priceEstimates maps directory price symbols to an estimated nightly rate.
var priceEstimates = map[string]float64{
	"$":    100,
	"$$":   200,
	"$$$":  300,
	"$$$$": 500,
}

// DirectoryProvider is a business directory backed by a Yelp-style API.
type DirectoryProvider struct {
	client *apiClient
}

// NewDirectoryProvider creates a new DirectoryProvider.
func NewDirectoryProvider(s Settings, d Deps) *DirectoryProvider {
	return &DirectoryProvider{
		client: newAPIClient(s, d),
	}
}

type directoryResponse struct {
	Businesses []directoryBusiness `json:"businesses"`
}

type directoryBusiness struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Rating      float64 `json:"rating"`
	Price       string  `json:"price"`
	ReviewCount int     `json:"review_count"`
	ImageURL    string  `json:"image_url"`
	URL         string  `json:"url"`
	Categories  []struct {
		Alias string `json:"alias"`
		Title string `json:"title"`
	} `json:"categories"`
	Coordinates struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Location struct {
		DisplayAddress []string `json:"display_address"`
	} `json:"location"`
}

// Name returns the provider name.
func (p *DirectoryProvider) Name() string {
	return p.client.name
}

// SearchCategory lists the best rated businesses of a category in the location.
func (p *DirectoryProvider) SearchCategory(ctx context.Context, location, categoryHint string) ([]RawFact, error) {
	if p.client.apiKey == "" {
		return nil, ErrNoCredentials
	}

	category, ok := directoryCategories[categoryHint]
	if !ok {
		category = categoryHint
	}

	return guarded(ctx, p.client.guard, func(ctx context.Context) ([]RawFact, error) {
		q := url.Values{}
		q.Set("location", location)
		q.Set("categories", category)
		q.Set("limit", "20")
		q.Set("sort_by", "rating")

		header := http.Header{}
		header.Set("Authorization", "Bearer "+p.client.apiKey)

		var resp directoryResponse
		if err := p.client.getJSON(ctx, "/businesses/search", q, header, &resp); err != nil {
			return nil, err
		}

		facts := make([]RawFact, 0, len(resp.Businesses))
		for _, b := range resp.Businesses {
			facts = append(facts, toDirectoryFact(b, category == "hotels"))
		}
		return facts, nil
	})
}

func toDirectoryFact(b directoryBusiness, lodging bool) RawFact {
	placeTypes := make([]string, 0, len(b.Categories))
	for _, c := range b.Categories {
		if c.Alias != "" {
			placeTypes = append(placeTypes, c.Alias)
		}
	}

	var photos []string
	if b.ImageURL != "" {
		photos = []string{b.ImageURL}
	}

	var description string
	if b.ReviewCount > 0 {
		description = fmt.Sprintf("%d reviews", b.ReviewCount)
	}

	fact := RawFact{
		ID:          b.ID,
		Name:        b.Name,
		Address:     strings.Join(b.Location.DisplayAddress, ", "),
		Rating:      b.Rating,
		PriceLevel:  len(b.Price),
		Types:       placeTypes,
		Location:    types.Coordinates{Lat: b.Coordinates.Latitude, Lng: b.Coordinates.Longitude},
		Photos:      photos,
		Description: description,
		URL:         b.URL,
		Source:      types.SourceDirectory,
	}
	if lodging {
		fact.NightlyPrice = priceEstimates[b.Price]
	}
	return fact
}
