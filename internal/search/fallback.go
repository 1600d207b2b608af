package search

import (
	"time"

	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/search/types"
)

var (
	transportOptions = []string{"Public Transit", "Taxi/Rideshare", "Car Rental", "Walking", "Bicycle"}

	fallbackTransportOptions = []string{"Public Transit", "Taxi/Rideshare", "Car Rental", "Walking"}
)

// fallbackItems returns the single synthetic item served for a category
// whose providers all failed.
func fallbackItems(category types.Category, location string) []types.Item {
	city := providers.CityOf(location)

	var item types.Item
	switch category {
	case types.CategoryHotels:
		item = types.Item{
			ID:           "fallback_hotel_1",
			Name:         "Grand Hotel " + city,
			Address:      "123 Main Street, " + location,
			Rating:       4.2,
			NightlyPrice: 150,
			Types:        []string{"lodging"},
			Amenities:    []string{"WiFi", "Restaurant", "Room Service"},
		}
	case types.CategoryAttractions:
		item = types.Item{
			ID:          "fallback_attraction_1",
			Name:        "Historic Center of " + city,
			Address:     "Downtown " + location,
			Rating:      4.5,
			PriceLevel:  1,
			Types:       []string{"tourist_attraction", "historical_site"},
			Amenities:   []string{},
			Description: "Explore the historic center of " + location,
		}
	case types.CategoryRestaurants:
		item = types.Item{
			ID:          "fallback_restaurant_1",
			Name:        "Local Cuisine Restaurant",
			Address:     "456 Food Street, " + location,
			Rating:      4.3,
			PriceLevel:  2,
			Types:       []string{"restaurant", "local_cuisine"},
			Amenities:   []string{},
			Description: "Experience authentic local cuisine in " + location,
		}
	default:
		return []types.Item{}
	}

	item.Photos = []string{}
	item.Source = types.SourceFallback
	return []types.Item{item}
}

func fallbackTransportation() types.Transportation {
	return types.Transportation{
		Options: append([]string(nil), fallbackTransportOptions...),
		NearbyAirports: []types.Airport{{
			Name:           "Main Airport",
			Code:           "XXX",
			DistanceKm:     15,
			Transportation: "Taxi, Bus",
		}},
		TransitInfo: "Public transportation available",
		Source:      types.SourceFallback,
	}
}

// allBlocks lists every block of a result in reporting order.
var allBlocks = []string{
	string(types.CategoryHotels),
	string(types.CategoryAttractions),
	string(types.CategoryRestaurants),
	types.BlockTransportation,
	types.BlockBasicInfo,
}

// fallbackResult is the fully synthetic result served when aggregation
// could not run at all.
func fallbackResult(q types.Query, key string, now time.Time) *types.AggregatedResult {
	return &types.AggregatedResult{
		Location: q.Location,
		BasicInfo: types.BasicInfo{
			Name:      q.Location,
			Timestamp: now,
		},
		Hotels:             fallbackItems(types.CategoryHotels, q.Location),
		Attractions:        fallbackItems(types.CategoryAttractions, q.Location),
		Restaurants:        fallbackItems(types.CategoryRestaurants, q.Location),
		Transportation:     fallbackTransportation(),
		AggregatedAt:       now,
		CacheKey:           key,
		Degraded:           true,
		DegradedCategories: append([]string(nil), allBlocks...),
	}
}
