package types

import "time"

// Source identifies where an item came from.
type Source string

const (
	SourceMaps      Source = "maps"
	SourceDirectory Source = "directory"
	SourceSocial    Source = "social"
	SourceFallback  Source = "fallback"
)

// Category is one of the merged item lists of an AggregatedResult.
type Category string

const (
	CategoryHotels      Category = "hotels"
	CategoryAttractions Category = "attractions"
	CategoryRestaurants Category = "restaurants"
)

// Block names reported in AggregatedResult.DegradedCategories besides the
// three item categories.
const (
	BlockTransportation = "transportation"
	BlockBasicInfo      = "basic_info"
)

// Query is an aggregation request.
type Query struct {
	Location  string   `json:"location" validate:"required,max=200"`
	Interests []string `json:"interests" validate:"dive,max=100"`
	Budget    float64  `json:"budget" validate:"gte=0"`
	Travelers int      `json:"travelers" validate:"gte=1,lte=50"`
	Duration  int      `json:"duration" validate:"gte=1,lte=365"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ScoreBreakdown holds the normalized components of a trending score.
type ScoreBreakdown struct {
	Frequency float64 `json:"frequency"`
	Likes     float64 `json:"likes"`
	Views     float64 `json:"views"`
	Comments  float64 `json:"comments"`
	Recency   float64 `json:"recency"`
}

// Trend carries the social popularity of a venue.
type Trend struct {
	Score            float64        `json:"trending_score"`
	Likes            int            `json:"likes"`
	Comments         int            `json:"comments"`
	Views            int            `json:"views"`
	HashtagFrequency int            `json:"hashtag_frequency"`
	PostAgeDays      float64        `json:"post_age_days"`
	Breakdown        ScoreBreakdown `json:"score_breakdown"`
}

// Item is a normalized hotel, attraction or restaurant. Trend is set only
// for items derived from social posts.
type Item struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Address      string      `json:"address"`
	Rating       float64     `json:"rating"`
	PriceLevel   int         `json:"price_level"`
	NightlyPrice float64     `json:"price_per_night,omitempty"`
	Types        []string    `json:"types"`
	Amenities    []string    `json:"amenities"`
	Location     Coordinates `json:"location"`
	Photos       []string    `json:"photos"`
	Description  string      `json:"description"`
	URL          string      `json:"url,omitempty"`
	Source       Source      `json:"source"`
	Trend        *Trend      `json:"trend,omitempty"`
}

// BasicInfo describes the queried location.
type BasicInfo struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
	Timestamp   time.Time   `json:"timestamp"`
}

// Airport is an airport near the queried location.
type Airport struct {
	Name           string  `json:"name"`
	Code           string  `json:"code"`
	DistanceKm     float64 `json:"distance_km"`
	Transportation string  `json:"transportation"`
}

// Transportation describes how to get to and around the location.
type Transportation struct {
	Coordinates    Coordinates `json:"coordinates"`
	Options        []string    `json:"transportation_options"`
	NearbyAirports []Airport   `json:"nearby_airports"`
	TransitInfo    string      `json:"public_transit_info"`
	Source         Source      `json:"source"`
}

// AggregatedResult is the outcome of one aggregation.
type AggregatedResult struct {
	Location           string         `json:"location"`
	BasicInfo          BasicInfo      `json:"basic_info"`
	Hotels             []Item         `json:"hotels"`
	Attractions        []Item         `json:"attractions"`
	Restaurants        []Item         `json:"restaurants"`
	Transportation     Transportation `json:"transportation"`
	AggregatedAt       time.Time      `json:"aggregated_at"`
	CacheKey           string         `json:"cache_key"`
	Degraded           bool           `json:"degraded"`
	DegradedCategories []string       `json:"degraded_categories"`
}
