package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alex-user-go/tripdata/internal/providers"
)

// knownCities are the places the geocoding endpoint resolves.
var knownCities = map[string][2]float64{
	"paris":     {48.8566, 2.3522},
	"london":    {51.5074, -0.1278},
	"rome":      {41.9028, 12.4964},
	"barcelona": {41.3874, 2.1686},
	"tokyo":     {35.6762, 139.6503},
	"new york":  {40.7128, -74.0060},
}

// placeNames are the name stems generated per place type.
var placeNames = map[string][]string{
	"lodging":            {"Grand Hotel", "City Center Inn", "Budget Stay", "Riverside Suites"},
	"restaurant":         {"Le Petit Bistro", "Trattoria Roma", "Garden Table", "Harbor Grill"},
	"museum":             {"National Museum", "Museum of Modern Art", "History Hall"},
	"tourist_attraction": {"Old Town Square", "Observation Tower", "Royal Gardens"},
	"park":               {"Central Park", "Botanical Garden"},
	"church":             {"Cathedral of Saint Mary", "Old Chapel"},
	"airport":            {"International Airport"},
}

type mapsPlace struct {
	PlaceID          string        `json:"place_id"`
	Name             string        `json:"name"`
	Vicinity         string        `json:"vicinity"`
	Rating           float64       `json:"rating"`
	UserRatingsTotal int           `json:"user_ratings_total"`
	PriceLevel       int           `json:"price_level"`
	Types            []string      `json:"types"`
	Geometry         mapsGeometry  `json:"geometry"`
	Photos           []mapsPhotoID `json:"photos"`
}

type mapsGeometry struct {
	Location mapsLatLng `json:"location"`
}

type mapsLatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type mapsPhotoID struct {
	PhotoReference string `json:"photo_reference"`
}

// MapsMock serves geocoding and nearby search in the Places wire format
// with 50-250ms latency and a 10% failure rate.
type MapsMock struct {
	sim *simulator
}

// NewMapsMock creates a new MapsMock.
func NewMapsMock(logger *slog.Logger) *MapsMock {
	return &MapsMock{
		sim: newSimulator(50*time.Millisecond, 200*time.Millisecond, 0.1, logger),
	}
}

// Register mounts the mock endpoints.
func (m *MapsMock) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /geocode/json", m.geocode)
	mux.HandleFunc("GET /place/nearbysearch/json", m.nearby)
}

func (m *MapsMock) geocode(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" || r.URL.Query().Get("key") == "" {
		m.sim.writeJSON(w, map[string]any{"status": "REQUEST_DENIED", "error_message": "missing address or key"})
		return
	}

	if err := m.sim.delay(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	coords, ok := knownCities[strings.ToLower(providers.CityOf(address))]
	if !ok {
		m.sim.writeJSON(w, map[string]any{"status": "ZERO_RESULTS", "results": []any{}})
		return
	}

	m.sim.writeJSON(w, map[string]any{
		"status": "OK",
		"results": []map[string]any{{
			"formatted_address": address,
			"geometry":          mapsGeometry{Location: mapsLatLng{Lat: coords[0], Lng: coords[1]}},
		}},
	})
}

func (m *MapsMock) nearby(w http.ResponseWriter, r *http.Request) {
	lat, lng, ok := parseLatLng(r.URL.Query().Get("location"))
	placeType := r.URL.Query().Get("type")
	if !ok || placeType == "" {
		m.sim.writeJSON(w, map[string]any{"status": "INVALID_REQUEST", "error_message": "location and type are required"})
		return
	}

	if err := m.sim.delay(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	names, ok := placeNames[placeType]
	if !ok {
		m.sim.writeJSON(w, map[string]any{"status": "ZERO_RESULTS", "results": []any{}})
		return
	}

	results := make([]mapsPlace, 0, len(names))
	for i, name := range names {
		results = append(results, mapsPlace{
			PlaceID:          fmt.Sprintf("%s_%d", placeType, i+1),
			Name:             name,
			Vicinity:         fmt.Sprintf("%d Main Street", 10*(i+1)),
			Rating:           m.sim.between(3.5, 5),
			UserRatingsTotal: 50 + m.sim.intn(2000),
			PriceLevel:       1 + m.sim.intn(4),
			Types:            []string{placeType, "point_of_interest", "establishment"},
			Geometry: mapsGeometry{Location: mapsLatLng{
				Lat: lat + float64(i)*0.002,
				Lng: lng - float64(i)*0.002,
			}},
			Photos: []mapsPhotoID{{PhotoReference: fmt.Sprintf("ref-%s-%d", placeType, i+1)}},
		})
	}

	m.sim.writeJSON(w, map[string]any{"status": "OK", "results": results})
}

func parseLatLng(s string) (lat, lng float64, ok bool) {
	a, b, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
