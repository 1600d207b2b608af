package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alex-user-go/tripdata/internal/providers"
)

// directoryNames are the businesses listed per directory category.
var directoryNames = map[string][]string{
	"hotels":      {"Grand Hotel", "Budget Stay", "Luxury Palace", "Seaside Resort"},
	"restaurants": {"Le Petit Bistro", "Sushi Corner", "Harbor Grill"},
}

type business struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Rating      float64          `json:"rating"`
	Price       string           `json:"price,omitempty"`
	ReviewCount int              `json:"review_count"`
	ImageURL    string           `json:"image_url"`
	URL         string           `json:"url"`
	Categories  []businessAlias  `json:"categories"`
	Coordinates businessCoords   `json:"coordinates"`
	Location    businessLocation `json:"location"`
}

type businessAlias struct {
	Alias string `json:"alias"`
	Title string `json:"title"`
}

type businessCoords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type businessLocation struct {
	DisplayAddress []string `json:"display_address"`
}

// DirectoryMock serves business search in the Yelp wire format with
// 75-300ms latency and a 15% failure rate.
type DirectoryMock struct {
	sim *simulator
}

// NewDirectoryMock creates a new DirectoryMock.
func NewDirectoryMock(logger *slog.Logger) *DirectoryMock {
	return &DirectoryMock{
		sim: newSimulator(75*time.Millisecond, 225*time.Millisecond, 0.15, logger),
	}
}

// Register mounts the mock endpoints.
func (d *DirectoryMock) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /businesses/search", d.search)
}

func (d *DirectoryMock) search(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	location := strings.TrimSpace(r.URL.Query().Get("location"))
	category := r.URL.Query().Get("categories")
	if location == "" || category == "" {
		http.Error(w, "missing required parameters", http.StatusBadRequest)
		return
	}

	if err := d.sim.delay(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	city := providers.CityOf(location)
	names := directoryNames[category]
	businesses := make([]business, 0, len(names)+1)
	for i, name := range names {
		businesses = append(businesses, business{
			ID:          fmt.Sprintf("%s-%s-%d", strings.ToLower(city), category, i+1),
			Name:        name,
			Rating:      d.sim.between(3, 5),
			Price:       strings.Repeat("$", 1+d.sim.intn(4)),
			ReviewCount: 10 + d.sim.intn(900),
			ImageURL:    fmt.Sprintf("https://images.example.com/%s/%d.jpg", category, i+1),
			URL:         fmt.Sprintf("https://directory.example.com/biz/%s-%d", category, i+1),
			Categories:  []businessAlias{{Alias: category, Title: category}},
			Location:    businessLocation{DisplayAddress: []string{fmt.Sprintf("%d Market Street", i+1), city}},
		})
	}

	// Sometimes list the same venue twice with different casing.
	if len(names) > 0 && d.sim.intn(2) == 0 {
		dup := businesses[0]
		dup.ID = dup.ID + "-dup"
		dup.Name = strings.ToUpper(dup.Name)
		dup.Price = ""
		businesses = append(businesses, dup)
	}

	d.sim.writeJSON(w, map[string]any{"businesses": businesses, "total": len(businesses)})
}
