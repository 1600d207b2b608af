package providers

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/serjvanilla/go-overpass"

	"github.com/alex-user-go/tripdata/internal/search/types"
)

// osmFilters maps place types to Overpass tag filters.
var osmFilters = map[string]string{
	"lodging":            `["tourism"~"^(hotel|hostel|guest_house|motel|apartment)$"]`,
	"restaurant":         `["amenity"="restaurant"]`,
	"food":               `["amenity"~"^(cafe|fast_food|food_court)$"]`,
	"museum":             `["tourism"="museum"]`,
	"church":             `["amenity"="place_of_worship"]`,
	"historical_site":    `["historic"]`,
	"tourist_attraction": `["tourism"~"^(attraction|viewpoint)$"]`,
	"park":               `["leisure"="park"]`,
	"zoo":                `["tourism"="zoo"]`,
	"aquarium":           `["tourism"="aquarium"]`,
	"bar":                `["amenity"~"^(bar|pub)$"]`,
	"night_club":         `["amenity"="nightclub"]`,
	"shopping_mall":      `["shop"="mall"]`,
	"store":              `["shop"~"^(department_store|gift|souvenir)$"]`,
	"amusement_park":     `["tourism"="theme_park"]`,
	"spa":                `["leisure"~"^(spa|sauna)$"]`,
	"art_gallery":        `["tourism"="gallery"]`,
}

// osmTypeKeys are the tags whose values are reported as item types.
var osmTypeKeys = []string{"tourism", "amenity", "leisure", "historic", "shop"}

// OverpassProvider is a maps provider backed by OpenStreetMap data served by
// an Overpass API endpoint. It needs no credentials.
type OverpassProvider struct {
	name   string
	client *overpass.Client
	guard  *guard
	radius int
}

// NewOverpassProvider creates a new OverpassProvider. radius is the nearby
// search radius in meters.
func NewOverpassProvider(s Settings, radius int, d Deps) *OverpassProvider {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	client := overpass.NewWithSettings(s.BaseURL, 2, httpClient)

	return &OverpassProvider{
		name:   s.Name,
		client: &client,
		guard:  newGuard(s, d),
		radius: radius,
	}
}

// Name returns the provider name.
func (p *OverpassProvider) Name() string {
	return p.name
}

// Geocode looks up a populated place node by name. When several places
// share the name, the most populous one wins.
func (p *OverpassProvider) Geocode(ctx context.Context, location string) (types.Coordinates, error) {
	city := CityOf(location)
	query := fmt.Sprintf(`[out:json][timeout:10];
node["place"~"^(city|town|village|hamlet|suburb)$"]["name"="%s"];
out body;`, escapeOverpass(city))

	return guarded(ctx, p.guard, func(ctx context.Context) (types.Coordinates, error) {
		result, err := p.query(ctx, query)
		if err != nil {
			return types.Coordinates{}, err
		}

		var (
			best    *overpass.Node
			bestPop = -1
		)
		for _, node := range sortedNodes(result) {
			pop, _ := strconv.Atoi(node.Tags["population"])
			if pop > bestPop {
				best, bestPop = node, pop
			}
		}
		if best == nil {
			return types.Coordinates{}, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
		}

		return types.Coordinates{Lat: best.Lat, Lng: best.Lon}, nil
	})
}

// SearchCategory finds named OSM features matching categoryHint around the
// location. Unknown hints and unknown locations yield no items.
func (p *OverpassProvider) SearchCategory(ctx context.Context, location, categoryHint string) ([]RawFact, error) {
	filter, ok := osmFilters[categoryHint]
	if !ok {
		return []RawFact{}, nil
	}

	center, err := p.Geocode(ctx, location)
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return []RawFact{}, nil
		}
		return nil, err
	}

	return p.SearchNearby(ctx, center, categoryHint)
}

// SearchNearby finds named OSM features matching categoryHint around center.
func (p *OverpassProvider) SearchNearby(ctx context.Context, center types.Coordinates, categoryHint string) ([]RawFact, error) {
	filter, ok := osmFilters[categoryHint]
	if !ok {
		return []RawFact{}, nil
	}

	around := fmt.Sprintf("(around:%d,%s)", p.radius, formatLatLng(center))
	query := fmt.Sprintf(`[out:json][timeout:15];
(
  node%[1]s%[2]s;
  way%[1]s%[2]s;
);
out body;
>;
out skel qt;`, filter, around)

	return guarded(ctx, p.guard, func(ctx context.Context) ([]RawFact, error) {
		result, err := p.query(ctx, query)
		if err != nil {
			return nil, err
		}

		facts := make([]RawFact, 0)
		for _, node := range sortedNodes(result) {
			if node.Tags["name"] == "" {
				continue
			}
			facts = append(facts, osmFact("node", node.ID, node.Tags, types.Coordinates{Lat: node.Lat, Lng: node.Lon}, categoryHint))
		}
		for _, way := range sortedWays(result) {
			if way.Tags["name"] == "" {
				continue
			}
			facts = append(facts, osmFact("way", way.ID, way.Tags, wayCenter(way), categoryHint))
		}
		return facts, nil
	})
}

// NearbyAirports lists airports with an IATA code around center, nearest first.
func (p *OverpassProvider) NearbyAirports(ctx context.Context, center types.Coordinates, radiusMeters int) ([]types.Airport, error) {
	around := fmt.Sprintf("(around:%d,%s)", radiusMeters, formatLatLng(center))
	query := fmt.Sprintf(`[out:json][timeout:15];
(
  node["aeroway"="aerodrome"]["iata"]%[1]s;
  way["aeroway"="aerodrome"]["iata"]%[1]s;
);
out body;
>;
out skel qt;`, around)

	return guarded(ctx, p.guard, func(ctx context.Context) ([]types.Airport, error) {
		result, err := p.query(ctx, query)
		if err != nil {
			return nil, err
		}

		var airports []types.Airport
		add := func(tags map[string]string, at types.Coordinates) {
			if tags["iata"] == "" || tags["name"] == "" {
				return
			}
			airports = append(airports, types.Airport{
				Name:           tags["name"],
				Code:           tags["iata"],
				DistanceKm:     math.Round(haversineKm(center, at)*10) / 10,
				Transportation: "Taxi, Public Transit, Rideshare",
			})
		}
		for _, node := range sortedNodes(result) {
			add(node.Tags, types.Coordinates{Lat: node.Lat, Lng: node.Lon})
		}
		for _, way := range sortedWays(result) {
			add(way.Tags, wayCenter(way))
		}

		slices.SortStableFunc(airports, func(a, b types.Airport) int {
			return cmp.Compare(a.DistanceKm, b.DistanceKm)
		})
		return airports, nil
	})
}

// query runs an Overpass query, giving up when ctx is done. The client has
// no context support, so an abandoned query finishes in the background
// bounded by the HTTP client timeout.
func (p *OverpassProvider) query(ctx context.Context, q string) (overpass.Result, error) {
	type reply struct {
		result overpass.Result
		err    error
	}

	ch := make(chan reply, 1)
	go func() {
		result, err := p.client.Query(q)
		ch <- reply{result: result, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return overpass.Result{}, fmt.Errorf("overpass query failed: %w", r.err)
		}
		return r.result, nil
	case <-ctx.Done():
		return overpass.Result{}, context.Cause(ctx)
	}
}

func osmFact(kind string, id int64, tags map[string]string, at types.Coordinates, hint string) RawFact {
	placeTypes := []string{hint}
	for _, key := range osmTypeKeys {
		if v := tags[key]; v != "" && v != "yes" && !slices.Contains(placeTypes, v) {
			placeTypes = append(placeTypes, v)
		}
	}

	var amenities []string
	switch tags["internet_access"] {
	case "wlan", "wifi", "yes":
		amenities = append(amenities, "WiFi")
	}
	if tags["wheelchair"] == "yes" {
		amenities = append(amenities, "Wheelchair Accessible")
	}

	// Hotel star ratings are the only rating OSM carries.
	// The tag is free text; ParseFloat also accepts "nan" and "inf".
	var rating float64
	stars, err := strconv.ParseFloat(strings.TrimSuffix(tags["stars"], "S"), 64)
	if err == nil && !math.IsNaN(stars) && !math.IsInf(stars, 0) {
		rating = stars
	}

	return RawFact{
		ID:          fmt.Sprintf("osm_%s_%d", kind, id),
		Name:        tags["name"],
		Address:     osmAddress(tags),
		Rating:      rating,
		Types:       placeTypes,
		Amenities:   amenities,
		Location:    at,
		Description: tags["description"],
		URL:         tags["website"],
		Source:      types.SourceMaps,
	}
}

func osmAddress(tags map[string]string) string {
	street := strings.TrimSpace(tags["addr:street"] + " " + tags["addr:housenumber"])
	parts := make([]string, 0, 2)
	if street != "" {
		parts = append(parts, street)
	}
	if city := tags["addr:city"]; city != "" {
		parts = append(parts, city)
	}
	return strings.Join(parts, ", ")
}

func sortedNodes(r overpass.Result) []*overpass.Node {
	nodes := make([]*overpass.Node, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b *overpass.Node) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return nodes
}

func sortedWays(r overpass.Result) []*overpass.Way {
	ways := make([]*overpass.Way, 0, len(r.Ways))
	for _, w := range r.Ways {
		ways = append(ways, w)
	}
	slices.SortFunc(ways, func(a, b *overpass.Way) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return ways
}

// wayCenter averages the way's node positions, falling back to the centre
// of its bounds.
func wayCenter(way *overpass.Way) types.Coordinates {
	var lat, lon float64
	count := 0
	for _, node := range way.Nodes {
		if node == nil {
			continue
		}
		lat += node.Lat
		lon += node.Lon
		count++
	}
	if count > 0 {
		return types.Coordinates{Lat: lat / float64(count), Lng: lon / float64(count)}
	}
	if way.Bounds != nil {
		return types.Coordinates{
			Lat: (way.Bounds.Min.Lat + way.Bounds.Max.Lat) / 2,
			Lng: (way.Bounds.Min.Lon + way.Bounds.Max.Lon) / 2,
		}
	}
	return types.Coordinates{}
}

// haversineKm returns the great-circle distance between two points in km.
func haversineKm(a, b types.Coordinates) float64 {
	const earthRadiusKm = 6371.0

	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func escapeOverpass(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
