package search

import (
	"slices"
	"strings"

	"github.com/alex-user-go/tripdata/internal/search/types"
)

// interestPlaceTypes maps traveler interests to place types.
var interestPlaceTypes = map[string][]string{
	"Culture & History": {"museum", "church", "historical_site"},
	"Food & Dining":     {"restaurant", "food"},
	"Nature & Outdoor":  {"park", "zoo", "aquarium"},
	"Nightlife":         {"bar", "night_club"},
	"Shopping":          {"shopping_mall", "store"},
	"Adventure":         {"amusement_park", "tourist_attraction"},
	"Relaxation":        {"spa", "park"},
	"Art & Museums":     {"museum", "art_gallery"},
}

// PlaceTypes returns the attraction place types to search for the given
// interests, without duplicates, always including tourist_attraction.
// Unknown interests are ignored.
func PlaceTypes(interests []string) []string {
	var out []string
	for _, interest := range interests {
		for _, t := range interestPlaceTypes[interest] {
			if !slices.Contains(out, t) {
				out = append(out, t)
			}
		}
	}
	if !slices.Contains(out, "tourist_attraction") {
		out = append(out, "tourist_attraction")
	}
	return out
}

// NormalizeQuery trims the location and interests, and sorts and
// deduplicates interests so that equivalent queries compare equal.
func NormalizeQuery(q types.Query) types.Query {
	q.Location = strings.TrimSpace(q.Location)

	interests := make([]string, 0, len(q.Interests))
	for _, i := range q.Interests {
		if i = strings.TrimSpace(i); i != "" {
			interests = append(interests, i)
		}
	}
	slices.Sort(interests)
	q.Interests = slices.Compact(interests)

	if q.Travelers < 1 {
		q.Travelers = 1
	}
	if q.Duration < 1 {
		q.Duration = 1
	}
	return q
}
