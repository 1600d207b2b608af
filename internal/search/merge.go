package search

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/search/types"
)

// Per-category result caps.
var categoryCaps = map[types.Category]int{
	types.CategoryHotels:      20,
	types.CategoryAttractions: 30,
	types.CategoryRestaurants: 25,
}

// idPrefixes name synthesized ids of items whose provider reported none.
var idPrefixes = map[types.Category]string{
	types.CategoryHotels:      "hotel",
	types.CategoryAttractions: "attraction",
	types.CategoryRestaurants: "restaurant",
}

// Candidate is a raw fact awaiting merge. Trend is set for venues derived
// from social posts and doubles as the candidate's dedup priority.
type Candidate struct {
	Fact  providers.RawFact
	Trend *types.Trend
}

func (c Candidate) priority() float64 {
	if c.Trend == nil {
		return 0
	}
	return c.Trend.Score
}

// ProviderResult is the outcome of one provider call for a category.
type ProviderResult struct {
	Provider   string
	Candidates []Candidate
	Err        error
}

// MergeParams are the category-specific merge inputs.
type MergeParams struct {
	Category  types.Category
	Location  string
	Budget    float64
	Travelers int
}

// Merge combines per-provider results, given in a fixed provider order, into
// one deduplicated, filtered and ranked item list. When there are no
// provider results or all of them failed it returns the category fallback
// and degraded = true.
func Merge(results []ProviderResult, p MergeParams) (items []types.Item, degraded bool) {
	var flat []Candidate
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			continue
		}
		flat = append(flat, r.Candidates...)
	}
	if len(results) == 0 || failed == len(results) {
		return fallbackItems(p.Category, p.Location), true
	}

	kept := dedup(flat)

	items = make([]types.Item, 0, len(kept))
	for i, c := range kept {
		item := normalize(c, p.Category, i)
		if p.Category == types.CategoryHotels && !withinBudget(item, p.Budget, p.Travelers) {
			continue
		}
		items = append(items, item)
	}

	slices.SortStableFunc(items, func(a, b types.Item) int {
		return cmp.Compare(b.Rating, a.Rating)
	})

	if limit := categoryCaps[p.Category]; limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, false
}

// dedup keeps one candidate per case-folded trimmed name. The first one seen
// wins unless a later one has a strictly greater priority, which then takes
// over the earlier one's position.
func dedup(candidates []Candidate) []Candidate {
	var (
		kept  []Candidate
		index = make(map[string]int)
	)
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Fact.Name))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if c.priority() > kept[i].priority() {
				kept[i] = c
			}
			continue
		}
		index[key] = len(kept)
		kept = append(kept, c)
	}
	return kept
}

func normalize(c Candidate, category types.Category, pos int) types.Item {
	f := c.Fact

	id := strings.TrimSpace(f.ID)
	if id == "" {
		id = fmt.Sprintf("%s_%d", idPrefixes[category], pos)
	}

	item := types.Item{
		ID:           id,
		Name:         strings.TrimSpace(f.Name),
		Address:      f.Address,
		Rating:       clamp(finite(f.Rating), 0, 5),
		PriceLevel:   clamp(f.PriceLevel, 0, 4),
		NightlyPrice: max(0, finite(f.NightlyPrice)),
		Types:        orEmpty(f.Types),
		Amenities:    orEmpty(f.Amenities),
		Location:     f.Location,
		Photos:       orEmpty(f.Photos),
		Description:  f.Description,
		URL:          f.URL,
		Source:       f.Source,
	}
	if c.Trend != nil {
		t := *c.Trend
		item.Trend = &t
	}
	return item
}

// withinBudget reports whether a hotel's nightly price fits the per-traveler
// budget. Unknown prices always pass.
func withinBudget(item types.Item, budget float64, travelers int) bool {
	if item.NightlyPrice == 0 {
		return true
	}
	return item.NightlyPrice <= budget/float64(max(1, travelers))
}

func clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// finite maps NaN and infinities to 0, the "not reported" value.
func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
