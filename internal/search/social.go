package search

import (
	"unicode/utf8"

	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/search/types"
	"github.com/alex-user-go/tripdata/internal/trend"
)

const captionLimit = 200

// venueCandidates turns scored venues into restaurant candidates carrying
// their trend.
func venueCandidates(venues []trend.Venue, location string) []Candidate {
	out := make([]Candidate, 0, len(venues))
	for _, v := range venues {
		p := v.Post
		fact := providers.RawFact{
			ID:          p.ID,
			Name:        v.Name,
			Address:     v.Name + ", " + location,
			Rating:      trend.EngagementRating(p.Likes, p.Comments),
			PriceLevel:  2,
			Types:       []string{"restaurant", "social_trending"},
			Description: truncate(p.Caption, captionLimit),
			URL:         p.Permalink,
			Source:      types.SourceSocial,
		}
		if p.Location != nil {
			fact.Location = *p.Location
		}
		if p.MediaURL != "" {
			fact.Photos = []string{p.MediaURL}
		}

		t := v.Trend
		out = append(out, Candidate{Fact: fact, Trend: &t})
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
