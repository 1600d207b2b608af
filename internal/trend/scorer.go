// Package trend ranks venues by their popularity in social posts.
package trend

import (
	"cmp"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/search/types"
)

// Score weights. They sum to 1, which keeps scores in [0,1].
const (
	weightFrequency = 0.45
	weightLikes     = 0.25
	weightViews     = 0.15
	weightComments  = 0.10
	weightRecency   = 0.05
)

// Normalization ceilings.
const (
	likesCeiling    = 10000.0
	viewsCeiling    = 50000.0
	commentsCeiling = 500.0
	recencyDays     = 30.0

	// unknownAgeDays is the age assumed for posts without a timestamp.
	unknownAgeDays = 999.0
)

var mentionRe = regexp.MustCompile(`@(\w+)`)

// Venue is a venue with its trending score and representative post.
type Venue struct {
	Name  string
	Post  providers.Post
	Trend types.Trend
}

// Scorer computes trending scores. It is safe for concurrent use.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a Scorer. now defaults to time.Now.
func NewScorer(now func() time.Time) *Scorer {
	if now == nil {
		now = time.Now
	}
	return &Scorer{now: now}
}

// Score groups posts by venue and returns one entry per venue, highest
// score first. Posts without a resolvable venue are discarded.
func (s *Scorer) Score(posts []providers.Post) []Venue {
	type group struct {
		name  string
		posts []providers.Post
	}

	var (
		groups = make(map[string]*group)
		order  []string
	)
	for _, p := range posts {
		name := s.VenueName(p)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		g, ok := groups[key]
		if !ok {
			g = &group{name: name}
			groups[key] = g
			order = append(order, key)
		}
		g.posts = append(g.posts, p)
	}

	maxFreq := 0
	for _, g := range groups {
		maxFreq = max(maxFreq, len(g.posts))
	}

	now := s.now()
	venues := make([]Venue, 0, len(order))
	for _, key := range order {
		g := groups[key]
		freqNorm := float64(len(g.posts)) / float64(maxFreq)

		var best Venue
		for i, p := range g.posts {
			t := score(freqNorm, len(g.posts), p, now)
			if i == 0 || t.Score > best.Trend.Score {
				best = Venue{Name: g.name, Post: p, Trend: t}
			}
		}
		venues = append(venues, best)
	}

	slices.SortStableFunc(venues, func(a, b Venue) int {
		return cmp.Compare(b.Trend.Score, a.Trend.Score)
	})
	return venues
}

// VenueName resolves the venue of a post: the explicit location tag, else
// the first @mention in the caption, title-cased with underscores as spaces.
// It returns "" when neither is present.
func (s *Scorer) VenueName(p providers.Post) string {
	if name := strings.TrimSpace(p.Venue); name != "" {
		return name
	}

	m := mentionRe.FindStringSubmatch(p.Caption)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(strings.ReplaceAll(m[1], "_", " "))
	if name == "" {
		return ""
	}
	// Casers are stateful; one per call.
	return cases.Title(language.Und).String(name)
}

func score(freqNorm float64, freq int, p providers.Post, now time.Time) types.Trend {
	age := unknownAgeDays
	if !p.Timestamp.IsZero() {
		age = max(0, now.Sub(p.Timestamp).Hours()/24)
	}

	b := types.ScoreBreakdown{
		Frequency: freqNorm,
		Likes:     math.Min(1, float64(p.Likes)/likesCeiling),
		Views:     math.Min(1, float64(p.Views)/viewsCeiling),
		Comments:  math.Min(1, float64(p.Comments)/commentsCeiling),
		Recency:   math.Max(0, 1-age/recencyDays),
	}

	return types.Trend{
		Score: weightFrequency*b.Frequency +
			weightLikes*b.Likes +
			weightViews*b.Views +
			weightComments*b.Comments +
			weightRecency*b.Recency,
		Likes:            p.Likes,
		Comments:         p.Comments,
		Views:            p.Views,
		HashtagFrequency: freq,
		PostAgeDays:      math.Round(age*10) / 10,
		Breakdown:        b,
	}
}

// EngagementRating maps a post's engagement to a 2.5–4.5 star rating.
func EngagementRating(likes, comments int) float64 {
	engagement := likes + 3*comments
	switch {
	case engagement > 1000:
		return 4.5
	case engagement > 500:
		return 4.0
	case engagement > 200:
		return 3.5
	case engagement > 100:
		return 3.0
	default:
		return 2.5
	}
}
