package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// venues are the locations tagged on generated posts.
var venues = []struct {
	name     string
	lat, lng float64
}{
	{"Cafe de Flore", 48.8541, 2.3326},
	{"Le Comptoir", 48.8519, 2.3387},
	{"Harbor Grill", 51.5072, -0.1276},
}

type media struct {
	ID            string         `json:"id"`
	Caption       string         `json:"caption"`
	MediaURL      string         `json:"media_url"`
	Permalink     string         `json:"permalink"`
	Timestamp     string         `json:"timestamp"`
	LikeCount     int            `json:"like_count"`
	CommentsCount int            `json:"comments_count"`
	ViewCount     *int           `json:"view_count,omitempty"`
	Location      *mediaLocation `json:"location,omitempty"`
}

type mediaLocation struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SocialMock serves an account's media list in the Graph API wire format
// with 60-240ms latency and a 10% failure rate.
type SocialMock struct {
	sim *simulator
}

// NewSocialMock creates a new SocialMock.
func NewSocialMock(logger *slog.Logger) *SocialMock {
	return &SocialMock{
		sim: newSimulator(60*time.Millisecond, 180*time.Millisecond, 0.1, logger),
	}
}

// Register mounts the mock endpoints.
func (s *SocialMock) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{account}/media", s.media)
}

func (s *SocialMock) media(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("access_token") == "" {
		http.Error(w, "missing access token", http.StatusUnauthorized)
		return
	}

	if err := s.sim.delay(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	account := r.PathValue("account")
	now := time.Now().UTC()

	posts := make([]media, 0, 12)
	for i := range 12 {
		m := media{
			ID:            fmt.Sprintf("%s_%d", account, i+1),
			MediaURL:      fmt.Sprintf("https://media.example.com/%s/%d.jpg", account, i+1),
			Permalink:     fmt.Sprintf("https://social.example.com/p/%s%d", account, i+1),
			Timestamp:     now.Add(-time.Duration(s.sim.intn(14*24)) * time.Hour).Format("2006-01-02T15:04:05-0700"),
			LikeCount:     s.sim.intn(5000),
			CommentsCount: s.sim.intn(300),
		}

		// Every fourth post is an untagged photo.
		if i%4 == 3 {
			m.Caption = "Sunday vibes"
		} else {
			v := venues[s.sim.intn(len(venues))]
			m.Caption = fmt.Sprintf("Amazing dinner at @%s tonight", v.name)
			m.Location = &mediaLocation{Name: v.name, Latitude: v.lat, Longitude: v.lng}
			views := m.LikeCount * (3 + s.sim.intn(8))
			m.ViewCount = &views
		}
		posts = append(posts, m)
	}

	s.sim.writeJSON(w, map[string]any{"data": posts})
}
