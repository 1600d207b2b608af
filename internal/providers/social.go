package providers

import (
	"context"
	"net/url"
	"time"

	"github.com/alex-user-go/tripdata/internal/search/types"
)

const socialMediaFields = "id,caption,media_url,permalink,timestamp,like_count,comments_count,view_count,location"

// socialTimeLayouts are the timestamp formats seen on the media endpoint.
var socialTimeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

// SocialProvider reads recent posts of a business account from a
// Graph-API-style media endpoint.
type SocialProvider struct {
	client    *apiClient
	accountID string
}

// NewSocialProvider creates a new SocialProvider. Both the access token
// (Settings.APIKey) and accountID are required for it to be available.
func NewSocialProvider(s Settings, accountID string, d Deps) *SocialProvider {
	return &SocialProvider{
		client:    newAPIClient(s, d),
		accountID: accountID,
	}
}

type socialMediaResponse struct {
	Data []socialMedia `json:"data"`
}

type socialMedia struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaURL      string `json:"media_url"`
	Permalink     string `json:"permalink"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
	ViewCount     *int   `json:"view_count"`
	Location      *struct {
		Name      string   `json:"name"`
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"location"`
}

// Name returns the provider name.
func (p *SocialProvider) Name() string {
	return p.client.name
}

// RecentPosts returns the account's most recent posts. The media endpoint
// has no location filter; venue matching happens downstream.
func (p *SocialProvider) RecentPosts(ctx context.Context, _ string) ([]Post, error) {
	if p.client.apiKey == "" || p.accountID == "" {
		return nil, ErrNoCredentials
	}

	return guarded(ctx, p.client.guard, func(ctx context.Context) ([]Post, error) {
		q := url.Values{}
		q.Set("fields", socialMediaFields)
		q.Set("limit", "25")
		q.Set("access_token", p.client.apiKey)

		var resp socialMediaResponse
		if err := p.client.getJSON(ctx, "/"+url.PathEscape(p.accountID)+"/media", q, nil, &resp); err != nil {
			return nil, err
		}

		posts := make([]Post, 0, len(resp.Data))
		for _, m := range resp.Data {
			posts = append(posts, toPost(m))
		}
		return posts, nil
	})
}

func toPost(m socialMedia) Post {
	likes := max(0, m.LikeCount)
	comments := max(0, m.CommentsCount)

	// Views are not reported for images; estimate from likes.
	views := likes * 5
	if m.ViewCount != nil {
		views = max(0, *m.ViewCount)
	}

	post := Post{
		ID:        m.ID,
		Caption:   m.Caption,
		Likes:     likes,
		Comments:  comments,
		Views:     views,
		Timestamp: parseSocialTime(m.Timestamp),
		MediaURL:  m.MediaURL,
		Permalink: m.Permalink,
	}
	if m.Location != nil {
		post.Venue = m.Location.Name
		if m.Location.Latitude != nil && m.Location.Longitude != nil {
			post.Location = &types.Coordinates{Lat: *m.Location.Latitude, Lng: *m.Location.Longitude}
		}
	}
	return post
}

// parseSocialTime returns the zero time for missing or unparseable values.
func parseSocialTime(s string) time.Time {
	for _, layout := range socialTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
