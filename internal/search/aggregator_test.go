package search_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alex-user-go/tripdata/internal/obs"
	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/search"
	"github.com/alex-user-go/tripdata/internal/search/cache"
	"github.com/alex-user-go/tripdata/internal/search/types"
)

var errDown = fmt.Errorf("%w: mock down", providers.ErrProviderUnavailable)

// mockSearcher is a test provider that returns predefined facts per hint.
type mockSearcher struct {
	name   string
	facts  map[string][]providers.RawFact
	err    error
	delay  time.Duration
	panics bool
	calls  atomic.Int32
}

func (m *mockSearcher) Name() string {
	return m.name
}

func (m *mockSearcher) SearchCategory(ctx context.Context, location, hint string) ([]providers.RawFact, error) {
	return m.search(ctx, hint)
}

func (m *mockSearcher) search(ctx context.Context, hint string) ([]providers.RawFact, error) {
	m.calls.Add(1)
	if m.panics {
		panic("mock provider exploded")
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.facts[hint], nil
}

// mockMaps adds geocoding and airport lookup to mockSearcher.
type mockMaps struct {
	mockSearcher
	center   types.Coordinates
	geoErr   error
	airports []types.Airport
	geoCalls atomic.Int32
	searched atomic.Int32 // calls that geocoded on their own
}

func (m *mockMaps) SearchCategory(ctx context.Context, location, hint string) ([]providers.RawFact, error) {
	m.searched.Add(1)
	if _, err := m.Geocode(ctx, location); err != nil {
		return nil, err
	}
	return m.search(ctx, hint)
}

func (m *mockMaps) SearchNearby(ctx context.Context, center types.Coordinates, hint string) ([]providers.RawFact, error) {
	return m.search(ctx, hint)
}

func (m *mockMaps) Geocode(ctx context.Context, location string) (types.Coordinates, error) {
	m.geoCalls.Add(1)
	if m.geoErr != nil {
		return types.Coordinates{}, m.geoErr
	}
	return m.center, nil
}

func (m *mockMaps) NearbyAirports(ctx context.Context, center types.Coordinates, radius int) ([]types.Airport, error) {
	return m.airports, nil
}

type mockSocial struct {
	name  string
	posts []providers.Post
	err   error
}

func (m *mockSocial) Name() string {
	return m.name
}

func (m *mockSocial) RecentPosts(ctx context.Context, location string) ([]providers.Post, error) {
	return m.posts, m.err
}

func newEngine(t *testing.T, src search.Sources, ttl, timeout time.Duration) (*search.Engine, *obs.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	metrics := obs.NewMetrics(prometheus.NewRegistry(), logger)
	return search.NewEngine(src, cache.NewCache(ttl), timeout, metrics, logger), metrics
}

func parisQuery() types.Query {
	return types.Query{
		Location:  "Paris, France",
		Interests: []string{"Culture & History"},
		Budget:    600,
		Travelers: 2,
		Duration:  3,
	}
}

func hotelFact(id, name string, rating, price float64) providers.RawFact {
	return providers.RawFact{ID: id, Name: name, Rating: rating, NightlyPrice: price, Source: types.SourceDirectory}
}

func newDirectory() *mockSearcher {
	return &mockSearcher{
		name: "directory",
		facts: map[string][]providers.RawFact{
			"lodging": {
				hotelFact("d1", "Hotel Lutetia", 4.6, 280),
				hotelFact("d2", "Le Bristol", 4.9, 900),
				hotelFact("d3", "Hotel du Nord", 3.9, 0),
			},
			"restaurant": {
				{ID: "r1", Name: "Septime", Rating: 4.7, PriceLevel: 3, Source: types.SourceDirectory},
				{ID: "r2", Name: "Le Comptoir", Rating: 4.2, PriceLevel: 2, Source: types.SourceDirectory},
			},
		},
	}
}

func newMaps() *mockMaps {
	return &mockMaps{
		mockSearcher: mockSearcher{
			name: "maps",
			facts: map[string][]providers.RawFact{
				"lodging": {
					{ID: "m1", Name: "hotel lutetia", Rating: 4.4, Source: types.SourceMaps},
					{ID: "m2", Name: "Hotel Regina", Rating: 4.5, Source: types.SourceMaps},
				},
				"museum": {
					{ID: "m3", Name: "Louvre", Rating: 4.7, Source: types.SourceMaps},
				},
				"tourist_attraction": {
					{ID: "m4", Name: "Eiffel Tower", Rating: 4.6, Source: types.SourceMaps},
					{ID: "m5", Name: "LOUVRE", Rating: 4.0, Source: types.SourceMaps},
				},
			},
		},
		center:   types.Coordinates{Lat: 48.8566, Lng: 2.3522},
		airports: []types.Airport{{Name: "Orly", Code: "ORY", DistanceKm: 14}},
	}
}

func TestEngine_Aggregate_Merging(t *testing.T) {
	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{newDirectory()},
		Maps:        []providers.MapsProvider{newMaps()},
	}, time.Minute, time.Second)

	res := engine.Aggregate(context.Background(), parisQuery())

	if res.Degraded {
		t.Errorf("unexpected degraded result: %v", res.DegradedCategories)
	}

	// Le Bristol is over the 300 per-traveler budget; the maps duplicate
	// of Hotel Lutetia is dropped.
	if got := names(res.Hotels); !slices.Equal(got, []string{"Hotel Lutetia", "Hotel Regina", "Hotel du Nord"}) {
		t.Errorf("hotels = %v", got)
	}
	if res.Hotels[0].Source != types.SourceDirectory {
		t.Errorf("first-seen duplicate should win, got source %q", res.Hotels[0].Source)
	}

	if got := names(res.Attractions); !slices.Equal(got, []string{"Louvre", "Eiffel Tower"}) {
		t.Errorf("attractions = %v", got)
	}
	if got := names(res.Restaurants); !slices.Equal(got, []string{"Septime", "Le Comptoir"}) {
		t.Errorf("restaurants = %v", got)
	}

	if res.BasicInfo.Coordinates.Lat != 48.8566 {
		t.Errorf("basic info coordinates = %+v", res.BasicInfo.Coordinates)
	}
	tr := res.Transportation
	if tr.Source != types.SourceMaps || len(tr.Options) != 5 {
		t.Errorf("unexpected transportation: %+v", tr)
	}
	if len(tr.NearbyAirports) != 1 || tr.NearbyAirports[0].Code != "ORY" {
		t.Errorf("airports = %+v", tr.NearbyAirports)
	}
	if res.CacheKey == "" || res.Location != "Paris, France" {
		t.Errorf("unexpected identity: %q %q", res.CacheKey, res.Location)
	}
}

func TestEngine_Aggregate_AllProvidersDown(t *testing.T) {
	tests := []struct {
		name string
		src  search.Sources
	}{
		{
			name: "no providers configured",
			src:  search.Sources{},
		},
		{
			name: "every provider unavailable",
			src: search.Sources{
				Directories: []providers.CategorySearcher{&mockSearcher{name: "directory", err: providers.ErrNoCredentials}},
				Maps: []providers.MapsProvider{&mockMaps{
					mockSearcher: mockSearcher{name: "maps", err: errDown},
					geoErr:       errDown,
				}},
				Social: []providers.PostSource{&mockSocial{name: "social", err: providers.ErrNoCredentials}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, metrics := newEngine(t, tt.src, time.Minute, time.Second)

			res := engine.Aggregate(context.Background(), parisQuery())

			if !res.Degraded {
				t.Fatal("expected degraded result")
			}
			for cat, items := range map[string][]types.Item{
				"hotels":      res.Hotels,
				"attractions": res.Attractions,
				"restaurants": res.Restaurants,
			} {
				if len(items) != 1 || items[0].Source != types.SourceFallback {
					t.Errorf("%s: expected one fallback item, got %+v", cat, items)
				}
			}
			if res.Transportation.Source != types.SourceFallback || len(res.Transportation.Options) != 4 {
				t.Errorf("unexpected transportation: %+v", res.Transportation)
			}
			want := []string{"hotels", "attractions", "restaurants", "transportation"}
			if !slices.Equal(res.DegradedCategories, want) {
				t.Errorf("degraded categories = %v, want %v", res.DegradedCategories, want)
			}
			if got := testutil.ToFloat64(metrics.DegradedTotal.WithLabelValues("hotels")); got != 1 {
				t.Errorf("degraded metric = %v, want 1", got)
			}
		})
	}
}

func TestEngine_Aggregate_PartialFailure(t *testing.T) {
	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{&mockSearcher{name: "directory", err: errDown}},
		Maps:        []providers.MapsProvider{newMaps()},
	}, time.Minute, time.Second)

	res := engine.Aggregate(context.Background(), parisQuery())

	if res.Degraded {
		t.Errorf("one healthy provider should prevent degradation, got %v", res.DegradedCategories)
	}
	if got := names(res.Hotels); !slices.Equal(got, []string{"Hotel Regina", "hotel lutetia"}) {
		t.Errorf("hotels = %v", got)
	}
}

func TestEngine_Aggregate_ProviderPanic(t *testing.T) {
	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{&mockSearcher{name: "directory", panics: true}},
		Maps:        []providers.MapsProvider{newMaps()},
	}, time.Minute, time.Second)

	res := engine.Aggregate(context.Background(), parisQuery())

	if slices.Contains(res.DegradedCategories, "hotels") {
		t.Error("hotels should be served by the maps provider")
	}
	if len(res.Hotels) != 2 {
		t.Errorf("expected 2 hotels, got %d", len(res.Hotels))
	}
}

func TestEngine_Aggregate_ProviderTimeout(t *testing.T) {
	slow := newDirectory()
	slow.delay = time.Second

	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{slow},
		Maps:        []providers.MapsProvider{newMaps()},
	}, time.Minute, 50*time.Millisecond)

	start := time.Now()
	res := engine.Aggregate(context.Background(), parisQuery())

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("aggregation took %v, timeout not applied", elapsed)
	}
	if res.Degraded {
		t.Errorf("timed out provider should only be excluded, got %v", res.DegradedCategories)
	}
	if got := names(res.Hotels); !slices.Equal(got, []string{"Hotel Regina", "hotel lutetia"}) {
		t.Errorf("hotels = %v", got)
	}
}

func TestEngine_Aggregate_SocialTrending(t *testing.T) {
	now := time.Now()
	social := &mockSocial{
		name: "social",
		posts: []providers.Post{
			{ID: "p1", Venue: "le comptoir", Likes: 5000, Views: 20000, Comments: 100, Timestamp: now.Add(-24 * time.Hour), Permalink: "https://social.example/p1"},
			{ID: "p2", Caption: "brunch at @holybelly", Likes: 50, Timestamp: now},
		},
	}

	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{newDirectory()},
		Social:      []providers.PostSource{social},
	}, time.Minute, time.Second)

	res := engine.Aggregate(context.Background(), parisQuery())

	var comptoir, holybelly *types.Item
	for i := range res.Restaurants {
		switch res.Restaurants[i].Name {
		case "le comptoir":
			comptoir = &res.Restaurants[i]
		case "Holybelly":
			holybelly = &res.Restaurants[i]
		}
	}

	if comptoir == nil || comptoir.Source != types.SourceSocial || comptoir.Trend == nil {
		t.Fatalf("trending venue should replace its directory duplicate, got %v", names(res.Restaurants))
	}
	if comptoir.Rating != 4.5 {
		t.Errorf("engagement rating = %v, want 4.5", comptoir.Rating)
	}
	if comptoir.URL != "https://social.example/p1" || comptoir.Address != "le comptoir, Paris, France" {
		t.Errorf("unexpected social item: %+v", comptoir)
	}
	if holybelly == nil || holybelly.Trend == nil {
		t.Errorf("mention-derived venue missing: %v", names(res.Restaurants))
	}
	if len(res.Restaurants) != 3 {
		t.Errorf("expected 3 restaurants, got %v", names(res.Restaurants))
	}
}

func TestEngine_Aggregate_CacheRoundTrip(t *testing.T) {
	dir := newDirectory()
	engine, metrics := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{dir},
	}, 200*time.Millisecond, time.Second)

	q := parisQuery()
	first, hit := engine.Fetch(context.Background(), q)
	if hit {
		t.Error("first call should miss")
	}
	callsAfterFirst := dir.calls.Load()

	// Same query with reordered, duplicated interests.
	q.Interests = []string{"Culture & History", "Culture & History"}
	second, hit := engine.Fetch(context.Background(), q)
	if !hit {
		t.Error("second call should hit")
	}
	if first != second {
		t.Error("cached result should be identical")
	}
	if dir.calls.Load() != callsAfterFirst {
		t.Errorf("providers called again on cache hit")
	}
	if got := testutil.ToFloat64(metrics.CacheHitsTotal); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}

	time.Sleep(300 * time.Millisecond)

	third, hit := engine.Fetch(context.Background(), q)
	if hit {
		t.Error("call after TTL should miss")
	}
	if third == first {
		t.Error("expected a fresh result after expiry")
	}
	if dir.calls.Load() != 2*callsAfterFirst {
		t.Errorf("calls = %d, want %d", dir.calls.Load(), 2*callsAfterFirst)
	}
}

func TestEngine_Aggregate_DegradedIsCached(t *testing.T) {
	dir := &mockSearcher{name: "directory", err: errDown}
	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{dir},
	}, time.Minute, time.Second)

	first := engine.Aggregate(context.Background(), parisQuery())
	second := engine.Aggregate(context.Background(), parisQuery())

	if !first.Degraded || first != second {
		t.Error("degraded result should be cached")
	}
	if dir.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (hotels and restaurants once)", dir.calls.Load())
	}
}

func TestEngine_Aggregate_Singleflight(t *testing.T) {
	dir := newDirectory()
	dir.delay = 100 * time.Millisecond

	engine, metrics := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{dir},
	}, time.Minute, time.Second)

	const n = 10
	var (
		wg      sync.WaitGroup
		results [n]*types.AggregatedResult
	)
	for i := range n {
		wg.Go(func() {
			results[i] = engine.Aggregate(context.Background(), parisQuery())
		})
	}
	wg.Wait()

	// One aggregation: one lodging and one restaurant search.
	if got := dir.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.AggregationsTotal); got != 1 {
		t.Errorf("aggregations = %v, want 1", got)
	}
	for i := range results {
		if results[i] != results[0] {
			t.Errorf("result %d differs", i)
		}
	}
}

func TestEngine_Aggregate_WaiterCancelled(t *testing.T) {
	dir := newDirectory()
	dir.delay = 300 * time.Millisecond

	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{dir},
		Maps:        []providers.MapsProvider{newMaps()},
	}, time.Minute, time.Second)

	leaderDone := make(chan *types.AggregatedResult, 1)
	go func() {
		leaderDone <- engine.Aggregate(context.Background(), parisQuery())
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	waiter := engine.Aggregate(ctx, parisQuery())
	if !waiter.Degraded || waiter.Hotels[0].Source != types.SourceFallback {
		t.Errorf("cancelled waiter should get a fallback result, got %+v", waiter)
	}

	leader := <-leaderDone
	if leader.Degraded {
		t.Errorf("leader result degraded: %v", leader.DegradedCategories)
	}

	cached, hit := engine.Fetch(context.Background(), parisQuery())
	if !hit || cached != leader {
		t.Error("waiter fallback must not replace the cached result")
	}
}

func TestEngine_Aggregate_LeaderCancelled(t *testing.T) {
	dir := newDirectory()
	dir.delay = 100 * time.Millisecond

	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{dir},
	}, time.Minute, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The aggregation is detached from the caller's cancellation.
	res := engine.Aggregate(ctx, parisQuery())
	if slices.Contains(res.DegradedCategories, "hotels") {
		t.Errorf("hotels degraded by caller cancellation: %v", res.DegradedCategories)
	}
}

func TestEngine_Aggregate_NeverNil(t *testing.T) {
	engine, _ := newEngine(t, search.Sources{
		Maps: []providers.MapsProvider{&mockMaps{
			mockSearcher: mockSearcher{name: "maps", panics: true},
			geoErr:       errors.New("geocoder broke"),
		}},
	}, time.Minute, time.Second)

	res := engine.Aggregate(context.Background(), types.Query{Location: "Nowhere"})
	if res == nil {
		t.Fatal("nil result")
	}
	if len(res.Hotels) == 0 || len(res.Attractions) == 0 || len(res.Restaurants) == 0 {
		t.Error("every category should carry at least one item")
	}
	if res.BasicInfo.Name != "Nowhere" {
		t.Errorf("basic info = %+v", res.BasicInfo)
	}
}

func TestEngine_Aggregate_GeocodesOnce(t *testing.T) {
	maps := newMaps()
	engine, _ := newEngine(t, search.Sources{
		Maps: []providers.MapsProvider{maps},
	}, time.Minute, time.Second)

	q := parisQuery()
	q.Interests = []string{"Culture & History", "Food & Dining"}
	res := engine.Aggregate(context.Background(), q)

	if res.Degraded {
		t.Errorf("unexpected degraded result: %v", res.DegradedCategories)
	}
	if got := maps.geoCalls.Load(); got != 1 {
		t.Errorf("geocode calls = %d, want 1", got)
	}
	if got := maps.searched.Load(); got != 0 {
		t.Errorf("%d searches geocoded again", got)
	}
	// lodging, six attraction types, restaurant.
	if got := maps.calls.Load(); got != 8 {
		t.Errorf("nearby searches = %d, want 8", got)
	}
}

func TestEngine_Aggregate_LocationNotFound(t *testing.T) {
	maps := newMaps()
	maps.geoErr = fmt.Errorf("%w: Atlantis", providers.ErrLocationNotFound)

	engine, _ := newEngine(t, search.Sources{
		Directories: []providers.CategorySearcher{newDirectory()},
		Maps:        []providers.MapsProvider{maps},
	}, time.Minute, time.Second)

	res := engine.Aggregate(context.Background(), types.Query{Location: "Atlantis"})

	if got := maps.calls.Load(); got != 0 {
		t.Errorf("nearby searches = %d, want none for an unknown place", got)
	}
	// The maps provider answered; only the empty attraction list remains.
	if slices.Contains(res.DegradedCategories, "attractions") {
		t.Errorf("unknown place should not degrade attractions: %v", res.DegradedCategories)
	}
	if len(res.Attractions) != 0 {
		t.Errorf("attractions = %v, want none", names(res.Attractions))
	}
	if !slices.Contains(res.DegradedCategories, "transportation") {
		t.Errorf("transportation should fall back: %v", res.DegradedCategories)
	}
}
