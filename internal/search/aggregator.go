package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alex-user-go/tripdata/internal/obs"
	"github.com/alex-user-go/tripdata/internal/providers"
	"github.com/alex-user-go/tripdata/internal/search/cache"
	"github.com/alex-user-go/tripdata/internal/search/types"
	"github.com/alex-user-go/tripdata/internal/trend"
)

const airportRadiusMeters = 50000

// Sources are the providers an Engine fans out to. Within each category
// providers are merged in slice order: directories, then maps, then social.
type Sources struct {
	Directories []providers.CategorySearcher
	Maps        []providers.MapsProvider
	Social      []providers.PostSource
}

// Engine aggregates location data from providers behind a TTL cache.
type Engine struct {
	src     Sources
	cache   *cache.Cache
	timeout time.Duration
	scorer  *trend.Scorer
	metrics *obs.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates a new Engine. timeout bounds every single provider call.
func NewEngine(src Sources, c *cache.Cache, timeout time.Duration, metrics *obs.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		src:     src,
		cache:   c,
		timeout: timeout,
		scorer:  trend.NewScorer(nil),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Cache returns the engine's result cache.
func (e *Engine) Cache() *cache.Cache {
	return e.cache
}

// Aggregate returns the location data for q. It never fails: provider
// failures are replaced by fallback data and flagged as degraded.
func (e *Engine) Aggregate(ctx context.Context, q types.Query) *types.AggregatedResult {
	res, _ := e.Fetch(ctx, q)
	return res
}

// Fetch is Aggregate that also reports whether the result was served from
// the cache. Concurrent calls for the same query share one aggregation,
// which runs to completion even if the caller that started it goes away.
func (e *Engine) Fetch(ctx context.Context, q types.Query) (*types.AggregatedResult, bool) {
	q = NormalizeQuery(q)
	key := cache.Key(q)
	e.metrics.IncRequests()

	res, hit, err := e.cache.GetOrFetch(ctx, key, func() (*types.AggregatedResult, error) {
		return e.build(context.WithoutCancel(ctx), q, key), nil
	})
	if err != nil {
		e.logger.Warn("aggregation not awaited, serving fallback",
			"location", q.Location,
			"cache_key", key,
			"error", err)
		return fallbackResult(q, key, e.now()), false
	}

	if hit {
		e.metrics.IncCacheHits()
		e.logger.Debug("cache hit", "location", q.Location, "cache_key", key)
	}
	return res, hit
}

// build runs the five block tasks concurrently and assembles the result.
func (e *Engine) build(ctx context.Context, q types.Query, key string) (res *types.AggregatedResult) {
	e.metrics.IncAggregations()
	start := e.now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("aggregation failed, serving fallback",
				"location", q.Location,
				"panic", r)
			res = fallbackResult(q, key, e.now())
			for _, b := range res.DegradedCategories {
				e.metrics.IncDegraded(b)
			}
		}
	}()

	geocode := sync.OnceValues(func() (types.Coordinates, error) {
		return e.geocode(ctx, q.Location)
	})

	var (
		wg             sync.WaitGroup
		hotels         []types.Item
		attractions    []types.Item
		restaurants    []types.Item
		transportation types.Transportation
		basicInfo      types.BasicInfo

		// Indexed like allBlocks.
		degraded [5]bool
	)

	wg.Go(func() {
		hotels, degraded[0] = e.category(ctx, q, geocode, types.CategoryHotels, e.hotelCalls)
	})
	wg.Go(func() {
		attractions, degraded[1] = e.category(ctx, q, geocode, types.CategoryAttractions, e.attractionCalls)
	})
	wg.Go(func() {
		restaurants, degraded[2] = e.category(ctx, q, geocode, types.CategoryRestaurants, e.restaurantCalls)
	})
	wg.Go(func() {
		transportation, degraded[3] = e.transportation(ctx, geocode)
	})
	wg.Go(func() {
		basicInfo, degraded[4] = e.basicInfo(q, geocode)
	})
	wg.Wait()

	res = &types.AggregatedResult{
		Location:           q.Location,
		BasicInfo:          basicInfo,
		Hotels:             hotels,
		Attractions:        attractions,
		Restaurants:        restaurants,
		Transportation:     transportation,
		AggregatedAt:       e.now(),
		CacheKey:           key,
		DegradedCategories: []string{},
	}
	for i, d := range degraded {
		if !d {
			continue
		}
		res.Degraded = true
		res.DegradedCategories = append(res.DegradedCategories, allBlocks[i])
		e.metrics.IncDegraded(allBlocks[i])
	}

	e.logger.Info("aggregation complete",
		"location", q.Location,
		"hotels", len(hotels),
		"attractions", len(attractions),
		"restaurants", len(restaurants),
		"degraded", res.DegradedCategories,
		"duration", e.now().Sub(start))

	return res
}

// locator resolves the query location once per aggregation.
type locator func() (types.Coordinates, error)

// providerCall is one nested provider task of a category. When center is
// set it is resolved before the call's own timeout starts and passed to run.
type providerCall struct {
	provider string
	center   locator
	run      func(ctx context.Context, center types.Coordinates) ([]Candidate, error)
}

// category fans out the calls of one category and merges their results. A
// panic anywhere in the category yields the category fallback.
func (e *Engine) category(ctx context.Context, q types.Query, geocode locator, cat types.Category, calls func(types.Query, locator) []providerCall) (items []types.Item, degraded bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("category failed, serving fallback",
				"category", cat,
				"location", q.Location,
				"panic", r)
			items, degraded = fallbackItems(cat, q.Location), true
		}
	}()

	results := e.fanOut(ctx, calls(q, geocode))
	for _, r := range results {
		if r.Err != nil {
			e.logger.Warn("provider unavailable",
				"category", cat,
				"provider", r.Provider,
				"error", r.Err)
		}
	}

	items, degraded = Merge(results, MergeParams{
		Category:  cat,
		Location:  q.Location,
		Budget:    q.Budget,
		Travelers: q.Travelers,
	})
	if degraded {
		e.logger.Warn("all providers failed, serving fallback",
			"category", cat,
			"location", q.Location,
			"providers", len(results))
	}
	return items, degraded
}

// fanOut runs the calls concurrently. Results keep the order of calls.
func (e *Engine) fanOut(ctx context.Context, calls []providerCall) []ProviderResult {
	results := make([]ProviderResult, len(calls))

	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Go(func() {
			results[i] = e.runCall(ctx, c)
		})
	}
	wg.Wait()

	return results
}

func (e *Engine) runCall(ctx context.Context, c providerCall) ProviderResult {
	var at types.Coordinates
	if c.center != nil {
		var err error
		if at, err = c.center(); err != nil {
			// Nothing to search around an unknown place.
			if errors.Is(err, providers.ErrLocationNotFound) {
				return ProviderResult{Provider: c.provider, Candidates: []Candidate{}}
			}
			return ProviderResult{Provider: c.provider, Err: fmt.Errorf("geocoding: %w", err)}
		}
	}

	cands, err := callProvider(ctx, e.timeout, c.provider, func(ctx context.Context) ([]Candidate, error) {
		return c.run(ctx, at)
	})
	return ProviderResult{Provider: c.provider, Candidates: cands, Err: err}
}

// callProvider runs one provider call bounded by timeout. Panics and
// timeouts are reported as ErrProviderUnavailable. A call that ignores its
// context is abandoned once the timeout passes.
func callProvider[T any](ctx context.Context, timeout time.Duration, provider string, run func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %s: panic: %v", providers.ErrProviderUnavailable, provider, r)}
			}
		}()
		v, err := run(ctx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %s: %w", providers.ErrProviderUnavailable, provider, context.Cause(ctx))
	}
}

func (e *Engine) hotelCalls(q types.Query, geocode locator) []providerCall {
	var calls []providerCall
	for _, d := range e.src.Directories {
		calls = append(calls, searchCall(d, q.Location, "lodging"))
	}
	for _, m := range e.src.Maps {
		calls = append(calls, nearbyCall(m, geocode, "lodging"))
	}
	return calls
}

// attractionCalls issues one call per maps provider and place type.
func (e *Engine) attractionCalls(q types.Query, geocode locator) []providerCall {
	var calls []providerCall
	for _, m := range e.src.Maps {
		for _, t := range PlaceTypes(q.Interests) {
			calls = append(calls, nearbyCall(m, geocode, t))
		}
	}
	return calls
}

func (e *Engine) restaurantCalls(q types.Query, geocode locator) []providerCall {
	var calls []providerCall
	for _, d := range e.src.Directories {
		calls = append(calls, searchCall(d, q.Location, "restaurant"))
	}
	for _, m := range e.src.Maps {
		calls = append(calls, nearbyCall(m, geocode, "restaurant"))
	}
	for _, s := range e.src.Social {
		calls = append(calls, providerCall{
			provider: s.Name(),
			run: func(ctx context.Context, _ types.Coordinates) ([]Candidate, error) {
				posts, err := s.RecentPosts(ctx, q.Location)
				if err != nil {
					return nil, err
				}
				return venueCandidates(e.scorer.Score(posts), q.Location), nil
			},
		})
	}
	return calls
}

func searchCall(s providers.CategorySearcher, location, hint string) providerCall {
	return providerCall{
		provider: s.Name(),
		run: func(ctx context.Context, _ types.Coordinates) ([]Candidate, error) {
			facts, err := s.SearchCategory(ctx, location, hint)
			if err != nil {
				return nil, err
			}
			return factCandidates(facts), nil
		},
	}
}

// nearbyCall searches a maps provider around the location geocoded once
// per aggregation.
func nearbyCall(m providers.MapsProvider, geocode locator, hint string) providerCall {
	return providerCall{
		provider: m.Name(),
		center:   geocode,
		run: func(ctx context.Context, center types.Coordinates) ([]Candidate, error) {
			facts, err := m.SearchNearby(ctx, center, hint)
			if err != nil {
				return nil, err
			}
			return factCandidates(facts), nil
		},
	}
}

func factCandidates(facts []providers.RawFact) []Candidate {
	cands := make([]Candidate, len(facts))
	for i, f := range facts {
		cands[i] = Candidate{Fact: f}
	}
	return cands
}
