package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/alex-user-go/tripdata/internal/obs"
	"github.com/alex-user-go/tripdata/internal/ratelimit"
)

const (
	defaultBreakerFailures = 5
	defaultBreakerCooldown = 30 * time.Second
	defaultTimeout         = 5 * time.Second
)

// Settings configures one upstream.
type Settings struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// BreakerFailures is the number of consecutive failures that opens the
	// circuit. BreakerCooldown is how long it stays open.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Deps are the collaborators shared by all providers.
type Deps struct {
	Limiter *ratelimit.Limiter
	Metrics *obs.Metrics
	Logger  *slog.Logger
}

// guard throttles, circuit-breaks and instruments calls to one upstream.
type guard struct {
	name    string
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker[any]
	metrics *obs.Metrics
	logger  *slog.Logger
}

func newGuard(s Settings, d Deps) *guard {
	failures := s.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	cooldown := s.BreakerCooldown
	if cooldown <= 0 {
		cooldown = defaultBreakerCooldown
	}

	g := &guard{
		name:    s.Name,
		limiter: d.Limiter,
		metrics: d.Metrics,
		logger:  d.Logger,
	}
	g.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrLocationNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.Logger.Warn("circuit breaker state changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
			d.Metrics.SetBreakerState(name, int(to))
		},
	})
	d.Metrics.SetBreakerState(s.Name, int(gobreaker.StateClosed))

	return g
}

// guarded runs call under the guard. Every failure except ErrLocationNotFound
// comes back wrapping ErrProviderUnavailable, including panics.
func guarded[T any](ctx context.Context, g *guard, call func(ctx context.Context) (T, error)) (res T, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrProviderUnavailable, g.name, r)
		}
		g.metrics.ObserveProviderLatency(g.name, time.Since(start))
		if err != nil && errors.Is(err, ErrProviderUnavailable) {
			var zero T
			res = zero
			g.metrics.IncProviderErrors(g.name)
			g.logger.Warn("provider call failed", "provider", g.name, "error", err)
		}
	}()

	if err := g.limiter.Wait(ctx, g.name); err != nil {
		return res, fmt.Errorf("%w: %s: rate limited: %w", ErrProviderUnavailable, g.name, err)
	}

	out, err := g.breaker.Execute(func() (any, error) {
		return call(ctx)
	})
	if err != nil {
		if errors.Is(err, ErrLocationNotFound) {
			return res, err
		}
		return res, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, g.name, err)
	}

	v, _ := out.(T)
	return v, nil
}

// apiClient is a JSON-over-HTTP upstream.
type apiClient struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	guard      *guard
}

func newAPIClient(s Settings, d Deps) *apiClient {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &apiClient{
		name:    s.Name,
		baseURL: s.BaseURL,
		apiKey:  s.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		guard: newGuard(s, d),
	}
}

// getJSON performs a GET request and decodes the JSON body into out.
func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, header http.Header, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL may carry credentials; keep only the cause.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}
