package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alex-user-go/tripdata/internal/config"
	"github.com/alex-user-go/tripdata/internal/handler"
	"github.com/alex-user-go/tripdata/internal/obs"
	"github.com/alex-user-go/tripdata/internal/search"
	"github.com/alex-user-go/tripdata/internal/search/cache"
)

// fakeServer blocks in ListenAndServe until Shutdown is called.
type fakeServer struct {
	listenErr error
	stopped   chan struct{}
	shutdowns atomic.Int32
}

func newFakeServer(listenErr error) *fakeServer {
	return &fakeServer{listenErr: listenErr, stopped: make(chan struct{})}
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenErr != nil {
		return f.listenErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(ctx context.Context) error {
	f.shutdowns.Add(1)
	close(f.stopped)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestHTTPService_Serve(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		srv := newFakeServer(nil)
		svc := newHTTPService(srv, time.Second, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve() error = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("service did not stop")
		}
		if srv.shutdowns.Load() != 1 {
			t.Errorf("shutdowns = %d, want 1", srv.shutdowns.Load())
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		svc := newHTTPService(newFakeServer(errors.New("address in use")), time.Second, testLogger())

		err := svc.Serve(context.Background())
		if err == nil || !strings.Contains(err.Error(), "address in use") {
			t.Errorf("Serve() error = %v", err)
		}
	})
}

func TestNewRouter(t *testing.T) {
	logger := testLogger()
	metrics := obs.NewMetrics(prometheus.NewRegistry(), logger)
	engine := search.NewEngine(search.Sources{}, cache.NewCache(time.Minute), time.Second, metrics, logger)

	router := NewRouter(handler.New(engine, logger), metrics, config.ServerConfig{
		RateLimitRequests: 1,
		RateLimitWindow:   time.Minute,
	}, logger)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/cache/stats", http.StatusOK},
		// Rate limit applies to the API routes only.
		{http.MethodGet, "/cache/stats", http.StatusTooManyRequests},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		if w.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d", tt.method, tt.path, w.Code, tt.want)
		}
		if w.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s %s: missing request id", tt.method, tt.path)
		}
	}
}

func TestBuildSources(t *testing.T) {
	cfg := &config.Config{
		Aggregation: config.AggregationConfig{SearchRadius: 1000},
		Places:      config.ProviderConfig{Enabled: true, BaseURL: "http://places.test"},
		Overpass:    config.ProviderConfig{Enabled: false},
		Directory:   config.ProviderConfig{Enabled: true, BaseURL: "http://directory.test"},
		Social:      config.ProviderConfig{Enabled: true, BaseURL: "http://social.test"},
	}
	logger := testLogger()

	src := buildSources(cfg, obs.NewMetrics(prometheus.NewRegistry(), logger), logger)

	if len(src.Directories) != 1 || len(src.Maps) != 1 || len(src.Social) != 1 {
		t.Fatalf("unexpected sources: %d directories, %d maps, %d social",
			len(src.Directories), len(src.Maps), len(src.Social))
	}
	if src.Maps[0].Name() != "places" {
		t.Errorf("maps provider = %q, want places", src.Maps[0].Name())
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		l := newLogger(config.LoggingConfig{Level: tt.level, Format: "text"})
		if !l.Enabled(context.Background(), tt.want) {
			t.Errorf("%s: level %v not enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && l.Enabled(context.Background(), tt.want-4) {
			t.Errorf("%s: lower level enabled", tt.level)
		}
	}
}
