package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"
)

var errProviderUnavailable = errors.New("provider unavailable")

func main() {
	port := getEnv("PORT", "9001")
	providerType := getEnv("PROVIDER_TYPE", "maps")

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()

	switch providerType {
	case "maps":
		NewMapsMock(logger).Register(mux)
	case "directory":
		NewDirectoryMock(logger).Register(mux)
	case "social":
		NewSocialMock(logger).Register(mux)
	default:
		logger.Error("unknown provider type", "type", providerType)
		os.Exit(1)
	}
	logger.Info("starting provider", "type", providerType, "port", port)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.Error("failed to write healthz response", "error", err)
		}
	})

	// Configure server
	addr := ":" + port
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// simulator adds random latency and failures to mock responses.
type simulator struct {
	mu          sync.Mutex
	rng         *rand.Rand
	minLatency  time.Duration
	jitter      time.Duration
	failureRate float64
	logger      *slog.Logger
}

func newSimulator(minLatency, jitter time.Duration, failureRate float64, logger *slog.Logger) *simulator {
	return &simulator{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		minLatency:  minLatency,
		jitter:      jitter,
		failureRate: failureRate,
		logger:      logger,
	}
}

// delay sleeps for a random latency and then fails at the configured rate.
func (s *simulator) delay(ctx context.Context) error {
	s.mu.Lock()
	latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.jitter)+1))
	fail := s.rng.Float64() < s.failureRate
	s.mu.Unlock()

	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return context.Cause(ctx)
	}

	if fail {
		return errProviderUnavailable
	}
	return nil
}

// between returns a random value in [lo, hi) rounded to one decimal.
func (s *simulator) between(lo, hi float64) float64 {
	s.mu.Lock()
	v := lo + s.rng.Float64()*(hi-lo)
	s.mu.Unlock()
	return float64(int(v*10)) / 10
}

func (s *simulator) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *simulator) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
