package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rawblock/memecoin-radar/internal/ratelimit"
)

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(ratelimit.New())
	body, err := f.Get(context.Background(), "testsrc", srv.URL, time.Second, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestGet_429SetsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(ratelimit.New())
	_, err := f.Get(context.Background(), "testsrc429", srv.URL, time.Second, nil)
	if err == nil || err.Kind != KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %+v", err)
	}
}

func TestGet_5xxClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(ratelimit.New())
	_, err := f.Get(context.Background(), "testsrc5xx", srv.URL, time.Second, nil)
	if err == nil || err.Kind != KindHTTP5xx {
		t.Fatalf("expected KindHTTP5xx, got %+v", err)
	}
}

func TestGet_404Classified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(ratelimit.New())
	_, err := f.Get(context.Background(), "testsrc404", srv.URL, time.Second, nil)
	if err == nil || err.Kind != KindHTTP4xx {
		t.Fatalf("expected KindHTTP4xx, got %+v", err)
	}
}

func TestGet_ConsecutiveNotFoundDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	// A roomy limiter keeps the 1 req/s, burst 2 fallback bucket from
	// answering KindRateLimited before the breaker is exercised.
	f := New(ratelimit.NewWithDefault(ratelimit.Config{RatePerSec: 1000, Burst: 100}))
	for i := 0; i < 8; i++ {
		if _, err := f.Get(context.Background(), "testsrc404breaker", srv.URL, time.Second, nil); err == nil || err.Kind != KindHTTP4xx {
			t.Fatalf("call %d: expected KindHTTP4xx, got %+v", i, err)
		}
	}
	// A 9th call still reaches the server (rather than KindNetwork from an open
	// breaker) because 404s never count toward ConsecutiveFailures.
	if _, err := f.Get(context.Background(), "testsrc404breaker", srv.URL, time.Second, nil); err == nil || err.Kind != KindHTTP4xx {
		t.Fatalf("expected the breaker to stay closed after repeated 404s, got %+v", err)
	}
}

func TestGet_Consecutive5xxTripsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(ratelimit.NewWithDefault(ratelimit.Config{RatePerSec: 1000, Burst: 100}))
	for i := 0; i < 5; i++ {
		if _, err := f.Get(context.Background(), "testsrc5xxbreaker", srv.URL, time.Second, nil); err == nil || err.Kind != KindHTTP5xx {
			t.Fatalf("call %d: expected KindHTTP5xx, got %+v", i, err)
		}
	}
	_, err := f.Get(context.Background(), "testsrc5xxbreaker", srv.URL, time.Second, nil)
	if err == nil || err.Kind != KindNetwork {
		t.Fatalf("expected the breaker to open (KindNetwork) after 5 consecutive 5xx errors, got %+v", err)
	}
}

func TestGet_RateLimiterBlocksBeforeRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	limiter := ratelimit.New()
	f := New(limiter)
	// Exhaust the default fallback bucket (burst=2) before issuing a real request.
	limiter.Allow("starved")
	limiter.Allow("starved")
	if limiter.Allow("starved") {
		t.Fatalf("expected bucket to be exhausted for this test setup")
	}

	_, err := f.Get(context.Background(), "starved", srv.URL, time.Second, nil)
	if err == nil || err.Kind != KindRateLimited {
		t.Fatalf("expected KindRateLimited without issuing a request, got %+v", err)
	}
	if called {
		t.Errorf("expected the handler to never be invoked once the bucket was exhausted")
	}
}
