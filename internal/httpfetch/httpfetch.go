// Package httpfetch wraps every outbound call this radar makes to an
// upstream data source behind a single abstraction: rate-limit check,
// circuit breaker, timeout, and a normalized error-kind taxonomy instead of
// raw net/http errors. A Fetcher wraps a Limiter, verifies reachability
// per-call rather than up front, and every call returns (value, error);
// each upstream source gets its own rate limiter bucket and circuit
// breaker.
package httpfetch

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/internal/ratelimit"
)

// ErrorKind classifies why a fetch failed. Callers
// branch on Kind, never on the underlying error string.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRateLimited
	KindTimeout
	KindHTTP4xx
	KindHTTP5xx
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	case KindHTTP4xx:
		return "http_4xx"
	case KindHTTP5xx:
		return "http_5xx"
	case KindNetwork:
		return "network"
	default:
		return "none"
	}
}

// Error wraps a fetch failure with its classified Kind.
type Error struct {
	Kind   ErrorKind
	Source string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Source + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Source
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher issues rate-limited, circuit-broken HTTP GETs on behalf of the
// collector, security auditor and sentinel.
type Fetcher struct {
	client   *http.Client
	limiter  *ratelimit.Limiter
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New constructs a Fetcher sharing limiter across every source it fetches
// from.
func New(limiter *ratelimit.Limiter) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  limiter,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// isBreakerSuccess keeps KindHTTP4xx and KindRateLimited out of the breaker's
// ConsecutiveFailures count: a run of 404s or 429s from a source reflects the
// pairs or rate being queried, not the source's health, and should not trip
// the circuit for unrelated good requests. Only 5xx, network and timeout
// errors count as breaker failures.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	fe, ok := err.(*Error)
	if !ok {
		return false
	}
	return fe.Kind == KindHTTP4xx || fe.Kind == KindRateLimited
}

func (f *Fetcher) breakerFor(source string) *gobreaker.CircuitBreaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.breakers[source]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        source,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			obs.Component("httpfetch").Warn().
				Str("source", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
	f.breakers[source] = b
	return b
}

// Get issues a GET to url on behalf of source, applying the source's rate
// limiter and circuit breaker first. timeout, if non-zero, overrides the
// Fetcher's default per-call timeout.
func (f *Fetcher) Get(ctx context.Context, source, url string, timeout time.Duration, headers map[string]string) ([]byte, *Error) {
	if !f.limiter.Allow(source) {
		return nil, &Error{Kind: KindRateLimited, Source: source}
	}

	breaker := f.breakerFor(source)
	result, err := breaker.Execute(func() (any, error) {
		return f.doGet(ctx, source, url, timeout, headers)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &Error{Kind: KindNetwork, Source: source, Err: err}
		}
		if fe, ok := err.(*Error); ok {
			return nil, fe
		}
		return nil, &Error{Kind: KindNetwork, Source: source, Err: err}
	}
	return result.([]byte), nil
}

func (f *Fetcher) doGet(ctx context.Context, source, url string, timeout time.Duration, headers map[string]string) ([]byte, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Source: source, Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, &Error{Kind: KindTimeout, Source: source, Err: err}
		}
		return nil, &Error{Kind: KindNetwork, Source: source, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Source: source, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		f.limiter.Observe429(source, retryAfter)
		return nil, &Error{Kind: KindRateLimited, Source: source, Status: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return nil, &Error{Kind: KindHTTP5xx, Source: source, Status: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{Kind: KindHTTP4xx, Source: source, Status: resp.StatusCode}
	}
	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
