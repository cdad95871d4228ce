package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-dashboard/internal/metrics"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Config bundles the settings of a Transport.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
	Backoff       BackoffConfig
	RPS           float64
	Burst         int
}

// DefaultHealthTimeout bounds a backend health probe.
const DefaultHealthTimeout = 3 * time.Second

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errCircuitOpen   = errors.New("circuit breaker open")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

// Transport is the session-independent half of the backend client: the
// shared HTTP client, circuit breaker, rate limiter and refresh group.
type Transport struct {
	client        *http.Client
	baseURL       string
	healthTimeout time.Duration
	backoff       BackoffConfig
	circuit       *gobreaker.CircuitBreaker
	limiter       *rate.Limiter
	refreshes     singleflight.Group
	metrics       metrics.Recorder
	log           zerolog.Logger
}

// NewTransport creates a Transport. A zero RPS disables rate limiting.
func NewTransport(cfg Config, rec metrics.Recorder, log zerolog.Logger) (*Transport, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid backend base url: %w", err)
	}
	if cfg.Backoff.MaxRetries < 0 {
		return nil, errInvalidConfig
	}
	if cfg.Backoff.InitialInterval <= 0 {
		cfg.Backoff.InitialInterval = 200 * time.Millisecond
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultHealthTimeout
	}
	if rec == nil {
		rec = metrics.Noop{}
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state changed")
		},
	})

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Transport{
		client:        &http.Client{Timeout: cfg.Timeout},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		healthTimeout: cfg.HealthTimeout,
		backoff:       cfg.Backoff,
		circuit:       cb,
		limiter:       limiter,
		metrics:       rec,
		log:           log.With().Str("component", "backend").Logger(),
	}, nil
}

// request describes one backend call.
type request struct {
	method string
	path   string
	// endpoint is the metrics label; path may contain user input.
	endpoint string
	query    url.Values
	body     any
	// public requests never carry a bearer and never trigger a refresh.
	public bool
	// notFound, when set, replaces the generic error for a 404.
	notFound func() error
	// fallback is the message used when the backend gives none.
	fallback string
}

// response is a fully read backend response.
type response struct {
	status int
	body   []byte
}

// statusError carries a 429/5xx response through the circuit breaker.
type statusError struct {
	kind error
	resp *response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %d", e.kind, e.resp.status)
}

func (e *statusError) Unwrap() error {
	return e.kind
}

func (t *Transport) idempotent(r request) bool {
	return r.method == http.MethodGet || r.method == http.MethodHead
}

// do executes r with bearer attached. Network errors, 429 and 5xx are retried
// with exponential backoff for idempotent requests only, and count against the
// circuit breaker. Any other status, 401 included, is returned as a response
// on the first attempt.
func (t *Transport) do(ctx context.Context, r request, bearer string) (*response, error) {
	var payload []byte
	if r.body != nil {
		var err error
		if payload, err = json.Marshal(r.body); err != nil {
			return nil, err
		}
	}

	maxRetries := t.backoff.MaxRetries
	if !t.idempotent(r) {
		maxRetries = 0
	}

	var attempt int
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait canceled: %w", err)
			}
		}

		resp, err := t.attempt(ctx, r, payload, bearer)
		if err == nil {
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		if attempt >= maxRetries {
			var se *statusError
			if errors.As(err, &se) {
				return se.resp, nil
			}
			return nil, err
		}

		delay := t.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > t.backoff.MaxInterval && t.backoff.MaxInterval > 0 {
			delay = t.backoff.MaxInterval
		}
		t.log.Debug().Err(err).Str("endpoint", r.endpoint).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying backend request")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

func (t *Transport) attempt(ctx context.Context, r request, payload []byte, bearer string) (*response, error) {
	u := t.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" && !r.public {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	result, err := t.circuit.Execute(func() (interface{}, error) {
		httpResp, execErr := t.client.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer httpResp.Body.Close()

		raw, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return nil, readErr
		}
		resp := &response{status: httpResp.StatusCode, body: raw}

		if resp.status == http.StatusTooManyRequests {
			return nil, &statusError{kind: errRateLimited, resp: resp}
		}
		if resp.status >= 500 {
			return nil, &statusError{kind: errServerError, resp: resp}
		}
		return resp, nil
	})

	status := 0
	var se *statusError
	switch {
	case err == nil:
		status = result.(*response).status
	case errors.As(err, &se):
		status = se.resp.status
	}
	t.metrics.ObserveBackend(r.endpoint, status, time.Since(start))

	if err != nil {
		return nil, err
	}
	resp, ok := result.(*response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}

// Health probes the backend /health endpoint, bypassing the circuit breaker,
// bounded by the health timeout. The backend is healthy when it answers
// {"status":"ok"}.
func (t *Transport) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("backend service is not available: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("backend service is not available: %w", err)
	}
	if resp.StatusCode != http.StatusOK || payload.Status != "ok" {
		return fmt.Errorf("backend service is not available: status %d %q", resp.StatusCode, payload.Status)
	}
	return nil
}
