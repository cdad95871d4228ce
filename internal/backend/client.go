// Package backend is the HTTP client of the remote auth and weather backend.
// Every call carries the session's current access token; an authorization
// failure is repaired by at most one token refresh per call.
package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/metrics"
	"github.com/i474232898/weather-dashboard/internal/token"
)

// DefaultRetryBudget is how many times a call may be re-issued after a
// successful refresh.
const DefaultRetryBudget = 1

// Client is the backend client of one session.
type Client struct {
	t             *Transport
	store         token.Store
	onAuthFailure func(error)
	log           zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAuthFailureHook registers fn to run after the token pair has been
// cleared because an authorization failure could not be repaired.
func WithAuthFailureHook(fn func(error)) Option {
	return func(c *Client) {
		c.onAuthFailure = fn
	}
}

// NewClient binds t to the token store of one session.
func NewClient(t *Transport, store token.Store, opts ...Option) *Client {
	c := &Client{
		t:     t,
		store: store,
		log:   t.log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call issues r with the default retry budget and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, r request, out any) error {
	return c.callWithBudget(ctx, r, out, DefaultRetryBudget)
}

// callWithBudget issues r. The access token is read from the store on every
// attempt. A 401 on a non-public request spends one unit of budget on a
// refresh followed by one re-issue; with no budget left the 401 is returned.
func (c *Client) callWithBudget(ctx context.Context, r request, out any, budget int) error {
	pair, _ := c.store.Get()

	resp, err := c.t.do(ctx, r, pair.AccessToken)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperr.Upstream(err, "", r.fallback)
	}

	if resp.status == http.StatusUnauthorized && !r.public {
		return c.recoverUnauthorized(ctx, r, out, budget, pair.AccessToken, resp)
	}
	if resp.status < 200 || resp.status >= 300 {
		return errorFor(r, resp)
	}
	return decode(resp, out)
}

func (c *Client) recoverUnauthorized(ctx context.Context, r request, out any, budget int, used string, resp *response) error {
	original := apperr.Unauthorized(nil, "%s", messageOr(resp, "Your session has expired. Please log in again."))
	if budget <= 0 {
		return original
	}

	current, _ := c.store.Get()
	if current.AccessToken != "" && current.AccessToken != used {
		// A concurrent call already rotated the pair.
		c.t.metrics.IncRefresh(metrics.RefreshRotated)
		return c.callWithBudget(ctx, r, out, budget-1)
	}

	if current.RefreshToken == "" {
		c.t.metrics.IncRefresh(metrics.RefreshNoToken)
		c.fail(original)
		return original
	}

	if _, err := c.refresh(ctx, used, current.RefreshToken); err != nil {
		c.t.metrics.IncRefresh(metrics.RefreshFailed)
		failure := apperr.Unauthorized(err, "Your session has expired. Please log in again.")
		c.fail(failure)
		return failure
	}
	c.t.metrics.IncRefresh(metrics.RefreshOK)
	c.log.Debug().Str("endpoint", r.endpoint).Msg("access token refreshed, re-issuing request")

	return c.callWithBudget(ctx, r, out, budget-1)
}

// refresh exchanges refreshToken for a new pair and persists it. Concurrent
// refreshes of the same token share one backend call, and a pair that was
// rotated away from the rejected access token is not refreshed again.
func (c *Client) refresh(ctx context.Context, rejected, refreshToken string) (token.Pair, error) {
	v, err, shared := c.t.refreshes.Do(refreshToken, func() (any, error) {
		if cur, ok := c.store.Get(); ok && cur.AccessToken != "" && cur.AccessToken != rejected {
			return cur, nil
		}
		fresh, err := c.t.refresh(context.WithoutCancel(ctx), refreshToken)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if shared {
		c.log.Debug().Msg("joined in-flight token refresh")
	}
	if err != nil {
		return token.Pair{}, err
	}
	return v.(token.Pair), nil
}

// fail clears the session's credentials and notifies the hook.
func (c *Client) fail(cause error) {
	if err := c.store.Clear(); err != nil {
		c.log.Error().Err(err).Msg("failed to clear token store")
	}
	c.log.Info().Err(cause).Msg("session credentials cleared")
	if c.onAuthFailure != nil {
		c.onAuthFailure(cause)
	}
}

func decode(resp *response, out any) error {
	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return apperr.Upstream(err, "", "Unexpected response from the weather service")
	}
	return nil
}

// errorFor classifies a non-2xx, non-repaired response.
func errorFor(r request, resp *response) error {
	switch {
	case resp.status == http.StatusNotFound && r.notFound != nil:
		return r.notFound()
	case resp.status == http.StatusNotFound:
		return apperr.NotFound("%s", messageOr(resp, "not found"))
	case resp.status == http.StatusUnauthorized:
		return apperr.Unauthorized(nil, "%s", messageOr(resp, r.fallback))
	case resp.status == http.StatusForbidden:
		return apperr.Forbidden("%s", messageOr(resp, "You do not have access to this resource"))
	case resp.status == http.StatusBadRequest || resp.status == http.StatusConflict || resp.status == http.StatusUnprocessableEntity:
		return apperr.Validation("%s", messageOr(resp, r.fallback))
	default:
		return apperr.Upstream(errors.New(http.StatusText(resp.status)), message(resp), r.fallback)
	}
}

// message extracts the backend's error message. The backend answers either
// {"message":"..."} or, for validation failures, {"message":["...","..."]}.
func message(resp *response) string {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(resp.body, &payload); err != nil || len(payload.Message) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(payload.Message, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(payload.Message, &many); err == nil {
		return strings.Join(many, "; ")
	}
	return ""
}

func messageOr(resp *response, fallback string) string {
	if m := message(resp); m != "" {
		return m
	}
	return fallback
}
