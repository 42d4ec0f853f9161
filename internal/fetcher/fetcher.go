// Package fetcher implements the resilient fetch client: bounded retries with linear backoff,
// retryable/terminal classification, and a minimum pause after every successful request.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lotto-store-crawler/internal/metrics"
)

// Request describes one logical fetch. Form is sent url-encoded when Method is POST.
type Request struct {
	Method   string
	URL      string
	Form     map[string]string
	Endpoint string
}

func (r Request) endpoint() string {
	if r.Endpoint == "" {
		return "unknown"
	}
	return r.Endpoint
}

// Response is the successful result of a fetch.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Attempts   int
	Duration   time.Duration
}

// Transport performs exactly one HTTP exchange. Non-2xx statuses are returned as responses,
// not errors; errors mean no status was observed.
type Transport interface {
	RoundTrip(ctx context.Context, req Request) (Response, error)
}

// Sleeper blocks for a pacing or backoff delay.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Failure reports that a resource could not be obtained now.
type Failure struct {
	URL        string
	Attempts   int
	StatusCode int
	Terminal   bool
	Err        error
}

func (f *Failure) Error() string {
	kind := "exhausted"
	if f.Terminal {
		kind = "terminal"
	}
	if f.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s after %d attempt(s), last status %d: %v", f.URL, kind, f.Attempts, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", f.URL, kind, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// IsFailure reports whether err is a fetch Failure and returns it.
func IsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// StatusError is the cause recorded for a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// Client wraps a Transport with the retry policy and request pacing.
type Client struct {
	transport Transport
	policy    RetryPolicy
	minDelay  time.Duration
	sleeper   Sleeper
	logger    *zap.Logger
}

// New builds a Client from cfg.
func New(cfg Config, transport Transport, sleeper Sleeper, logger *zap.Logger) (*Client, error) {
	if transport == nil {
		return nil, errors.New("fetcher: transport is required")
	}
	if sleeper == nil {
		return nil, errors.New("fetcher: sleeper is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		transport: transport,
		policy:    NewRetryPolicy(cfg),
		minDelay:  cfg.MinRequestDelay,
		sleeper:   sleeper,
		logger:    logger.Named("fetcher"),
	}, nil
}

// Do issues req until it succeeds, hits a terminal outcome, or exhausts the attempt budget.
// Every error it returns is a *Failure.
func (c *Client) Do(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	var (
		lastErr    error
		lastStatus int
	)
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, c.fail(req, attempt-1, lastStatus, true, err)
		}
		resp, err := c.transport.RoundTrip(ctx, req)
		if err != nil && ctx.Err() != nil {
			return Response{}, c.fail(req, attempt, lastStatus, true, ctx.Err())
		}
		outcome := c.policy.Classify(resp.StatusCode, err)
		metrics.ObserveFetchAttempt(req.endpoint(), outcome.String())

		switch outcome {
		case OutcomeSuccess:
			resp.Attempts = attempt
			resp.Duration = time.Since(start)
			if err := c.sleeper.Sleep(ctx, c.minDelay); err != nil {
				c.logger.Debug("pacing delay interrupted", zap.String("url", req.URL), zap.Error(err))
			}
			return resp, nil
		case OutcomeTerminal:
			return Response{}, c.fail(req, attempt, resp.StatusCode, true, causeOf(resp.StatusCode, err))
		}

		lastStatus = resp.StatusCode
		lastErr = causeOf(resp.StatusCode, err)
		if attempt == c.policy.MaxAttempts {
			break
		}
		wait := c.policy.Backoff(attempt)
		c.logger.Warn("retrying request",
			zap.String("endpoint", req.endpoint()),
			zap.String("url", req.URL),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Duration("backoff", wait),
			zap.Error(lastErr),
		)
		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			return Response{}, c.fail(req, attempt, lastStatus, true, err)
		}
	}
	return Response{}, c.fail(req, c.policy.MaxAttempts, lastStatus, false, lastErr)
}

func (c *Client) fail(req Request, attempts, status int, terminal bool, err error) *Failure {
	kind := "exhausted"
	if terminal {
		kind = "terminal"
	}
	metrics.ObserveFetchFailure(req.endpoint(), kind)
	c.logger.Warn("request failed",
		zap.String("endpoint", req.endpoint()),
		zap.String("url", req.URL),
		zap.String("kind", kind),
		zap.Int("attempts", attempts),
		zap.Int("status", status),
		zap.Error(err),
	)
	return &Failure{
		URL:        req.URL,
		Attempts:   attempts,
		StatusCode: status,
		Terminal:   terminal,
		Err:        err,
	}
}

func causeOf(status int, err error) error {
	if err != nil {
		return err
	}
	return &StatusError{Code: status}
}
