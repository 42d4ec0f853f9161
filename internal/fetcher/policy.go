package fetcher

import (
	"errors"
	"net/http"
	"slices"
	"time"
)

// Config is the client configuration object threaded into the fetcher and its transport.
type Config struct {
	Timeout            time.Duration
	MaxAttempts        int
	BackoffBase        time.Duration
	RetryStatuses      []int
	MinRequestDelay    time.Duration
	UserAgent          string
	Referer            string
	InsecureSkipVerify bool
}

// DefaultRetryStatuses are the statuses worth another attempt.
var DefaultRetryStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Validate enforces the attempt budget and non-negative delays.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("fetcher: max attempts must be >= 1")
	}
	if c.BackoffBase < 0 || c.MinRequestDelay < 0 || c.Timeout < 0 {
		return errors.New("fetcher: durations must not be negative")
	}
	return nil
}

// Outcome is the classification of one attempt.
type Outcome int

// Attempt outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	default:
		return "terminal"
	}
}

// RetryPolicy classifies attempts and computes linear backoff.
type RetryPolicy struct {
	MaxAttempts   int
	BackoffBase   time.Duration
	RetryStatuses []int
}

// NewRetryPolicy derives the policy from cfg, falling back to DefaultRetryStatuses.
func NewRetryPolicy(cfg Config) RetryPolicy {
	statuses := cfg.RetryStatuses
	if len(statuses) == 0 {
		statuses = DefaultRetryStatuses
	}
	return RetryPolicy{
		MaxAttempts:   cfg.MaxAttempts,
		BackoffBase:   cfg.BackoffBase,
		RetryStatuses: slices.Clone(statuses),
	}
}

// Classify maps a transport error or status code to an outcome. Connection-level errors are
// retryable; 2xx succeeds; configured statuses retry; everything else is terminal.
func (p RetryPolicy) Classify(status int, err error) Outcome {
	if err != nil {
		return OutcomeRetry
	}
	if status >= 200 && status < 300 {
		return OutcomeSuccess
	}
	if slices.Contains(p.RetryStatuses, status) {
		return OutcomeRetry
	}
	return OutcomeTerminal
}

// Backoff returns the wait before the attempt after the given one: base × attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BackoffBase * time.Duration(attempt)
}
