package httpclient

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Config describes the client used against the remote service.
type Config struct {
	// Timeout bounds a whole request including retries. Zero leaves the
	// request bounded only by its context.
	Timeout time.Duration

	// UserAgent is sent unless the request already carries one.
	UserAgent string

	Retry RetryPolicy

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// RetryPolicy controls how transient failures are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first try.
	MaxRetries int

	// Initial is the delay before the first retry. It doubles on each retry
	// up to Max.
	Initial time.Duration
	Max     time.Duration

	// RetryWrites also retries POST, PUT, PATCH and DELETE. Off by default:
	// a create that timed out may already exist remotely.
	RetryWrites bool
}

// DefaultConfig retries reads twice and never times out on its own.
func DefaultConfig() Config {
	return Config{
		UserAgent: "flowgate/dev",
		Retry: RetryPolicy{
			MaxRetries: 2,
			Initial:    200 * time.Millisecond,
			Max:        5 * time.Second,
		},
	}
}

// Validate reports every problem with c at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative (got %v)", c.Timeout))
	}
	if c.UserAgent == "" {
		errs = append(errs, errors.New("user agent must be set"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests per second must not be negative (got %v)", c.RequestsPerSecond))
	}

	r := c.Retry
	switch {
	case r.MaxRetries < 0:
		errs = append(errs, fmt.Errorf("retry: max retries must not be negative (got %d)", r.MaxRetries))
	case r.MaxRetries == 0:
	case r.Initial <= 0:
		errs = append(errs, fmt.Errorf("retry: initial delay must be positive (got %v)", r.Initial))
	case r.Max < r.Initial:
		errs = append(errs, fmt.Errorf("retry: max delay %v is below initial delay %v", r.Max, r.Initial))
	}
	return errors.Join(errs...)
}
