package httpclient

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/flowgate/internal/tracing"
	"golang.org/x/time/rate"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

type middleware func(http.RoundTripper) http.RoundTripper

// New validates cfg and builds a client on a fresh pooled transport.
func New(cfg Config) (*http.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: NewTransport(cfg, nil),
		Timeout:   cfg.Timeout,
	}, nil
}

// NewTransport stacks the client's layers on base. Outermost first they are
// retry, throttling, correlation and trace headers, then logging. A nil base
// gets a pooled transport that refuses anything below TLS 1.2.
func NewTransport(cfg Config, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = pooledTransport()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	layers := []middleware{
		withLogging(cfg.UserAgent, logger),
		func(next http.RoundTripper) http.RoundTripper {
			return &tracing.CorrelationRoundTripper{Transport: next}
		},
	}
	if cfg.RequestsPerSecond > 0 {
		layers = append(layers, withRateLimit(rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)))
	}
	if cfg.Retry.MaxRetries > 0 {
		layers = append(layers, withRetry(cfg.Retry, logger))
	}

	rt := base
	for _, wrap := range layers {
		rt = wrap(rt)
	}
	return rt
}

func pooledTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	t.MaxIdleConns = 50
	t.MaxIdleConnsPerHost = 10
	t.TLSHandshakeTimeout = 10 * time.Second
	return t
}

func withRateLimit(limiter *rate.Limiter) middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if err := limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
			return next.RoundTrip(req)
		})
	}
}
