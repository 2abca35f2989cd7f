package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"
)

func withRetry(p RetryPolicy, logger *slog.Logger) middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if !replayable(req, p.RetryWrites) {
				return next.RoundTrip(req)
			}
			return retryLoop(req, next, p, logger)
		})
	}
}

// replayable reports whether req may be sent more than once.
func replayable(req *http.Request, writes bool) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, "":
	default:
		if !writes {
			return false
		}
	}
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func retryLoop(req *http.Request, next http.RoundTripper, p RetryPolicy, logger *slog.Logger) (*http.Response, error) {
	ctx := req.Context()
	for retry := 0; ; retry++ {
		resp, err := next.RoundTrip(req)
		if retry == p.MaxRetries || !transient(resp, err) {
			return resp, err
		}

		wait := p.delay(retry + 1)
		if resp != nil {
			if ra := retryAfter(resp.Header.Get("Retry-After"), time.Now()); ra > 0 && ra < wait {
				wait = ra
			}
			discard(resp)
		}
		logger.DebugContext(ctx, "retrying request",
			"method", req.Method,
			"retry", retry+1,
			"wait_ms", wait.Milliseconds(),
		)
		if err := sleep(ctx, wait); err != nil {
			return nil, err
		}

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req = req.Clone(ctx)
			req.Body = body
		}
	}
}

// transient classifies a round trip result as worth retrying.
func transient(resp *http.Response, err error) bool {
	if err != nil {
		return transientErr(err)
	}
	switch code := resp.StatusCode; {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	case code == http.StatusNotImplemented:
		return false
	default:
		return code >= 500 && code <= 599
	}
}

func transientErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, target := range []error{syscall.ECONNREFUSED, syscall.ECONNRESET, io.ErrUnexpectedEOF, io.EOF} {
		if errors.Is(err, target) {
			return true
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// delay is Initial doubled per retry and capped at Max, plus up to a fifth
// of jitter.
func (p RetryPolicy) delay(retry int) time.Duration {
	d := p.Initial
	for i := 1; i < retry && d < p.Max; i++ {
		d *= 2
	}
	d = min(d, p.Max)
	return d + time.Duration(rand.Int64N(int64(d)/5+1))
}

// retryAfter reads a Retry-After value given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
