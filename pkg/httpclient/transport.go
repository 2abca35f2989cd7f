package httpclient

import (
	"log/slog"
	"net/http"
	"time"
)

// withLogging fills in the User-Agent and logs every round trip. Server
// errors and transport failures log at warn, everything else at debug.
func withLogging(userAgent string, logger *slog.Logger) middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("User-Agent") == "" {
				req = req.Clone(req.Context())
				req.Header.Set("User-Agent", userAgent)
			}

			began := time.Now()
			resp, err := next.RoundTrip(req)
			attrs := []any{
				"method", req.Method,
				"url", redactURL(req.URL),
				"duration_ms", time.Since(began).Milliseconds(),
			}

			switch {
			case err != nil:
				logger.WarnContext(req.Context(), "http request failed", append(attrs, "error", err)...)
			case resp.StatusCode >= 500:
				logger.WarnContext(req.Context(), "http request", append(attrs, "status", resp.StatusCode)...)
			default:
				logger.DebugContext(req.Context(), "http request", append(attrs, "status", resp.StatusCode)...)
			}
			return resp, err
		})
	}
}
