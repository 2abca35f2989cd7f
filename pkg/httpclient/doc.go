// Package httpclient builds the HTTP client used to talk to the remote
// orchestration service.
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "flowgate/1.2.0"
//	client, err := httpclient.New(cfg)
//
// Every request carries the caller's correlation ID and W3C trace context,
// and is logged at debug level with credentials stripped from the URL.
//
// # Retries
//
// GET, HEAD and OPTIONS are retried on 408, 429, 5xx (except 501) and on
// refused, reset or timed-out connections, with doubling delays and a little
// jitter. Retry-After shortens the wait when the server asks for less.
//
// Creating or updating a workflow is never retried here. The publisher
// detects duplicates through conflicts instead of resubmitting blindly.
package httpclient
