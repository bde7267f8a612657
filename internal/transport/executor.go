package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/snowpipe-go/internal/auth"
)

// Executor wraps a single request with fresh auth headers and a bounded
// retry over the Service's idiosyncratic retryable status-code set.
// Grounded on the teacher's HTTPClient.doWithRetry: clone headers fresh
// per attempt, classify the response, recurse (here: loop) with an
// incremented attempt count, and re-evaluate the token on every attempt
// so a 403 caused by mid-flight expiry heals on retry.
type Executor struct {
	baseURI string
	pool    *Pool
	tokens  *auth.TokenCache
	retries int
}

// NewExecutor builds an Executor. retries is the number of ADDITIONAL
// attempts after the first (i.e. total attempts = retries+1).
func NewExecutor(baseURI string, pool *Pool, tokens *auth.TokenCache, retries int) *Executor {
	return &Executor{baseURI: baseURI, pool: pool, tokens: tokens, retries: retries}
}

// Do executes method+path (+body, if non-nil) against the Service,
// retrying on the status codes the Service is known to use transiently:
// 400, 403, 405, 408, 429, and any 5xx. Any other non-200 status is
// terminal. Returns the response body on a 200.
func (e *Executor) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	maxAttempts := e.retries + 1
	if maxAttempts < 1 {
		// A negative retry count should never reach here (Config.validate
		// rejects it), but guard against a direct, unvalidated Executor
		// construction making zero attempts and leaving lastErr nil below.
		maxAttempts = 1
	}

	var lastErr *retryableBadResponseError
	for attempt := 0; attempt < maxAttempts; attempt++ {
		respBody, err := e.attempt(ctx, method, path, body)
		if err == nil {
			return respBody, nil
		}

		rbe, ok := err.(*retryableBadResponseError)
		if !ok {
			return nil, err
		}
		lastErr = rbe

		// A 403 is the Service's signal that the token expired mid-flight;
		// force a remint so the next attempt doesn't retry with the same
		// stale Authorization header.
		if rbe.Status == http.StatusForbidden {
			e.tokens.Invalidate()
		}

		if attempt < maxAttempts-1 {
			log.Info().
				Str("method", method).
				Str("path", path).
				Int("attempt", attempt+1).
				Int("status", rbe.Status).
				Msgf("Retry attempt %d because status %d", attempt+1, rbe.Status)
		}
	}

	return nil, &BadResponseError{Status: lastErr.Status, Body: lastErr.Body}
}

func (e *Executor) attempt(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	token, err := e.tokens.Current()
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.baseURI+path, bodyReader)
	if err != nil {
		return nil, &RequestConstructionError{Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", "KEYPAIR_JWT")

	var status int
	var respBody []byte

	start := time.Now()
	poolErr := e.pool.With(ctx, func(conn *Conn) error {
		resp, err := conn.httpClient.Do(req)
		if err != nil {
			return &TransportFailure{Cause: err}
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return &TransportFailure{Cause: err}
		}
		return nil
	})
	duration := time.Since(start)

	if poolErr != nil {
		return nil, poolErr
	}

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", status).
		Dur("duration", duration).
		Msg("service request completed")

	if status == http.StatusOK {
		return respBody, nil
	}
	if isRetryable(status) {
		return nil, &retryableBadResponseError{Status: status, Body: respBody}
	}
	return nil, &BadResponseError{Status: status, Body: respBody}
}

func isRetryable(status int) bool {
	switch status {
	case 400, 403, 405, 408, 429:
		return true
	}
	return status >= 500 && status <= 599
}
