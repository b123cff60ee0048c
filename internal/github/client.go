// Package github is the sole boundary to the GitHub Projects v2 GraphQL API.
//
// The client layers retry with exponential backoff and rate-limit awareness
// under typed query/mutation wrappers, bounds request concurrency, and
// serializes mutations that target the same project item.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultAPIEndpoint is the GitHub GraphQL endpoint.
	DefaultAPIEndpoint = "https://api.github.com/graphql"

	// DefaultConcurrency bounds in-flight requests.
	DefaultConcurrency = 8

	// DefaultRequestTimeout is the per-request deadline.
	DefaultRequestTimeout = 30 * time.Second

	// Retry policy: base delay, growth factor 2, jitter +-20%, 6 attempts.
	retryBase     = 500 * time.Millisecond
	retryJitter   = 0.2
	maxAttempts   = 6
)

// GraphQL error codes the API returns in errors[].type.
const (
	codeRateLimited          = "RATE_LIMITED"
	codeSecondaryRateLimited = "SECONDARY_RATE_LIMITED"
	codeInternal             = "INTERNAL"
	codeNotFound             = "NOT_FOUND"
	codeForbidden            = "FORBIDDEN"
	codeUnprocessable        = "UNPROCESSABLE"
)

// ErrNotFound marks a terminal NOT_FOUND from the API, used by callers to
// distinguish "board missing" (bootstrap candidate) from other failures.
var ErrNotFound = errors.New("not found")

// GraphQLError is one entry of a GraphQL errors array.
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RequestError is the structured failure of one API call.
type RequestError struct {
	Operation string
	Status    int
	Errors    []GraphQLError
	Err       error
}

func (e *RequestError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s: %s: %s", e.Operation, e.Errors[0].Type, e.Errors[0].Message)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *RequestError) Unwrap() error {
	for _, ge := range e.Errors {
		if ge.Type == codeNotFound {
			return ErrNotFound
		}
	}
	return e.Err
}

// Terminal reports whether retrying cannot help.
func (e *RequestError) Terminal() bool {
	for _, ge := range e.Errors {
		switch ge.Type {
		case codeNotFound, codeForbidden, codeUnprocessable:
			return true
		}
	}
	return len(e.Errors) > 0 && !e.retryable()
}

func (e *RequestError) retryable() bool {
	if e.Err != nil && len(e.Errors) == 0 && e.Status == 0 {
		return true // transport error
	}
	if e.Status >= 500 || e.Status == http.StatusTooManyRequests {
		return true
	}
	for _, ge := range e.Errors {
		switch ge.Type {
		case codeRateLimited, codeSecondaryRateLimited, codeInternal:
			return true
		}
	}
	return false
}

// Client executes GraphQL operations against one endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	tokens     TokenProvider
	log        *zap.Logger

	sem *semaphore.Weighted

	// itemLocks serializes mutations on the same project item so that two
	// queued field updates can never interleave into a lost update.
	itemMu    sync.Mutex
	itemLocks map[string]*sync.Mutex

	mutations atomic.Int64
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at a different endpoint (mock servers,
// GitHub Enterprise).
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithConcurrency caps in-flight requests.
func WithConcurrency(n int64) Option {
	return func(c *Client) { c.sem = semaphore.NewWeighted(n) }
}

// NewClient builds a client around the given token provider.
func NewClient(tokens TokenProvider, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultAPIEndpoint,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		tokens:     tokens,
		log:        log,
		sem:        semaphore.NewWeighted(DefaultConcurrency),
		itemLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mutations returns the count of mutations performed so far.
func (c *Client) Mutations() int64 { return c.mutations.Load() }

// lockItem serializes mutations per project item. The returned func
// releases the lock.
func (c *Client) lockItem(itemID string) func() {
	c.itemMu.Lock()
	mu, ok := c.itemLocks[itemID]
	if !ok {
		mu = &sync.Mutex{}
		c.itemLocks[itemID] = mu
	}
	c.itemMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// execute runs one operation with retry, decoding data into out when out is
// non-nil. operation names the call for logs and errors; itemID, when
// non-empty, serializes the call against other mutations of the same item.
func (c *Client) execute(ctx context.Context, operation, itemID, query string, variables map[string]any, out any, mutation bool) error {
	if itemID != "" {
		unlock := c.lockItem(itemID)
		defer unlock()
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	var lastErr *RequestError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		start := time.Now()
		data, reqErr := c.doRequest(ctx, operation, query, variables)
		duration := time.Since(start)

		if reqErr == nil {
			c.log.Debug("graphql request",
				zap.String("operation", operation),
				zap.Duration("duration", duration),
				zap.Int("attempt", attempt),
				zap.String("outcome", "ok"))
			if mutation {
				c.mutations.Add(1)
			}
			if out != nil {
				if err := json.Unmarshal(data, out); err != nil {
					return &RequestError{Operation: operation, Err: fmt.Errorf("decode response: %w", err)}
				}
			}
			return nil
		}

		lastErr = reqErr
		c.log.Debug("graphql request",
			zap.String("operation", operation),
			zap.Duration("duration", duration),
			zap.Int("attempt", attempt),
			zap.String("outcome", "error"),
			zap.Error(reqErr))

		if reqErr.Terminal() || !reqErr.retryable() || attempt == maxAttempts {
			break
		}
		if err := c.sleepBeforeRetry(ctx, reqErr, attempt); err != nil {
			return err
		}
	}
	return lastErr
}

// doRequest performs a single HTTP round trip and classifies the outcome.
func (c *Client) doRequest(ctx context.Context, operation, query string, variables map[string]any) (json.RawMessage, *RequestError) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &RequestError{Operation: operation, Err: err}
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, &RequestError{Operation: operation, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &RequestError{Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Operation: operation, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
		return nil, &RequestError{Operation: operation, Status: resp.StatusCode,
			Err: fmt.Errorf("%w: token rejected", ErrAuth)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		re := &RequestError{Operation: operation, Status: resp.StatusCode,
			Err: fmt.Errorf("http %d: %s", resp.StatusCode, truncate(respBody, 200))}
		re.Err = withRetryAfter(re.Err, resp.Header.Get("Retry-After"))
		return nil, re
	}

	var gql graphQLResponse
	if err := json.Unmarshal(respBody, &gql); err != nil {
		return nil, &RequestError{Operation: operation, Err: fmt.Errorf("parse response: %w", err)}
	}
	if len(gql.Errors) > 0 {
		return nil, &RequestError{Operation: operation, Errors: gql.Errors}
	}
	return gql.Data, nil
}

// retryAfterError carries a server-provided reset delay through the retry
// loop so the sleep honors it instead of backing off blindly.
type retryAfterError struct {
	err   error
	after time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

func withRetryAfter(err error, header string) error {
	if header == "" {
		return err
	}
	if secs, perr := strconv.Atoi(header); perr == nil && secs > 0 {
		return &retryAfterError{err: err, after: time.Duration(secs) * time.Second}
	}
	return err
}

func (c *Client) sleepBeforeRetry(ctx context.Context, reqErr *RequestError, attempt int) error {
	delay := backoffDelay(attempt)
	var ra *retryAfterError
	if errors.As(reqErr.Err, &ra) {
		delay = ra.after
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// backoffDelay computes base * 2^(attempt-1) with +-20% jitter.
func backoffDelay(attempt int) time.Duration {
	d := retryBase << (attempt - 1)
	jitter := 1 + retryJitter*(2*rand.Float64()-1)
	return time.Duration(float64(d) * jitter)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
