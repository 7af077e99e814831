// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/jeranaias/threadline/internal/logging"
	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/schema"
	"github.com/jeranaias/threadline/internal/telemetry"
)

const (
	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of attempts for history requests.
	DefaultMaxRetries = 3

	// DefaultMaxResponseSize caps any single response body.
	DefaultMaxResponseSize = 10 * 1024 * 1024

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "threadline/0.1.0"

	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 10 * time.Second

	tracerName = "github.com/jeranaias/threadline/internal/cloud"
)

// Endpoint labels used for metrics and spans.
const (
	EndpointCreateMessage = "create_message"
	EndpointAddValue      = "add_value"
	EndpointListMessages  = "list_messages"
)

var (
	// ErrNotConfigured indicates the client has no base URL.
	ErrNotConfigured = errors.New("message API base URL not configured")

	// ErrUnauthorized indicates the token was missing or rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates the thread or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrResponseTooLarge indicates the body exceeded the size cap.
	ErrResponseTooLarge = errors.New("response exceeded maximum size")
)

// sharedHTTPClient pools connections across clients. Streams are bounded by
// their context, so it carries no overall timeout.
var sharedHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// =============================================================================
// ERRORS
// =============================================================================

// APIError is a non-2xx response from the message API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("message API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("message API error (HTTP %d): %s", e.Status, e.Message)
}

// Is maps well-known statuses onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Temporary reports whether retrying the request could succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Code = parsed.Error.Code
		apiErr.Message = parsed.Error.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Message
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ValueInput is one value submitted with a new message.
type ValueInput struct {
	Name     string          `json:"name"`
	Type     model.ValueType `json:"type"`
	Value    json.RawMessage `json:"value"`
	Channels map[string]int  `json:"channels"`
}

// CreateMessageRequest is the body of POST /messages.
type CreateMessageRequest struct {
	MessageThreadID string       `json:"messageThreadId"`
	Values          []ValueInput `json:"values"`
}

// AddValueRequest is the body of POST /messages/{id}/values.
type AddValueRequest struct {
	MessageThreadID string          `json:"messageThreadId"`
	Name            string          `json:"name"`
	Type            model.ValueType `json:"type"`
	Value           json.RawMessage `json:"value"`
	Channels        map[string]int  `json:"channels"`
}

// NewCreateMessageRequest builds a request from an optimistic message's values.
func NewCreateMessageRequest(threadID string, msg model.Message) CreateMessageRequest {
	req := CreateMessageRequest{
		MessageThreadID: threadID,
		Values:          make([]ValueInput, 0, len(msg.Values)),
	}
	for _, v := range msg.Values {
		ch := v.Channels
		if ch == nil {
			ch = map[string]int{}
		}
		req.Values = append(req.Values, ValueInput{
			Name:     v.Name,
			Type:     v.Type,
			Value:    v.Value,
			Channels: ch,
		})
	}
	return req
}

// TokenSource returns the bearer token for a request. An empty token sends
// no Authorization header.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	token = strings.TrimSpace(token)
	return func(context.Context) (string, error) { return token, nil }
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the message API.
type Client struct {
	baseURL         string
	userAgent       string
	tokens          TokenSource
	httpClient      *http.Client
	timeout         time.Duration
	maxRetries      int
	maxResponseSize int64
	limiter         *rate.Limiter
	validator       *schema.Validator
	log             *logging.Logger
	metrics         *telemetry.Metrics
	tracer          trace.Tracer
	backoff         func(attempt int) time.Duration
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:         strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		userAgent:       DefaultUserAgent,
		tokens:          StaticToken(""),
		httpClient:      sharedHTTPClient,
		timeout:         DefaultTimeout,
		maxRetries:      DefaultMaxRetries,
		maxResponseSize: DefaultMaxResponseSize,
		validator:       schema.New(),
		log:             logging.Nop(),
		tracer:          otel.Tracer(tracerName),
		backoff:         calculateBackoff,
	}
}

// WithToken sets a static bearer token.
func (c *Client) WithToken(token string) *Client {
	c.tokens = StaticToken(token)
	return c
}

// WithTokenSource sets a dynamic bearer token provider.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	if ts != nil {
		c.tokens = ts
	}
	return c
}

// WithUserAgent sets the User-Agent header.
func (c *Client) WithUserAgent(ua string) *Client {
	if ua != "" {
		c.userAgent = ua
	}
	return c
}

// WithHTTPClient replaces the pooled HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithTimeout bounds each non-streaming attempt.
func (c *Client) WithTimeout(d time.Duration) *Client {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// WithMaxRetries sets the attempt count for history requests.
func (c *Client) WithMaxRetries(n int) *Client {
	if n > 0 {
		c.maxRetries = n
	}
	return c
}

// WithMaxResponseSize caps response bodies in bytes.
func (c *Client) WithMaxResponseSize(n int64) *Client {
	if n > 0 {
		c.maxResponseSize = n
	}
	return c
}

// WithRateLimit throttles outgoing requests. rps <= 0 disables limiting.
func (c *Client) WithRateLimit(rps float64, burst int) *Client {
	if rps <= 0 {
		c.limiter = nil
		return c
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return c
}

// WithValidator sets the schema validator used for history responses.
func (c *Client) WithValidator(v *schema.Validator) *Client {
	if v != nil {
		c.validator = v
	}
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l *logging.Logger) *Client {
	c.log = logging.OrNop(l)
	return c
}

// WithMetrics sets the metrics sink.
func (c *Client) WithMetrics(m *telemetry.Metrics) *Client {
	c.metrics = m
	return c
}

// WithTracer overrides the global OpenTelemetry tracer.
func (c *Client) WithTracer(t trace.Tracer) *Client {
	if t != nil {
		c.tracer = t
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// IsConfigured reports whether the client has somewhere to send requests.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// =============================================================================
// HISTORY
// =============================================================================

// ListMessages fetches a thread's history, newest-first as the server
// returns it. Every record is validated. 5xx and 429 responses are retried
// with exponential backoff.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]model.Message, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	endpoint := c.baseURL + "/messagethreads/" + url.PathEscape(threadID) + "/messages"

	ctx, span := c.tracer.Start(ctx, "cloud.ListMessages",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		body, err := c.get(ctx, endpoint)
		if err != nil {
			if isRetryable(err) {
				lastErr = err
				c.log.Warn("history request failed, retrying",
					"thread_id", threadID, "attempt", attempt+1, "error", err)
				continue
			}
			recordSpanError(span, err)
			return nil, err
		}

		msgs, err := c.validator.MessageList(body)
		if err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		span.SetAttributes(attribute.Int("messages.count", len(msgs)))
		return msgs, nil
	}

	err := fmt.Errorf("max retries exceeded: %w", lastErr)
	recordSpanError(span, err)
	return nil, err
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(EndpointListMessages, 0)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.ObserveRequest(EndpointListMessages, resp.StatusCode)
	c.log.Debug("API response", "method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "duration", time.Since(start))

	body, err := c.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) setHeaders(ctx context.Context, req *http.Request) error {
	req.Header.Set("User-Agent", c.userAgent)
	token, err := c.tokens(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *Client) post(ctx context.Context, endpoint string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.setHeaders(ctx, req); err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// readBody reads at most maxResponseSize bytes.
func (c *Client) readBody(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, c.maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxResponseSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, c.maxResponseSize)
	}
	return body, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}

// calculateBackoff returns 1s, 2s, 4s... capped at retryMaxDelay.
func calculateBackoff(attempt int) time.Duration {
	delay := retryBaseDelay * time.Duration(1<<uint(attempt))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
