// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// readChunkSize is the size of each body read while streaming.
const readChunkSize = 32 * 1024

// ProgressFunc receives the full response body received so far. Returning an
// error aborts the stream and that error is returned unchanged.
type ProgressFunc func(cumulative string) error

// StreamError is a failure after the response started, carrying whatever
// body was received before it.
type StreamError struct {
	Partial string
	Err     error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content received: %d bytes): %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STREAMING ENDPOINTS
// =============================================================================

// StreamMessage posts a new message and streams the response.
func (c *Client) StreamMessage(ctx context.Context, req CreateMessageRequest, onProgress ProgressFunc) error {
	return c.stream(ctx, EndpointCreateMessage, c.baseURL+"/messages", req.MessageThreadID, req, onProgress)
}

// StreamValue posts a follow-up value to an existing message and streams the
// response.
func (c *Client) StreamValue(ctx context.Context, messageID string, req AddValueRequest, onProgress ProgressFunc) error {
	endpoint := c.baseURL + "/messages/" + url.PathEscape(messageID) + "/values"
	return c.stream(ctx, EndpointAddValue, endpoint, req.MessageThreadID, req, onProgress)
}

func (c *Client) stream(ctx context.Context, label, endpoint, threadID string, body any, onProgress ProgressFunc) (err error) {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	ctx, span := c.tracer.Start(ctx, "cloud.stream."+label,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("http.route", label),
		))
	defer func() {
		if err != nil {
			recordSpanError(span, err)
		}
		span.End()
	}()

	if err := c.wait(ctx); err != nil {
		return err
	}

	req, err := c.post(ctx, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(label, 0)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.ObserveRequest(label, resp.StatusCode)
	c.log.Debug("API stream opened", "path", req.URL.Path,
		"status", resp.StatusCode, "thread_id", threadID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, readErr := c.readBody(resp.Body)
		if readErr != nil {
			raw = nil
		}
		return newAPIError(resp.StatusCode, raw)
	}

	n, err := c.readCumulative(ctx, resp.Body, onProgress)
	span.SetAttributes(attribute.Int("response.bytes", n))
	c.log.Debug("API stream closed", "path", req.URL.Path, "bytes", n,
		"duration", time.Since(start))
	return err
}

// readCumulative reads body until EOF, calling onProgress with the whole
// buffer after every successful read.
func (c *Client) readCumulative(ctx context.Context, body io.Reader, onProgress ProgressFunc) (int, error) {
	var acc strings.Builder
	chunk := make([]byte, readChunkSize)

	for {
		n, err := body.Read(chunk)
		if n > 0 {
			if int64(acc.Len()+n) > c.maxResponseSize {
				return acc.Len(), &StreamError{Partial: acc.String(), Err: ErrResponseTooLarge}
			}
			acc.Write(chunk[:n])
			if onProgress != nil {
				if perr := onProgress(acc.String()); perr != nil {
					return acc.Len(), perr
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return acc.Len(), nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return acc.Len(), &StreamError{Partial: acc.String(), Err: err}
		}
	}
}
