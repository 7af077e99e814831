// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the HTTP transport for the message API.
//
// Three endpoints are covered:
//
//   - POST /messages                          (streamed, new message)
//   - POST /messages/{id}/values              (streamed, follow-up input)
//   - GET  /messagethreads/{threadId}/messages (thread history)
//
// Streaming calls read the response body incrementally and hand the whole
// body received so far to an onProgress callback after every read. Callers
// therefore always see the cumulative buffer, never a delta.
//
// # Key Types
//
//   - Client: Transport with rate limiting, tracing and size limits
//   - APIError: Non-2xx response from the API
//   - StreamError: Failure mid-stream, carrying the partial body
//
// # Usage
//
//	client := cloud.NewClient("https://api.example.com").
//		WithToken(token).
//		WithLogger(log)
//	err := client.StreamMessage(ctx, req, func(buf string) error {
//		return nil
//	})
package cloud
