// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"errors"
	"fmt"

	"github.com/jeranaias/threadline/internal/schema"
	"github.com/jeranaias/threadline/internal/telemetry"
)

// ErrNoValidMessage is reported when a stream completes without a single
// decodable frame.
var ErrNoValidMessage = errors.New("no valid message received")

// Kind classifies a failed operation.
type Kind string

const (
	// KindTransport covers network, HTTP status and cancellation failures.
	KindTransport Kind = "transport"

	// KindValidation means a complete frame failed schema validation.
	KindValidation Kind = "validation"

	// KindEmptyStream means the stream ended with no valid frame.
	KindEmptyStream Kind = "empty-stream"

	// KindRequest means the call was rejected before anything was sent.
	KindRequest Kind = "request"
)

// Operation names used in OpError and metrics.
const (
	OpSend     = telemetry.OpSend
	OpAddInput = telemetry.OpAddInput
	OpRefresh  = telemetry.OpRefresh
)

// OpError reports a failed reconciliation operation.
type OpError struct {
	Op       string
	ThreadID string
	Kind     Kind
	Err      error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("%s thread %s: %s: %v", e.Op, e.ThreadID, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *OpError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an OpError of the given kind.
func IsKind(err error, kind Kind) bool {
	var opErr *OpError
	return errors.As(err, &opErr) && opErr.Kind == kind
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, schema.ErrInvalidPayload):
		return KindValidation
	case errors.Is(err, ErrNoValidMessage):
		return KindEmptyStream
	default:
		return KindTransport
	}
}

func newOpError(op, threadID string, kind Kind, err error) *OpError {
	return &OpError{Op: op, ThreadID: threadID, Kind: kind, Err: err}
}
