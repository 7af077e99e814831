// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package frame

import (
	"strings"

	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/schema"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// Delimiter separates frames in the response body.
	Delimiter = "\n\n"

	// DoneSentinel is an end-of-stream marker some servers emit; it carries no frame.
	DoneSentinel = "[DONE]"

	dataPrefix = "data:"
)

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns cumulative buffers into validated messages.
// It holds no per-stream state and is safe for concurrent use.
type Decoder struct {
	validator *schema.Validator
}

// NewDecoder creates a decoder backed by the given validator.
// A nil validator gets a fresh schema.New().
func NewDecoder(v *schema.Validator) *Decoder {
	if v == nil {
		v = schema.New()
	}
	return &Decoder{validator: v}
}

// Decode returns the message carried by the last non-empty frame of buffer.
//
// It returns (nil, nil) when there is no frame yet or the last frame is not
// yet complete JSON. A complete frame that fails validation returns a
// schema.Errors error.
func (d *Decoder) Decode(buffer string) (*model.Message, error) {
	payload, ok := LastPayload(buffer)
	if !ok {
		return nil, nil
	}
	if !schema.IsSyntaxValid([]byte(payload)) {
		return nil, nil
	}

	msg, err := d.validator.Message([]byte(payload))
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// LastPayload returns the JSON payload of the last non-empty frame in buffer.
// ok is false when the buffer holds no frame with a payload.
func LastPayload(buffer string) (payload string, ok bool) {
	fragments := strings.Split(buffer, Delimiter)
	for i := len(fragments) - 1; i >= 0; i-- {
		p := framePayload(fragments[i])
		if p == "" || p == DoneSentinel {
			continue
		}
		return p, true
	}
	return "", false
}

// framePayload strips event-stream field markers from one frame.
// data: lines are unwrapped and joined; comment, event, id and retry lines
// are dropped; any other line is kept verbatim.
func framePayload(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}

	lines := strings.Split(fragment, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimLeft(line, " \t")
		switch {
		case strings.HasPrefix(trimmed, dataPrefix):
			kept = append(kept, strings.TrimLeft(trimmed[len(dataPrefix):], " \t"))
		case strings.HasPrefix(trimmed, ":"),
			strings.HasPrefix(trimmed, "event:"),
			strings.HasPrefix(trimmed, "id:"),
			strings.HasPrefix(trimmed, "retry:"):
			continue
		default:
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
