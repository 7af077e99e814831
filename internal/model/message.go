// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for message threads.
package model

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TempIDPrefix marks identifiers minted locally for optimistic entries.
const TempIDPrefix = "temp-"

// =============================================================================
// VALUE TYPE
// =============================================================================

// ValueType says whether a value was supplied by the user or produced by the system.
type ValueType string

const (
	TypeInput  ValueType = "Input"
	TypeOutput ValueType = "Output"
)

// String returns the string representation of the value type.
func (t ValueType) String() string {
	return string(t)
}

// Valid reports whether t is one of the two known discriminants.
func (t ValueType) Valid() bool {
	return t == TypeInput || t == TypeOutput
}

// =============================================================================
// MESSAGE VALUE
// =============================================================================

// MessageValue is one semantic field produced at a point in a conversation turn.
// Value is kept as raw JSON; its shape depends on Name (see Kind).
type MessageValue struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            ValueType       `json:"type"`
	Value           json.RawMessage `json:"value"`
	Channels        map[string]int  `json:"channels"`
	CreatedAt       time.Time       `json:"createdAt"`
	CreatedBy       string          `json:"createdBy"`
	CreatedByUserID string          `json:"createdByUserId,omitempty"`
}

// Kind returns the tagged-union variant selected by the value's name.
func (v MessageValue) Kind() ValueKind {
	return KindOf(v.Name)
}

// IsNull reports whether the value payload is missing or JSON null.
func (v MessageValue) IsNull() bool {
	trimmed := bytes.TrimSpace(v.Value)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Clone returns a deep copy of the value.
func (v MessageValue) Clone() MessageValue {
	out := v
	if v.Value != nil {
		out.Value = append(json.RawMessage(nil), v.Value...)
	}
	if v.Channels != nil {
		out.Channels = make(map[string]int, len(v.Channels))
		for k, idx := range v.Channels {
			out.Channels[k] = idx
		}
	}
	return out
}

// =============================================================================
// ERROR RECORD
// =============================================================================

// ErrorRecord is a message-level domain error reported by the server.
type ErrorRecord struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    string `json:"data,omitempty"`
	BlockID string `json:"blockId,omitempty"`
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one conversation turn.
type Message struct {
	// Identity
	ID              string    `json:"id,omitempty"`
	MessageThreadID string    `json:"messageThreadId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	CreatedBy       string    `json:"createdBy"`
	CreatedByUserID string    `json:"createdByUserId,omitempty"`

	// Content
	Values []MessageValue `json:"values"`
	Errors []ErrorRecord  `json:"errors,omitempty"`

	// Optimistic is true only for client-synthesized entries not yet
	// confirmed by the server. It is never serialized.
	Optimistic bool `json:"-"`
}

// NewTempID returns a fresh temporary identifier for an optimistic entry.
func NewTempID() string {
	return TempIDPrefix + uuid.New().String()
}

// NewOptimisticMessage builds the placeholder inserted before a send is confirmed.
// Files, when present, precede the prompt so both land in one bubble.
func NewOptimisticMessage(createdBy, content string, files []FileRef) Message {
	now := time.Now().UTC()
	msg := Message{
		ID:         NewTempID(),
		CreatedAt:  now,
		CreatedBy:  createdBy,
		Optimistic: true,
	}
	if len(files) > 0 {
		msg.Values = append(msg.Values, NewInputValue(ValueFiles, mustMarshal(files), nil, createdBy, now))
	}
	prompt := []ContentItem{{Text: content}}
	msg.Values = append(msg.Values, NewInputValue(ValuePrompt, mustMarshal(prompt), nil, createdBy, now))
	return msg
}

// NewInputValue builds an Input-type value with a temporary id.
func NewInputValue(name string, value json.RawMessage, channels map[string]int, createdBy string, at time.Time) MessageValue {
	if channels == nil {
		channels = map[string]int{}
	}
	return MessageValue{
		ID:        NewTempID(),
		Name:      name,
		Type:      TypeInput,
		Value:     value,
		Channels:  channels,
		CreatedAt: at,
		CreatedBy: createdBy,
	}
}

// PromptSignature returns the canonical serialized form of the message's
// prompt-named Input value. ok is false when the message has no prompt.
func (m Message) PromptSignature() (sig string, ok bool) {
	for _, v := range m.Values {
		if v.Type != TypeInput || v.Kind() != KindPrompt {
			continue
		}
		return CanonicalJSON(v.Value), true
	}
	return "", false
}

// ValueIndex returns the position of the value with the given id, or -1.
func (m Message) ValueIndex(id string) int {
	for i, v := range m.Values {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Values != nil {
		out.Values = make([]MessageValue, len(m.Values))
		for i, v := range m.Values {
			out.Values[i] = v.Clone()
		}
	}
	if m.Errors != nil {
		out.Errors = append([]ErrorRecord(nil), m.Errors...)
	}
	return out
}

// CanonicalJSON re-encodes raw JSON so that semantically equal documents
// compare equal as strings: object keys sorted, insignificant whitespace
// removed, numbers kept verbatim. Undecodable input is returned trimmed.
func CanonicalJSON(raw json.RawMessage) string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(bytes.TrimSpace(raw))
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(bytes.TrimSpace(raw))
	}
	return string(out)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Only called with plain structs and slices of them.
		panic(err)
	}
	return data
}
