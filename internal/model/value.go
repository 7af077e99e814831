// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"

	"golang.org/x/text/cases"
)

// Well-known value names.
const (
	ValuePrompt   = "prompt"
	ValueResponse = "response"
	ValueContent  = "content"
	ValueUser     = "_user"
	ValueFiles    = "files"
	ValueSources  = "sources"
)

// =============================================================================
// VALUE KIND (tagged union over MessageValue.Name)
// =============================================================================

// ValueKind is the variant of a MessageValue selected by its name.
// KindDefault is the explicit catch-all for every other name.
type ValueKind int

const (
	KindDefault ValueKind = iota
	KindPrompt
	KindResponse
	KindContent
	KindUser
	KindFiles
	KindSources
)

// String returns the canonical value name for the kind.
func (k ValueKind) String() string {
	switch k {
	case KindPrompt:
		return ValuePrompt
	case KindResponse:
		return ValueResponse
	case KindContent:
		return ValueContent
	case KindUser:
		return ValueUser
	case KindFiles:
		return ValueFiles
	case KindSources:
		return ValueSources
	default:
		return "default"
	}
}

// IsText reports whether the kind carries conversational text
// (prompt, response or content).
func (k ValueKind) IsText() bool {
	return k == KindPrompt || k == KindResponse || k == KindContent
}

// KindOf maps a value name to its variant, ignoring case.
func KindOf(name string) ValueKind {
	switch FoldName(name) {
	case ValuePrompt:
		return KindPrompt
	case ValueResponse:
		return KindResponse
	case ValueContent:
		return KindContent
	case ValueUser:
		return KindUser
	case ValueFiles:
		return KindFiles
	case ValueSources:
		return KindSources
	default:
		return KindDefault
	}
}

// FoldName case-folds a value name for comparison.
// A Caser is stateful, so a fresh one is built per call.
func FoldName(name string) string {
	return cases.Fold().String(name)
}

// =============================================================================
// VALUE PAYLOADS
// =============================================================================

// ContentItem is one renderable piece of text or image content.
type ContentItem struct {
	Text  string          `json:"text,omitempty"`
	Image json.RawMessage `json:"image,omitempty"`

	// Failed marks an item synthesized for a value that was never generated.
	Failed bool `json:"failed,omitempty"`
}

// FileRef references an uploaded file.
type FileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Source is a citation attached to a response.
type Source struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// FormRequest is the payload of an Output-type _user value: a message to show
// and a JSON schema describing the expected answer.
type FormRequest struct {
	Message string          `json:"message"`
	Schema  json.RawMessage `json:"schema,omitempty"`
}
