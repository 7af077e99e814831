// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Bubble is an ephemeral, render-only grouping of consecutive values sharing
// a type. Content, Files and Sources are never nil.
type Bubble struct {
	CreatedBy string        `json:"createdBy"`
	CreatedAt time.Time     `json:"createdAt"`
	Type      ValueType     `json:"type"`
	Content   []ContentItem `json:"content"`
	Files     []FileRef     `json:"files"`
	Sources   []Source      `json:"sources"`

	// Set only on standalone _user form bubbles.
	UserOutputForm  *FormRequest    `json:"userOutputForm,omitempty"`
	UserInputAnswer json.RawMessage `json:"userInputAnswer,omitempty"`
}

// NewBubble returns a bubble with empty, non-nil collections.
func NewBubble(typ ValueType, createdBy string, createdAt time.Time) Bubble {
	return Bubble{
		CreatedBy: createdBy,
		CreatedAt: createdAt,
		Type:      typ,
		Content:   []ContentItem{},
		Files:     []FileRef{},
		Sources:   []Source{},
	}
}

// IsForm reports whether the bubble is a standalone form exchange.
func (b Bubble) IsForm() bool {
	return b.UserOutputForm != nil
}

// Text joins the text of all content items with newlines.
func (b Bubble) Text() string {
	var sb strings.Builder
	for i, item := range b.Content {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(item.Text)
	}
	return sb.String()
}
