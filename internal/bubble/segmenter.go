// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bubble

import (
	"time"

	"github.com/jeranaias/threadline/internal/channels"
	"github.com/jeranaias/threadline/internal/model"
)

// =============================================================================
// ACCUMULATOR
// =============================================================================

// accumulator is the single open group of the scan.
type accumulator struct {
	typ       model.ValueType
	createdBy string
	createdAt time.Time

	content []model.ContentItem
	files   []model.FileRef
	sources []model.Source

	// field is the folded name of the value that produced the current content.
	field string
}

func (a *accumulator) empty() bool {
	return len(a.content) == 0 && len(a.files) == 0 && len(a.sources) == 0
}

// flush closes the open group into a bubble appended to out.
// An empty group produces nothing.
func (a *accumulator) flush(out []model.Bubble) []model.Bubble {
	if a.empty() {
		return out
	}
	b := model.NewBubble(a.typ, a.createdBy, a.createdAt)
	b.Content = append(b.Content, a.content...)
	b.Files = append(b.Files, a.files...)
	b.Sources = append(b.Sources, a.sources...)
	out = append(out, b)

	a.content = nil
	a.files = nil
	a.sources = nil
	a.field = ""
	return out
}

func (a *accumulator) touch(v model.MessageValue) {
	a.createdAt = v.CreatedAt
	a.createdBy = v.CreatedBy
}

// =============================================================================
// SEGMENT
// =============================================================================

// Segment turns values, already sorted by CreatedAt, into bubbles.
func Segment(values []model.MessageValue) []model.Bubble {
	out := []model.Bubble{}
	var acc accumulator
	started := false

	for _, v := range values {
		if started && v.Type != acc.typ {
			out = acc.flush(out)
		}
		acc.typ = v.Type
		started = true

		switch kind := v.Kind(); kind {
		case model.KindPrompt, model.KindResponse, model.KindContent:
			if len(acc.content) > 0 {
				out = acc.flush(out)
			}
			applyText(&acc, v, kind)

		case model.KindUser:
			if v.Type == model.TypeOutput {
				// Keep the visual order: whatever was open precedes the form.
				out = acc.flush(out)
				out = append(out, formBubble(v, values))
			}
			// Input answers are only match targets.
			continue

		case model.KindFiles:
			acc.files = decodeFiles(v.Value)

		case model.KindSources:
			acc.sources = decodeSources(v.Value)

		case model.KindDefault:
			name := model.FoldName(v.Name)
			if len(acc.content) > 0 && acc.field != name {
				out = acc.flush(out)
			}
			if items := normalize(v.Value); len(items) > 0 {
				acc.content = append(acc.content, items...)
				acc.field = name
			}
		}

		acc.touch(v)
	}

	return acc.flush(out)
}

// applyText handles prompt, response and content values.
func applyText(acc *accumulator, v model.MessageValue, kind model.ValueKind) {
	acc.field = model.FoldName(v.Name)

	if v.IsNull() {
		acc.content = append(acc.content, failedItem())
		return
	}
	if kind == model.KindResponse {
		if content, sources, ok := responseEnvelope(v.Value); ok {
			acc.content = append(acc.content, normalize(content)...)
			acc.sources = sources
			return
		}
	}
	acc.content = append(acc.content, normalize(v.Value)...)
}

// formBubble builds the standalone bubble for a _user form request.
func formBubble(output model.MessageValue, values []model.MessageValue) model.Bubble {
	b := model.NewBubble(model.TypeOutput, output.CreatedBy, output.CreatedAt)
	b.UserOutputForm = decodeForm(output.Value)
	if answer, ok := channels.FindPair(values, output); ok && !answer.IsNull() {
		b.UserInputAnswer = answer.Value
	}
	return b
}
