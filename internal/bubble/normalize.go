// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bubble

import (
	"bytes"
	"encoding/json"

	"github.com/jeranaias/threadline/internal/model"
)

// FailedText is shown in place of a text value that was never generated.
const FailedText = "Failed to generate a response."

// failedItem is the content item pushed for a null text value.
func failedItem() model.ContentItem {
	return model.ContentItem{Text: FailedText, Failed: true}
}

// normalize converts a raw value into content items:
// string → text item, array → concatenated items, object with text or
// image → the item as-is, anything else → its JSON text. Null yields nothing.
func normalize(raw json.RawMessage) []model.ContentItem {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	switch raw[0] {
	case 'n':
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return []model.ContentItem{{Text: s}}
		}
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err == nil {
			var items []model.ContentItem
			for _, e := range elems {
				items = append(items, normalize(e)...)
			}
			return items
		}
	case '{':
		if item, ok := contentObject(raw); ok {
			return []model.ContentItem{item}
		}
	}
	return []model.ContentItem{{Text: stringify(raw)}}
}

// contentObject decodes an object carrying a text or image field.
func contentObject(raw json.RawMessage) (model.ContentItem, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return model.ContentItem{}, false
	}
	_, hasText := fields["text"]
	_, hasImage := fields["image"]
	if !hasText && !hasImage {
		return model.ContentItem{}, false
	}
	var item model.ContentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.ContentItem{}, false
	}
	return item, true
}

func stringify(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// responseEnvelope reports whether raw is an object carrying both content
// and sources, and returns them.
func responseEnvelope(raw json.RawMessage) (content json.RawMessage, sources []model.Source, ok bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, nil, false
	}
	content, hasContent := fields["content"]
	rawSources, hasSources := fields["sources"]
	if !hasContent || !hasSources {
		return nil, nil, false
	}
	return content, decodeSources(rawSources), true
}

// decodeFiles returns the file list carried by raw, wrapping a single
// reference in a one-element list. Undecodable elements are skipped.
func decodeFiles(raw json.RawMessage) []model.FileRef {
	out := []model.FileRef{}
	for _, elem := range listElements(raw) {
		var f model.FileRef
		if err := json.Unmarshal(elem, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// decodeSources returns the source list carried by raw.
func decodeSources(raw json.RawMessage) []model.Source {
	out := []model.Source{}
	for _, elem := range listElements(raw) {
		var s model.Source
		if err := json.Unmarshal(elem, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// listElements splits a JSON array into its elements; any other non-null
// value is treated as a single element.
func listElements(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
		return elems
	}
	return []json.RawMessage{raw}
}

// decodeForm reads a _user Output payload. A bare string becomes the message.
func decodeForm(raw json.RawMessage) *model.FormRequest {
	form := &model.FormRequest{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return form
	}
	if raw[0] == '"' {
		_ = json.Unmarshal(raw, &form.Message)
		return form
	}
	if err := json.Unmarshal(raw, form); err != nil {
		form.Message = stringify(raw)
	}
	return form
}
