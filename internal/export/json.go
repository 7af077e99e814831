// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter writes the thread as indented JSON. Options do not filter
// the output; the file always holds every confirmed message.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// jsonDocument wraps the thread with an export stamp.
type jsonDocument struct {
	*Thread
	ExportedAt string `json:"exportedAt"`
}

// Export converts a thread to JSON format.
func (e *JSONExporter) Export(t *Thread) ([]byte, error) {
	if t == nil {
		return nil, errors.New("thread is nil")
	}
	return json.MarshalIndent(jsonDocument{
		Thread:     t,
		ExportedAt: e.options.now().UTC().Format("2006-01-02T15:04:05Z07:00"),
	}, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
