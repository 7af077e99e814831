// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/threadline/internal/bubble"
	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/util"
)

// ErrUnknownFormat is returned by ForFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown export format")

// =============================================================================
// THREAD
// =============================================================================

// Thread is the unit of export: confirmed messages and their bubbles.
type Thread struct {
	ID       string          `json:"threadId"`
	Messages []model.Message `json:"messages"`
	Bubbles  []model.Bubble  `json:"bubbles"`
}

// NewThread builds a Thread from msgs, skipping optimistic entries.
func NewThread(id string, msgs []model.Message) *Thread {
	confirmed := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Optimistic {
			confirmed = append(confirmed, m)
		}
	}
	return &Thread{ID: id, Messages: confirmed, Bubbles: bubble.BuildThread(confirmed)}
}

// Span returns the creation times of the first and last message.
func (t *Thread) Span() (first, last time.Time) {
	if len(t.Messages) == 0 {
		return time.Time{}, time.Time{}
	}
	return t.Messages[0].CreatedAt, t.Messages[len(t.Messages)-1].CreatedAt
}

// Title is the first prompt text, or the thread id when there is none.
func (t *Thread) Title() string {
	for _, b := range t.Bubbles {
		if b.Type == model.TypeInput {
			if text := util.SingleLine(b.Text()); text != "" {
				return util.TruncateRunes(text, 80)
			}
		}
	}
	return t.ID
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a thread in one format.
type Exporter interface {
	// Export converts a thread to the target format and returns the content.
	Export(t *Thread) ([]byte, error)

	// FileExtension returns the file extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// IncludeMetadata adds frontmatter and a summary section.
	IncludeMetadata bool

	// IncludeTimestamps adds a timestamp to every bubble heading.
	IncludeTimestamps bool

	// Now stamps the export; nil means time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

func (o *Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// ForFormat returns the exporter for "md"/"markdown" or "json".
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(format) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q (use md or json)", ErrUnknownFormat, format)
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports t into opts.OutputDir and returns the written path. The
// file is named after the thread id and the export time and is replaced
// atomically.
func ToFile(t *Thread, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if t == nil {
		return "", errors.New("thread is nil")
	}

	content, err := exporter.Export(t)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("thread_%s_%s%s",
		sanitizeFilename(t.ID),
		opts.now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	outputPath := filepath.Join(opts.OutputDir, filename)
	if err := util.AtomicWriteFileWithDir(outputPath, content, 0644, 0755); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in filenames on
// Windows or Unix and bounds the length.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			out = append(out, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = append(out, '_')
		case r < 32 || r == 127:
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}

	if len(out) == 0 {
		return "thread"
	}
	return string(out)
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}
