// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/threadline/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports threads to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// frontmatter is the YAML header of a Markdown export.
type frontmatter struct {
	Title     string `yaml:"title"`
	Thread    string `yaml:"thread"`
	Started   string `yaml:"started,omitempty"`
	Updated   string `yaml:"updated,omitempty"`
	Messages  int    `yaml:"messages"`
	Bubbles   int    `yaml:"bubbles"`
	Exported  string `yaml:"exported"`
	Generator string `yaml:"generator"`
}

// Export converts a thread to Markdown.
func (e *MarkdownExporter) Export(t *Thread) ([]byte, error) {
	if t == nil {
		return nil, errors.New("thread is nil")
	}
	if len(t.Messages) == 0 {
		return nil, errors.New("thread has no messages")
	}

	var sb strings.Builder
	first, last := t.Span()

	if e.options.IncludeMetadata {
		fm := frontmatter{
			Title:     t.Title(),
			Thread:    t.ID,
			Messages:  len(t.Messages),
			Bubbles:   len(t.Bubbles),
			Exported:  e.options.now().Format(time.RFC3339),
			Generator: "threadline",
		}
		if !first.IsZero() {
			fm.Started = first.Format(time.RFC3339)
			fm.Updated = last.Format(time.RFC3339)
		}
		header, err := yaml.Marshal(fm)
		if err != nil {
			return nil, fmt.Errorf("encode frontmatter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(t.Title()))

	for i, b := range t.Bubbles {
		if e.options.IncludeTimestamps && !b.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", bubbleLabel(b), formatTimestamp(b.CreatedAt))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", bubbleLabel(b))
		}
		e.writeBubbleBody(&sb, b)
		if i < len(t.Bubbles)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func bubbleLabel(b model.Bubble) string {
	role := "System"
	if b.Type == model.TypeInput {
		role = "User"
	}
	if b.CreatedBy == "" {
		return fmt.Sprintf("[%s]", role)
	}
	return fmt.Sprintf("[%s] %s", role, escapeMarkdown(b.CreatedBy))
}

func (e *MarkdownExporter) writeBubbleBody(sb *strings.Builder, b model.Bubble) {
	if b.IsForm() {
		fmt.Fprintf(sb, "> %s\n\n", strings.ReplaceAll(strings.TrimSpace(b.UserOutputForm.Message), "\n", "\n> "))
		if len(b.UserInputAnswer) > 0 {
			fmt.Fprintf(sb, "**Answer**: `%s`\n\n", model.CanonicalJSON(b.UserInputAnswer))
		}
	}

	for _, item := range b.Content {
		switch {
		case item.Failed:
			sb.WriteString("_Not generated._\n\n")
		case item.Text != "":
			sb.WriteString(strings.TrimSpace(item.Text))
			sb.WriteString("\n\n")
		case len(item.Image) > 0:
			sb.WriteString("_[image]_\n\n")
		}
	}

	if len(b.Files) > 0 {
		sb.WriteString("**Files**:\n")
		for _, f := range b.Files {
			name := f.Name
			if name == "" {
				name = f.ID
			}
			if f.URL != "" {
				fmt.Fprintf(sb, "- [%s](%s)\n", escapeMarkdown(name), f.URL)
			} else {
				fmt.Fprintf(sb, "- %s\n", escapeMarkdown(name))
			}
		}
		sb.WriteString("\n")
	}

	if len(b.Sources) > 0 {
		sb.WriteString("**Sources**:\n")
		for i, s := range b.Sources {
			label := s.Title
			if label == "" {
				label = s.URL
			}
			if s.URL != "" {
				fmt.Fprintf(sb, "%d. [%s](%s)\n", i+1, escapeMarkdown(label), s.URL)
			} else {
				fmt.Fprintf(sb, "%d. %s\n", i+1, escapeMarkdown(label))
			}
		}
		sb.WriteString("\n")
	}
}

// escapeMarkdown escapes characters that would break headings and links.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	)
	return r.Replace(s)
}
