// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/threadline/internal/model"
)

var (
	at0 = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	at1 = at0.Add(time.Second)
)

func fixedOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC) }
	return opts
}

func val(id, name string, typ model.ValueType, at time.Time, raw string) model.MessageValue {
	return model.MessageValue{
		ID: id, Name: name, Type: typ, Value: json.RawMessage(raw),
		Channels: map[string]int{}, CreatedAt: at, CreatedBy: "alice",
	}
}

func sampleThread() *Thread {
	msgs := []model.Message{
		{
			ID: "m1", CreatedAt: at0, CreatedBy: "alice",
			Values: []model.MessageValue{
				val("v1", "prompt", model.TypeInput, at0, `[{"text":"What is *markdown*?"}]`),
				val("v2", "response", model.TypeOutput, at1, `"A light markup language."`),
				val("v3", "sources", model.TypeOutput, at1, `[{"title":"Spec","url":"https://commonmark.org"}]`),
			},
		},
		{
			ID: "temp-1", CreatedAt: at1, CreatedBy: "alice", Optimistic: true,
			Values: []model.MessageValue{val("temp-2", "prompt", model.TypeInput, at1, `[{"text":"pending"}]`)},
		},
	}
	return NewThread("t/1", msgs)
}

func TestNewThread_SkipsOptimistic(t *testing.T) {
	th := sampleThread()
	require.Len(t, th.Messages, 1)
	assert.Equal(t, "m1", th.Messages[0].ID)
	assert.NotEmpty(t, th.Bubbles)

	first, last := th.Span()
	assert.Equal(t, at0, first)
	assert.Equal(t, at0, last)
	assert.Equal(t, "What is *markdown*?", th.Title())
}

func TestThread_TitleFallsBackToID(t *testing.T) {
	th := NewThread("t-9", nil)
	assert.Equal(t, "t-9", th.Title())
	first, _ := th.Span()
	assert.True(t, first.IsZero())
}

func TestMarkdownExporter(t *testing.T) {
	out, err := NewMarkdownExporter(fixedOptions()).Export(sampleThread())
	require.NoError(t, err)
	md := string(out)

	require.True(t, strings.HasPrefix(md, "---\n"))
	parts := strings.SplitN(md, "---\n", 3)
	require.Len(t, parts, 3)

	var fm frontmatter
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, "What is *markdown*?", fm.Title)
	assert.Equal(t, "t/1", fm.Thread)
	assert.Equal(t, 1, fm.Messages)
	assert.Equal(t, "2025-02-03T04:05:06Z", fm.Exported)
	assert.Equal(t, "threadline", fm.Generator)

	assert.Contains(t, md, "# What is \\*markdown\\*?\n")
	assert.Contains(t, md, "### [User] alice <sub>2025-01-02 03:04:05</sub>\n")
	assert.Contains(t, md, "A light markup language.\n")
	assert.Contains(t, md, "1. [Spec](https://commonmark.org)\n")
	assert.NotContains(t, md, "pending")
}

func TestMarkdownExporter_WithoutMetadata(t *testing.T) {
	opts := fixedOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(sampleThread())
	require.NoError(t, err)
	md := string(out)
	assert.True(t, strings.HasPrefix(md, "# "))
	assert.Contains(t, md, "### [User] alice\n")
	assert.NotContains(t, md, "<sub>")
}

func TestMarkdownExporter_Empty(t *testing.T) {
	_, err := NewMarkdownExporter(nil).Export(NewThread("t1", nil))
	assert.Error(t, err)

	_, err = NewMarkdownExporter(nil).Export(nil)
	assert.Error(t, err)
}

func TestJSONExporter(t *testing.T) {
	out, err := NewJSONExporter(fixedOptions()).Export(sampleThread())
	require.NoError(t, err)

	var doc struct {
		ThreadID   string          `json:"threadId"`
		Messages   []model.Message `json:"messages"`
		Bubbles    []model.Bubble  `json:"bubbles"`
		ExportedAt string          `json:"exportedAt"`
	}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "t/1", doc.ThreadID)
	assert.Len(t, doc.Messages, 1)
	assert.NotEmpty(t, doc.Bubbles)
	assert.Equal(t, "2025-02-03T04:05:06Z", doc.ExportedAt)
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"md", ".md"},
		{"Markdown", ".md"},
		{"json", ".json"},
	}
	for _, tt := range tests {
		e, err := ForFormat(tt.format, nil)
		require.NoError(t, err, tt.format)
		assert.Equal(t, tt.ext, e.FileExtension())
	}

	_, err := ForFormat("pdf", nil)
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestToFile(t *testing.T) {
	opts := fixedOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "exports")

	path, err := ToFile(sampleThread(), NewJSONExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "thread_t-1_20250203_040506.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	_, err = ToFile(NewThread("t1", nil), NewMarkdownExporter(opts), opts)
	assert.Error(t, err)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple", "simple"},
		{"a/b\\c:d", "a-b-c-d"},
		{"with space\ttab", "with_space_tab"},
		{"ctl\x01", "ctl-"},
		{"", "thread"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), "input %q", tt.in)
	}
}
