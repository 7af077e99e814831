// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeranaias/threadline/internal/bubble"
	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/util"
)

const (
	bubbleTimeLayout = "2006-01-02 15:04:05"

	// maxSnippetRunes bounds source snippets and form messages on one line.
	maxSnippetRunes = 120
)

// threadResult is printed by send, reply and history.
type threadResult struct {
	ThreadID string          `json:"threadId"`
	Messages []model.Message `json:"messages"`
	Bubbles  []model.Bubble  `json:"bubbles"`
}

func newThreadResult(threadID string, msgs ...model.Message) threadResult {
	if msgs == nil {
		msgs = []model.Message{}
	}
	return threadResult{
		ThreadID: threadID,
		Messages: msgs,
		Bubbles:  bubble.BuildThread(msgs),
	}
}

func (r threadResult) writeText(w io.Writer) error {
	if len(r.Bubbles) == 0 {
		_, err := fmt.Fprintf(w, "thread %s is empty\n", r.ThreadID)
		return err
	}
	return writeBubbles(w, r.Bubbles)
}

// writeBubbles prints bubbles as plain text: a header line per bubble and
// its content indented below.
func writeBubbles(w io.Writer, bubbles []model.Bubble) error {
	var sb strings.Builder
	for i, b := range bubbles {
		if i > 0 {
			sb.WriteString("\n")
		}
		writeBubble(&sb, b)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeBubble(sb *strings.Builder, b model.Bubble) {
	fmt.Fprintf(sb, "[%s] %s", b.Type, b.CreatedBy)
	if !b.CreatedAt.IsZero() {
		fmt.Fprintf(sb, " %s", b.CreatedAt.In(time.Local).Format(bubbleTimeLayout))
	}
	sb.WriteString("\n")

	if b.IsForm() {
		fmt.Fprintf(sb, "  form: %s\n", util.TruncateRunes(util.SingleLine(b.UserOutputForm.Message), maxSnippetRunes))
		if len(b.UserInputAnswer) > 0 {
			fmt.Fprintf(sb, "  answer: %s\n", model.CanonicalJSON(b.UserInputAnswer))
		}
	}

	for _, item := range b.Content {
		switch {
		case item.Failed:
			sb.WriteString("  (not generated)\n")
		case item.Text != "":
			for _, line := range strings.Split(item.Text, "\n") {
				sb.WriteString("  ")
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		case len(item.Image) > 0:
			sb.WriteString("  [image]\n")
		}
	}

	for _, f := range b.Files {
		name := f.Name
		if name == "" {
			name = f.ID
		}
		fmt.Fprintf(sb, "  file: %s (%s)\n", name, f.ID)
	}

	for _, s := range b.Sources {
		label := s.Title
		if label == "" {
			label = s.URL
		}
		fmt.Fprintf(sb, "  source: %s", label)
		if s.URL != "" && s.URL != label {
			fmt.Fprintf(sb, " <%s>", s.URL)
		}
		if s.Snippet != "" {
			fmt.Fprintf(sb, " %q", util.TruncateRunes(util.SingleLine(s.Snippet), maxSnippetRunes))
		}
		sb.WriteString("\n")
	}
}
