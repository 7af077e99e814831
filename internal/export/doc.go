// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes message threads to files.
//
// A Thread is rendered through the same bubble pipeline as the terminal
// output, so an export shows exactly what the user saw, including
// synthesized error bubbles and form exchanges.
//
// # Formats
//
//   - Markdown (.md): YAML frontmatter plus one section per bubble
//   - JSON (.json): the raw messages and their bubbles
//
// # Usage
//
//	thread := export.NewThread("t-1", msgs)
//	path, err := export.ToFile(thread, export.NewMarkdownExporter(nil), nil)
package export
