// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for message threads.
//
// This package defines the wire and cache types shared by the decoder, the
// per-thread store, the reconciler and the bubble segmenter.
//
// # Key Types
//
//   - Message: One conversation turn holding an append-only list of values
//   - MessageValue: One named field of a turn (prompt, response, files, ...)
//   - ValueKind: Tagged union over MessageValue.Name used by the segmenter
//   - ErrorRecord: Message-level domain error, rendered rather than returned
//   - Bubble: Render-only grouping of consecutive values sharing a type
//
// # Usage
//
// Build an optimistic message for a user prompt:
//
//	msg := model.NewOptimisticMessage("alice", "Hello!", nil)
//	sig, ok := msg.PromptSignature()
//
// Classify a value by its name:
//
//	switch v.Kind() {
//	case model.KindPrompt, model.KindResponse, model.KindContent:
//	    // ...
//	}
package model
