// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// THREAD HELPERS
// =============================================================================

// IndexOf returns the position of the message with the given id, or -1.
func IndexOf(msgs []Message, id string) int {
	if id == "" {
		return -1
	}
	for i := range msgs {
		if msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// CloneMessages returns a deep copy of a message list.
// A nil input yields nil.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[i] = msgs[i].Clone()
	}
	return out
}

// Reversed returns a copy of msgs in reverse order.
// The read endpoint returns newest-first; the cache holds oldest-first.
func Reversed(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i := range msgs {
		out[len(msgs)-1-i] = msgs[i]
	}
	return out
}

// Optimistic returns the optimistic entries of msgs, in order.
func Optimistic(msgs []Message) []Message {
	var out []Message
	for _, m := range msgs {
		if m.Optimistic {
			out = append(out, m)
		}
	}
	return out
}

// HasSignature reports whether any confirmed message in msgs carries sig.
func HasSignature(msgs []Message, sig string) bool {
	for _, m := range msgs {
		if m.Optimistic {
			continue
		}
		if s, ok := m.PromptSignature(); ok && s == sig {
			return true
		}
	}
	return false
}
