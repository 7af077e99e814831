// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package channels merges and compares channel-index maps.
//
// A channel map records, per named channel, the version slot a value was
// produced in. Merging keeps the highest slot per channel; pairing a form
// request with its answer requires the two maps to be exactly equal.
package channels

import "github.com/jeranaias/threadline/internal/model"

// Merge returns the union of a and b, taking the larger index for keys
// present in both. Neither input is modified; the result is never nil.
func Merge(a, b map[string]int) map[string]int {
	out := make(map[string]int, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if cur, ok := out[k]; !ok || v > cur {
			out[k] = v
		}
	}
	return out
}

// Fold merges the channel maps of every value in order.
func Fold(values []model.MessageValue) map[string]int {
	out := map[string]int{}
	for _, v := range values {
		out = Merge(out, v.Channels)
	}
	return out
}

// Equal reports whether a and b hold exactly the same keys and indices.
// A nil map equals an empty one.
func Equal(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// FindPair returns the Input-type _user value whose channels exactly equal
// those of the given Output-type _user value. ok is false when none matches.
// When several match, the latest one in values wins.
func FindPair(values []model.MessageValue, output model.MessageValue) (match model.MessageValue, ok bool) {
	for _, v := range values {
		if v.Type != model.TypeInput || v.Kind() != model.KindUser {
			continue
		}
		if Equal(v.Channels, output.Channels) {
			match, ok = v, true
		}
	}
	return match, ok
}
