// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package bubble

import (
	"sort"

	"github.com/jeranaias/threadline/internal/model"
)

// SortValues returns a copy of values ordered by CreatedAt.
// Values with equal timestamps keep their relative order.
func SortValues(values []model.MessageValue) []model.MessageValue {
	sorted := append([]model.MessageValue(nil), values...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	return sorted
}

// Build renders one message: sorted values are segmented, then error
// bubbles are appended.
func Build(msg model.Message) []model.Bubble {
	return InjectErrors(Segment(SortValues(msg.Values)), msg)
}

// BuildThread renders every message of a thread in order.
func BuildThread(msgs []model.Message) []model.Bubble {
	out := []model.Bubble{}
	for _, msg := range msgs {
		out = append(out, Build(msg)...)
	}
	return out
}
