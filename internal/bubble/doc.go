// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bubble folds the values of a message into render units.
//
// Segment scans values left to right with one open accumulator and closes
// ("flushes") it into a Bubble whenever the value type changes or a new
// piece of text starts. Form requests (_user Output values) become
// standalone bubbles paired with their answer by exact channel equality.
// InjectErrors then appends one bubble per message-level error code.
//
// # Usage
//
//	bubbles := bubble.Build(msg)
//	for _, b := range bubble.BuildThread(store.Get(threadID)) {
//	    fmt.Println(b.Type, b.Text())
//	}
package bubble
