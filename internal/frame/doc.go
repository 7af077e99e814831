// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package frame extracts the newest complete message frame from a
// cumulative event-stream buffer.
//
// The transport hands the decoder the entire response text received so far
// on every progress tick. Frames are separated by a blank line and may be
// prefixed with "data:". The decoder looks only at the last non-empty frame:
//
//   - incomplete JSON is not an error; Decode returns (nil, nil) and the
//     caller tries again with a longer buffer
//   - complete JSON that does not match the message schema is a hard error
//     (schema.Errors)
//
// Decode is pure: the same buffer always yields the same result.
package frame
