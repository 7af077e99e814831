// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile merges streamed server frames into the local message
// cache.
//
// A send first inserts an optimistic placeholder so the caller can render
// the user's message immediately. Every frame decoded from the response is
// upserted by id, and the placeholder is dropped as soon as a confirmed
// message with the same prompt exists. Transport failures, schema failures
// and streams that end without a single valid frame roll the optimistic
// state back before the error is reported.
//
// # Key Types
//
//   - Reconciler: Runs SendMessage, AddInputToMessage and Refresh
//   - Transport: The three message API calls the reconciler depends on
//   - OpError: Failure of one operation, classified by Kind
//
// # Usage
//
//	r := reconcile.New(client, store, reconcile.Config{User: "alice"})
//	stream := r.SendMessage(ctx, threadID, "hello", nil)
//	for {
//		msg, err := stream.Next(ctx)
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
package reconcile
