// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package feed provides Stream, a push-based sequence of values that ends
// either completed or errored.
//
// Producers call Emit zero or more times, then exactly one of Complete or
// Fail. Emit never blocks the producer; values are queued until consumed.
// Consumers call Next until it returns io.EOF (completed) or another error.
//
//	s := feed.New[model.Message]()
//	go func() {
//	    s.Emit(msg)
//	    s.Complete()
//	}()
//	for {
//	    msg, err := s.Next(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    ...
//	}
package feed
