// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package schema validates untrusted JSON payloads received from the
// message API before they reach the cache.
//
// Validation happens in two steps: the payload is decoded into record
// structs that keep every required field as a pointer, then struct rules
// are checked with go-playground/validator. Any failure is reported as
// Errors, a list of ValidationError values carrying the JSON path of the
// offending field.
//
// Callers must check JSON syntax first (see IsSyntaxValid): a syntax
// failure means the payload is incomplete, which is not a schema error.
//
// # Usage
//
//	v := schema.New()
//	msg, err := v.Message(payload)
//	var verrs schema.Errors
//	if errors.As(err, &verrs) {
//	    // malformed payload
//	}
package schema
