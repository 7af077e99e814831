// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the threadline command line.
//
// The commands are thin shells over the reconcile package: each one loads
// the configuration, wires a transport, a snapshot store and a reconciler,
// performs one operation and prints the resulting thread as plain-text
// bubbles.
//
// # Commands
//
//   - send: post a new message to a thread and print the confirmed reply
//   - reply: add an input value to an existing message
//   - history: print a thread, refetched or from the local cache
//   - refresh: refetch several threads concurrently
//   - export: write a thread to a Markdown or JSON file
//   - config: show, get, init, path and watch the configuration
//
// Every command accepts --json, which replaces the text output with a
// single JSON envelope on stdout.
//
// # Exit codes
//
// Failures map to the Exit* constants so scripts can tell a bad flag
// from a network outage or a malformed server stream.
package cli
