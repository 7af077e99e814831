// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the per-thread message cache and its optional
// snapshot persistence.
//
// Store keeps one ordered message list per thread. Every change goes
// through Upsert with a Mutator that is applied to the latest list under
// the store lock, so two writers can never overwrite each other with a
// stale copy. Mutators for the reconciliation steps (optimistic insert,
// confirmed upsert, rollback, authoritative replace) live in mutators.go.
//
// # Key Types
//
//   - Store: Thread-keyed cache with Get / Upsert / Invalidate
//   - Mutator: Read-modify-write step applied against the current list
//   - Persister: Snapshot backend (FilePersister, SQLitePersister, RedisPersister)
//
// # Usage
//
//	store := storage.NewStore(storage.WithPersister(fp))
//	store.Upsert(threadID, storage.Append(optimistic))
//	store.Upsert(threadID, storage.UpsertConfirmed(confirmed))
//	msgs := store.Get(threadID)
//
// # Persistence
//
// Only confirmed messages are persisted; optimistic placeholders exist in
// memory only. File snapshots are stored in ~/.threadline/threads/ as JSON.
package storage
