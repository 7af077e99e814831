// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jeranaias/threadline/internal/logging"
	"github.com/jeranaias/threadline/internal/model"
)

// DefaultPersistTimeout bounds a single snapshot read or write.
const DefaultPersistTimeout = 5 * time.Second

// =============================================================================
// STORE
// =============================================================================

type threadEntry struct {
	msgs    []model.Message
	version uint64
}

// Store is the per-thread message cache. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	threads map[string]*threadEntry
	seq     uint64

	persister      Persister
	persistTimeout time.Duration
	persistMu      sync.Mutex
	persisted      map[string]uint64

	onChange func(threadID string, msgs []model.Message)
	logger   *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersister enables snapshot persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithPersistTimeout overrides DefaultPersistTimeout.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithOnChange registers a callback invoked after every change with a copy
// of the thread's new list. It runs outside the store lock.
func WithOnChange(fn func(threadID string, msgs []model.Message)) Option {
	return func(s *Store) { s.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		threads:        make(map[string]*threadEntry),
		persisted:      make(map[string]uint64),
		persistTimeout: DefaultPersistTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With("component", "store")
	return s
}

// Get returns a copy of the thread's cached list, or nil if it is not cached.
func (s *Store) Get(threadID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	return model.CloneMessages(entry.msgs)
}

// Has reports whether the thread is cached.
func (s *Store) Has(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.threads[threadID]
	return ok
}

// Threads returns the ids of all cached threads, sorted.
func (s *Store) Threads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load returns the cached list, warming the cache from the persister on a
// miss. It returns ErrThreadNotFound when neither holds the thread.
func (s *Store) Load(ctx context.Context, threadID string) ([]model.Message, error) {
	if msgs := s.Get(threadID); msgs != nil {
		return msgs, nil
	}
	if s.persister == nil {
		return nil, ErrThreadNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	snap, err := s.persister.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}

	// Someone may have populated the thread while we were loading; keep theirs.
	return s.Upsert(threadID, func(cur []model.Message) ([]model.Message, error) {
		if len(cur) > 0 {
			return cur, nil
		}
		return snap.Messages, nil
	})
}

// Upsert applies m to the thread's latest list and stores the result.
// A thread that is not cached starts from an empty list. If m returns an
// error the cache is left unchanged. The new list is returned as a copy.
func (s *Store) Upsert(threadID string, m Mutator) ([]model.Message, error) {
	s.mu.Lock()
	entry, ok := s.threads[threadID]
	var cur []model.Message
	if ok {
		cur = model.CloneMessages(entry.msgs)
	}
	next, err := m(cur)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if next == nil {
		next = []model.Message{}
	}
	s.seq++
	version := s.seq
	s.threads[threadID] = &threadEntry{msgs: next, version: version}
	snapshot := model.CloneMessages(next)
	s.mu.Unlock()

	s.persist(threadID, version, snapshot)
	if s.onChange != nil {
		s.onChange(threadID, model.CloneMessages(snapshot))
	}
	return snapshot, nil
}

// Invalidate drops the thread from the cache and from the persister.
// The next Load or refresh starts from scratch.
func (s *Store) Invalidate(threadID string) {
	s.mu.Lock()
	_, ok := s.threads[threadID]
	delete(s.threads, threadID)
	s.seq++
	version := s.seq
	s.mu.Unlock()

	if s.persister != nil {
		s.persistMu.Lock()
		s.persisted[threadID] = version
		ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
		if err := s.persister.Delete(ctx, threadID); err != nil && !errors.Is(err, ErrThreadNotFound) {
			s.logger.Warn("snapshot delete failed", "thread_id", threadID, "error", err)
		}
		cancel()
		s.persistMu.Unlock()
	}

	if ok && s.onChange != nil {
		s.onChange(threadID, nil)
	}
}

// Close releases the persister if it holds resources.
func (s *Store) Close() error {
	if c, ok := s.persister.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// persist writes the confirmed part of a snapshot. Writes for one thread
// never go backwards: an older version arriving late is dropped.
func (s *Store) persist(threadID string, version uint64, msgs []model.Message) {
	if s.persister == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if s.persisted[threadID] >= version {
		return
	}
	s.persisted[threadID] = version

	snap := Snapshot{
		ThreadID:  threadID,
		UpdatedAt: time.Now().UTC(),
		Messages:  confirmedOnly(msgs),
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.persistTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, snap); err != nil {
		s.logger.Warn("snapshot save failed", "thread_id", threadID, "error", err)
	}
}

func confirmedOnly(msgs []model.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.Optimistic {
			out = append(out, m)
		}
	}
	return out
}
