// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/threadline/internal/util"
)

// =============================================================================
// FILE PERSISTER
// =============================================================================

// ThreadMeta describes a persisted thread for listing.
type ThreadMeta struct {
	ThreadID     string    `json:"threadId"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
	Preview      string    `json:"preview"` // first prompt, truncated
}

// FilePersister keeps one JSON file per thread.
type FilePersister struct {
	// BaseDir is the directory for snapshot files.
	// Default: ~/.threadline/threads/
	BaseDir string

	// MaxThreads limits stored threads (0 = unlimited); the least recently
	// updated are removed first.
	MaxThreads int
}

// NewFilePersister creates a persister under ~/.threadline/threads.
func NewFilePersister() (*FilePersister, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewFilePersisterWithDir(filepath.Join(homeDir, ".threadline", "threads"))
}

// NewFilePersisterWithDir creates a persister rooted at baseDir.
func NewFilePersisterWithDir(baseDir string) (*FilePersister, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	return &FilePersister{BaseDir: baseDir, MaxThreads: 500}, nil
}

// Save writes the snapshot atomically.
func (p *FilePersister) Save(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	// RELIABILITY: Atomic write with fsync prevents torn snapshots on crash
	if err := util.AtomicWriteFile(p.filePath(snap.ThreadID), data, 0600); err != nil {
		return err
	}
	if p.MaxThreads > 0 {
		p.enforceLimit()
	}
	return nil
}

// Load reads a snapshot. Missing files return ErrThreadNotFound.
func (p *FilePersister) Load(ctx context.Context, threadID string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.filePath(threadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrThreadNotFound
		}
		return nil, err
	}
	return decodeSnapshot(data)
}

// Delete removes a snapshot. Missing files return ErrThreadNotFound.
func (p *FilePersister) Delete(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateThreadID(threadID); err != nil {
		return err
	}
	if err := os.Remove(p.filePath(threadID)); err != nil {
		if os.IsNotExist(err) {
			return ErrThreadNotFound
		}
		return err
	}
	return nil
}

// List returns metadata for every stored thread, most recent first.
// Corrupt files are skipped.
func (p *FilePersister) List() ([]ThreadMeta, error) {
	entries, err := os.ReadDir(p.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ThreadMeta{}, nil
		}
		return nil, err
	}

	metas := []ThreadMeta{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.BaseDir, entry.Name()))
		if err != nil {
			continue
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			continue
		}
		metas = append(metas, metaOf(snap))
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
	return metas, nil
}

// Clear removes every stored snapshot.
func (p *FilePersister) Clear() error {
	entries, err := os.ReadDir(p.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			os.Remove(filepath.Join(p.BaseDir, entry.Name()))
		}
	}
	return nil
}

// enforceLimit removes the oldest snapshots if over MaxThreads.
func (p *FilePersister) enforceLimit() {
	metas, err := p.List()
	if err != nil || len(metas) <= p.MaxThreads {
		return
	}
	for _, meta := range metas[p.MaxThreads:] {
		os.Remove(p.filePath(meta.ThreadID))
	}
}

func (p *FilePersister) filePath(threadID string) string {
	return filepath.Join(p.BaseDir, threadID+".json")
}

// metaOf summarizes a snapshot, previewing its first prompt.
func metaOf(snap *Snapshot) ThreadMeta {
	meta := ThreadMeta{
		ThreadID:     snap.ThreadID,
		UpdatedAt:    snap.UpdatedAt,
		MessageCount: len(snap.Messages),
	}
	for _, msg := range snap.Messages {
		sig, ok := msg.PromptSignature()
		if !ok {
			continue
		}
		var items []struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(sig), &items); err == nil && len(items) > 0 {
			meta.Preview = util.TruncateRunes(strings.ReplaceAll(items[0].Text, "\n", " "), 80)
		}
		break
	}
	return meta
}
