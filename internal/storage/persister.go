// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jeranaias/threadline/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrThreadNotFound is returned when neither the cache nor the persister
	// holds a thread.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrMessageNotFound is returned when a mutation targets a message that
	// is not in the thread.
	ErrMessageNotFound = errors.New("message not found")

	// ErrInvalidThreadID is returned for ids unsafe to use as storage keys.
	ErrInvalidThreadID = errors.New("invalid thread id")
)

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is the persisted form of a thread.
type Snapshot struct {
	ThreadID  string          `json:"threadId"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Messages  []model.Message `json:"messages"`
}

// Persister stores thread snapshots outside the process.
type Persister interface {
	Load(ctx context.Context, threadID string) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Delete(ctx context.Context, threadID string) error
}

var threadIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidateThreadID rejects ids that could escape a storage namespace.
func ValidateThreadID(id string) error {
	if !threadIDPattern.MatchString(id) || id == "." || id == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidThreadID, id)
	}
	return nil
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	if err := ValidateThreadID(snap.ThreadID); err != nil {
		return nil, err
	}
	if snap.Messages == nil {
		snap.Messages = []model.Message{}
	}
	return json.Marshal(snap)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}
	return &snap, nil
}
