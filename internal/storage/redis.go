// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces snapshot keys.
const DefaultRedisPrefix = "threadline:thread:"

// =============================================================================
// REDIS PERSISTER
// =============================================================================

// RedisPersister shares thread snapshots between processes through Redis.
type RedisPersister struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisPersister connects to addr and verifies the connection.
// A zero ttl keeps snapshots forever.
func NewRedisPersister(ctx context.Context, addr, prefix string, ttl time.Duration) (*RedisPersister, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisPersisterWithClient(client, prefix, ttl), nil
}

// NewRedisPersisterWithClient wraps an existing client.
func NewRedisPersisterWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPersister {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisPersister{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the Redis key for a thread.
func (p *RedisPersister) Key(threadID string) string {
	return p.prefix + threadID
}

// Save writes the snapshot with the configured TTL.
func (p *RedisPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.Key(snap.ThreadID), data, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Load reads a snapshot. Missing keys return ErrThreadNotFound.
func (p *RedisPersister) Load(ctx context.Context, threadID string) (*Snapshot, error) {
	data, err := p.client.Get(ctx, p.Key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeSnapshot(data)
}

// Delete removes a snapshot. Missing keys return ErrThreadNotFound.
func (p *RedisPersister) Delete(ctx context.Context, threadID string) error {
	n, err := p.client.Del(ctx, p.Key(threadID)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// Close closes the underlying client.
func (p *RedisPersister) Close() error {
	return p.client.Close()
}
