// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/storage"
	"github.com/jeranaias/threadline/internal/telemetry"
)

// Refresh refetches a thread's history and replaces the cached list with
// it, oldest first. Optimistic entries whose prompt the history does not
// contain yet are kept at the end.
func (r *Reconciler) Refresh(ctx context.Context, threadID string) ([]model.Message, error) {
	if err := storage.ValidateThreadID(threadID); err != nil {
		return nil, newOpError(OpRefresh, threadID, KindRequest, err)
	}

	start := time.Now()
	history, err := r.transport.ListMessages(ctx, threadID)
	if err != nil {
		kind := classify(err)
		r.metrics.ObserveStream(OpRefresh, string(kind), time.Since(start))
		return nil, newOpError(OpRefresh, threadID, kind, err)
	}

	msgs, err := r.store.Upsert(threadID, storage.ReplaceAll(model.Reversed(history)))
	if err != nil {
		return nil, newOpError(OpRefresh, threadID, KindRequest, err)
	}
	r.metrics.ObserveStream(OpRefresh, telemetry.OutcomeOK, time.Since(start))
	r.log.Debug("thread refreshed", "thread_id", threadID, "messages", len(msgs))
	return msgs, nil
}

// RefreshThreads refreshes several threads concurrently, at most
// Config.RefreshConcurrency at a time. The first failure cancels the rest
// and is returned.
func (r *Reconciler) RefreshThreads(ctx context.Context, threadIDs ...string) error {
	p := pool.New().
		WithMaxGoroutines(r.cfg.RefreshConcurrency).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for _, id := range threadIDs {
		id := id
		p.Go(func(ctx context.Context) error {
			_, err := r.Refresh(ctx, id)
			return err
		})
	}
	return p.Wait()
}
