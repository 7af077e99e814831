// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/storage"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var (
		threadID string
		cached   bool
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history --thread ID",
		Short: "Print a thread",
		Long: `Refetch a thread from the API and print it oldest first. With --cached
the local snapshot is printed instead and the API is not contacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, opts, func(ctx context.Context, a *app) (result, error) {
				if threadID == "" {
					return nil, usageErrorf("thread", "--thread is required")
				}
				if limit < 0 {
					return nil, usageErrorf("limit", "must not be negative")
				}

				var (
					msgs []model.Message
					err  error
				)
				if cached {
					if err := storage.ValidateThreadID(threadID); err != nil {
						return nil, err
					}
					msgs, err = a.store.Load(ctx, threadID)
					if errors.Is(err, storage.ErrThreadNotFound) {
						err = fmt.Errorf("thread %s is not cached: %w", threadID, err)
					}
				} else {
					if err := a.requireAPI(); err != nil {
						return nil, err
					}
					msgs, err = a.rec.Refresh(ctx, threadID)
				}
				if err != nil {
					return nil, err
				}
				if limit > 0 && len(msgs) > limit {
					msgs = msgs[len(msgs)-limit:]
				}
				return newThreadResult(threadID, msgs...), nil
			})
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "thread id")
	cmd.Flags().BoolVar(&cached, "cached", false, "print the local snapshot without contacting the API")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "print only the last N messages (0 = all)")
	return cmd
}

// refreshResult lists message counts per refreshed thread.
type refreshResult struct {
	Threads map[string]int `json:"threads"`
}

func (r refreshResult) writeText(w io.Writer) error {
	ids := make([]string, 0, len(r.Threads))
	for id := range r.Threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := fmt.Fprintf(w, "%s\t%d messages\n", id, r.Threads[id]); err != nil {
			return err
		}
	}
	return nil
}

func newRefreshCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh THREAD_ID...",
		Short: "Refetch several threads concurrently",
		Long: `Refetch every named thread and update the local cache. Threads are
fetched in parallel, bounded by reconcile.refresh_concurrency. The first
failure cancels the remaining fetches.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, opts, func(ctx context.Context, a *app) (result, error) {
				if len(args) == 0 {
					return nil, usageErrorf("threads", "at least one thread id is required")
				}
				if err := a.requireAPI(); err != nil {
					return nil, err
				}
				if err := a.rec.RefreshThreads(ctx, args...); err != nil {
					return nil, err
				}
				res := refreshResult{Threads: make(map[string]int, len(args))}
				for _, id := range args {
					res.Threads[id] = len(a.rec.Messages(id))
				}
				return res, nil
			})
		},
	}
}
