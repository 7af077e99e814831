// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadline/internal/export"
	"github.com/jeranaias/threadline/internal/model"
	"github.com/jeranaias/threadline/internal/storage"
)

// exportResult reports where an export was written.
type exportResult struct {
	ThreadID string `json:"threadId"`
	Path     string `json:"path"`
	Format   string `json:"mimeType"`
	Messages int    `json:"messages"`
}

func (r exportResult) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "exported %d messages to %s\n", r.Messages, r.Path)
	return err
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		threadID string
		format   string
		outDir   string
		cached   bool
		noMeta   bool
	)

	cmd := &cobra.Command{
		Use:   "export --thread ID [--format md|json] [--out DIR]",
		Short: "Write a thread to a Markdown or JSON file",
		Long: `Refetch a thread (or read the local snapshot with --cached) and write it
to a file named after the thread and the current time.`,
		Example: `  threadline export --thread t-1
  threadline export --thread t-1 --format json --out ./exports --cached`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, opts, func(ctx context.Context, a *app) (result, error) {
				if threadID == "" {
					return nil, usageErrorf("thread", "--thread is required")
				}
				exportOpts := export.DefaultOptions()
				exportOpts.OutputDir = outDir
				exportOpts.IncludeMetadata = !noMeta

				exporter, err := export.ForFormat(format, exportOpts)
				if err != nil {
					return nil, usageErrorf("format", "%v", err)
				}

				var msgs []model.Message
				if cached {
					if err := storage.ValidateThreadID(threadID); err != nil {
						return nil, err
					}
					msgs, err = a.store.Load(ctx, threadID)
				} else {
					if err := a.requireAPI(); err != nil {
						return nil, err
					}
					msgs, err = a.rec.Refresh(ctx, threadID)
				}
				if err != nil {
					return nil, err
				}

				thread := export.NewThread(threadID, msgs)
				path, err := export.ToFile(thread, exporter, exportOpts)
				if err != nil {
					return nil, err
				}
				return exportResult{
					ThreadID: threadID,
					Path:     path,
					Format:   exporter.MimeType(),
					Messages: len(thread.Messages),
				}, nil
			})
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "thread id")
	cmd.Flags().StringVar(&format, "format", "md", "output format: md or json")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().BoolVar(&cached, "cached", false, "export the local snapshot without contacting the API")
	cmd.Flags().BoolVar(&noMeta, "no-metadata", false, "omit the Markdown frontmatter")
	return cmd
}
