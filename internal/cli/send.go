// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadline/internal/model"
)

func newSendCmd(opts *globalOptions) *cobra.Command {
	var (
		threadID string
		files    []string
	)

	cmd := &cobra.Command{
		Use:   "send --thread ID [--file ID[:NAME]]... TEXT...",
		Short: "Post a message and print the confirmed reply",
		Long: `Post a new message to a thread. The message shows up in the local cache
at once and is replaced by the server's version as the reply streams in.
If the stream fails the local placeholder is rolled back.`,
		Example: `  threadline send --thread t-1 "summarise the attached report"
  threadline send --thread t-1 --file f-9:report.pdf "what does page 3 say?"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(cmd, opts, func(ctx context.Context, a *app) (result, error) {
				if threadID == "" {
					return nil, usageErrorf("thread", "--thread is required")
				}
				content := strings.TrimSpace(strings.Join(args, " "))
				if content == "" {
					return nil, usageErrorf("text", "message text is required")
				}
				refs, err := parseFileRefs(files)
				if err != nil {
					return nil, err
				}
				if err := a.requireAPI(); err != nil {
					return nil, err
				}
				return send(ctx, a, threadID, content, refs, progressWriter(cmd, opts))
			})
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "thread id")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "attach an uploaded file as ID or ID:NAME (repeatable)")
	return cmd
}

// send posts the message and waits for the stream to finish. Each
// confirmed snapshot ticks progress.
func send(ctx context.Context, a *app, threadID, content string, files []model.FileRef, progress io.Writer) (result, error) {
	stream := a.rec.SendMessage(ctx, threadID, content, files)

	var (
		last  model.Message
		count int
	)
	for {
		msg, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if count > 0 {
				fmt.Fprintln(progress)
			}
			return nil, err
		}
		last = msg
		count++
		fmt.Fprint(progress, ".")
	}
	if count > 0 {
		fmt.Fprintln(progress)
	}
	a.log.Debug("send finished", "thread_id", threadID, "snapshots", count)
	return newThreadResult(threadID, last), nil
}

// parseFileRefs parses ID or ID:NAME pairs.
func parseFileRefs(specs []string) ([]model.FileRef, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	refs := make([]model.FileRef, 0, len(specs))
	for _, spec := range specs {
		id, name, _ := strings.Cut(spec, ":")
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, usageErrorf("file", "%q has no file id", spec)
		}
		refs = append(refs, model.FileRef{ID: id, Name: strings.TrimSpace(name)})
	}
	return refs, nil
}

// progressWriter is stderr in text mode and discards in JSON mode.
func progressWriter(cmd *cobra.Command, opts *globalOptions) io.Writer {
	if opts.jsonOut {
		return io.Discard
	}
	return cmd.ErrOrStderr()
}
