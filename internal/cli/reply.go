// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

func newReplyCmd(opts *globalOptions) *cobra.Command {
	var chans map[string]int

	cmd := &cobra.Command{
		Use:   "reply --thread ID --message ID --name NAME --value JSON",
		Short: "Add an input value to an existing message",
		Long: `Add an Input value to a message already in the thread, typically the
answer to a form the server asked for. Without --channel the value is sent
on every channel the message's values already use.`,
		Example: `  threadline reply --thread t-1 --message m-4 --name _user --value '{"approved":true}'
  threadline reply -t t-1 -m m-4 --name prompt --value '"and in French?"' --channel main=1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runApp(cmd, opts, func(ctx context.Context, a *app) (result, error) {
				flags := cmd.Flags()
				threadID, err := requireFlag(flags, "thread")
				if err != nil {
					return nil, err
				}
				messageID, err := requireFlag(flags, "message")
				if err != nil {
					return nil, err
				}
				name, err := requireFlag(flags, "name")
				if err != nil {
					return nil, err
				}
				raw, err := flags.GetString("value")
				if err != nil {
					return nil, err
				}
				if !json.Valid([]byte(raw)) {
					return nil, usageErrorf("value", "%q is not valid JSON", raw)
				}
				var outgoing map[string]int
				if flags.Changed("channel") {
					outgoing = chans
				}
				if err := a.requireAPI(); err != nil {
					return nil, err
				}

				msg, err := a.rec.AddInputToMessage(ctx, threadID, messageID, name, json.RawMessage(raw), outgoing)
				if err != nil {
					return nil, err
				}
				return newThreadResult(threadID, msg), nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringP("thread", "t", "", "thread id")
	flags.StringP("message", "m", "", "id of the message to add the value to")
	flags.String("name", "", "value name")
	flags.String("value", "null", "value as JSON")
	flags.StringToIntVar(&chans, "channel", nil, "outgoing channel index as KEY=INDEX (repeatable)")
	return cmd
}
