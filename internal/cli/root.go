// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jeranaias/threadline/internal/config"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	jsonOut    bool
	verbose    bool
}

// result is what a command produces on success.
type result interface {
	writeText(w io.Writer) error
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "threadline",
		Short: "Send and follow messages on streaming message threads",
		Long: `threadline posts messages to a message-thread API, follows the
streamed reply and keeps a local cache of every thread it has seen.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &UsageError{Field: "flags", Reason: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file path (default is $THREADLINE_HOME/config.toml)")
	pf.BoolVar(&opts.jsonOut, "json", false, "print a JSON envelope instead of text")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newSendCmd(opts),
		newReplyCmd(opts),
		newHistoryCmd(opts),
		newRefreshCmd(opts),
		newExportCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs the command line with args and returns the exit code.
// Errors are printed to stderr, or as a JSON envelope on stdout in --json
// mode.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var reported *reportedError
	if errors.As(err, &reported) {
		return ExitCode(reported.err)
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return ExitCode(err)
}

// reportedError marks an error already written as a JSON envelope.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// =============================================================================
// COMMAND PLUMBING
// =============================================================================

// loadConfig loads --config when given, otherwise the config directory.
// A config file that failed to parse is reported but does not stop the
// command; defaults and environment overrides still apply.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (*config.Config, error) {
	if opts.configPath != "" {
		cfg, err := config.LoadFromPath(opts.configPath)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		return cfg, nil
	}

	cfg, err := config.Load()
	if cfg == nil {
		return nil, &ConfigError{Err: err}
	}
	if err != nil && opts.verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return cfg, nil
}

// emit writes res, or the failure, in the selected output mode.
func emit(cmd *cobra.Command, opts *globalOptions, res result, err error) error {
	out := cmd.OutOrStdout()
	if opts.jsonOut {
		if err != nil {
			if werr := NewJSONErrorResponse(cmd.CommandPath(), err).Write(out); werr != nil {
				return werr
			}
			return &reportedError{err: err}
		}
		return NewJSONResponse(cmd.CommandPath(), res).Write(out)
	}
	if err != nil {
		return err
	}
	return res.writeText(out)
}

// runConfig runs fn with the loaded config and prints its result.
func runConfig(cmd *cobra.Command, opts *globalOptions, fn func(*config.Config) (result, error)) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return emit(cmd, opts, nil, err)
	}
	res, err := fn(cfg)
	return emit(cmd, opts, res, err)
}

// runApp builds the app, runs fn and prints its result. Gathered metrics
// go to stderr when metrics are enabled.
func runApp(cmd *cobra.Command, opts *globalOptions, fn func(context.Context, *app) (result, error)) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return emit(cmd, opts, nil, err)
	}
	a, err := newApp(ctx, cfg, opts.verbose)
	if err != nil {
		return emit(cmd, opts, nil, err)
	}
	defer a.Close()

	res, err := fn(ctx, a)
	if merr := a.writeMetrics(cmd.ErrOrStderr()); merr != nil {
		a.log.Warn("metrics gather failed", "error", merr)
	}
	return emit(cmd, opts, res, err)
}

// requireFlag reports a missing string flag as a usage error.
func requireFlag(flags *pflag.FlagSet, name string) (string, error) {
	v, err := flags.GetString(name)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", usageErrorf(name, "--%s is required", name)
	}
	return v, nil
}
