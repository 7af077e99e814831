// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/threadline/internal/config"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage the configuration",
	}
	cmd.AddCommand(
		newConfigShowCmd(opts),
		newConfigGetCmd(opts),
		newConfigPathCmd(opts),
		newConfigInitCmd(opts),
		newConfigWatchCmd(opts),
	)
	return cmd
}

// configResult prints the effective config with the token redacted.
type configResult struct {
	cfg *config.Config
}

func (r configResult) MarshalJSON() ([]byte, error) {
	return []byte(r.cfg.String()), nil
}

func (r configResult) writeText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.cfg.String())
	return err
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfig(cmd, opts, func(cfg *config.Config) (result, error) {
				return configResult{cfg: cfg}, nil
			})
		},
	}
}

// valueResult is one config key.
type valueResult struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

func (r valueResult) writeText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%v\n", r.Value)
	return err
}

func newConfigGetCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "get KEY",
		Short:   "Print one configuration value",
		Example: "  threadline config get api.base_url",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(cmd, opts, func(cfg *config.Config) (result, error) {
				if len(args) != 1 {
					return nil, usageErrorf("key", "exactly one key is required")
				}
				key := args[0]
				v, err := cfg.Get(key)
				if err != nil {
					return nil, usageErrorf("key", "%v", err)
				}
				if strings.EqualFold(key, "api.token") && v != "" {
					v = "[REDACTED]"
				}
				return valueResult{Key: key, Value: v}, nil
			})
		},
	}
}

// configFilePath is --config when set, else the default TOML path.
func configFilePath(opts *globalOptions) (string, error) {
	if opts.configPath != "" {
		return opts.configPath, nil
	}
	path, err := config.ConfigPathTOML()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}

type pathResult struct {
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

func (r pathResult) writeText(w io.Writer) error {
	_, err := fmt.Fprintln(w, r.Path)
	return err
}

func newConfigPathCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configFilePath(opts)
			if err != nil {
				return emit(cmd, opts, nil, err)
			}
			_, statErr := os.Stat(path)
			return emit(cmd, opts, pathResult{Path: path, Exists: statErr == nil}, nil)
		},
	}
}

func newConfigInitCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write the default configuration as TOML to --config, or to
$THREADLINE_HOME/config.toml. An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configFilePath(opts)
			if err != nil {
				return emit(cmd, opts, nil, err)
			}
			if _, statErr := os.Stat(path); statErr == nil && !force {
				return emit(cmd, opts, nil, usageErrorf("config", "%s already exists, use --force to overwrite", path))
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return emit(cmd, opts, nil, &ConfigError{Err: err})
			}
			return emit(cmd, opts, pathResult{Path: path, Exists: true}, nil)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// reloadEvent is one line of config watch output.
type reloadEvent struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

func newConfigWatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the configuration every time the file changes",
		Long: `Watch the config file and print the effective configuration after each
change, or the reason it was rejected. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configFilePath(opts)
			if err != nil {
				return emit(cmd, opts, nil, err)
			}
			out := cmd.OutOrStdout()
			err = config.Watch(cmd.Context(), path, func(cfg *config.Config, err error) {
				writeReload(out, opts.jsonOut, cfg, err)
			})
			if err != nil {
				return emit(cmd, opts, nil, &ConfigError{Err: err})
			}
			return nil
		},
	}
}

func writeReload(w io.Writer, jsonOut bool, cfg *config.Config, err error) {
	if jsonOut {
		ev := reloadEvent{OK: err == nil}
		if err != nil {
			ev.Error = err.Error()
		} else {
			ev.Config = json.RawMessage(cfg.String())
		}
		data, _ := json.Marshal(ev)
		fmt.Fprintln(w, string(data))
		return
	}
	if err != nil {
		fmt.Fprintf(w, "reload rejected: %v\n", err)
		return
	}
	fmt.Fprintf(w, "reloaded:\n%s\n", cfg.String())
}
