// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for threadline.
//
// Supports TOML, JSON and YAML configuration files, with sensible defaults,
// .env files, environment variable overrides, validation and hot reload.
//
// # Key Types
//
//   - Config: Main configuration structure with all sections
//   - APIConfig: Message API endpoint, credentials and limits
//   - CacheConfig: Snapshot persistence backend
//   - ReconcileConfig: Rollback scope and refresh fan-out
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (THREADLINE_*)
//   - .env in $THREADLINE_HOME, then in the working directory
//   - $THREADLINE_HOME/config.toml (default home: ~/.threadline)
//   - $THREADLINE_HOME/config.json
//   - $THREADLINE_HOME/config.yaml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := cloud.NewClient(cfg.API.BaseURL).WithTimeout(cfg.API.Timeout())
package config
