// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides Prometheus metrics for stream reconciliation.
//
// # Key Types
//
//   - Metrics: Counters and histograms for frames, rollbacks and requests
//
// # Usage
//
//	reg := prometheus.NewRegistry()
//	m, err := telemetry.New("threadline", reg)
//	m.ObserveFrame(telemetry.OpSend)
//
// All Observe methods are safe on a nil *Metrics, so callers never need to
// check whether metrics are enabled.
package telemetry
