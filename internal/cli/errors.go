// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/threadline/internal/cloud"
	"github.com/jeranaias/threadline/internal/config"
	"github.com/jeranaias/threadline/internal/reconcile"
	"github.com/jeranaias/threadline/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates the API rejected the token
	ExitAuthError = 4
	// ExitNetworkError indicates a transport failure
	ExitNetworkError = 5
	// ExitStreamError indicates the server stream was invalid or empty
	ExitStreamError = 6
	// ExitNotFoundError indicates a thread or message was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// UsageError reports a bad flag or argument.
type UsageError struct {
	Field  string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConfigError reports a configuration that could not be loaded or used.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func usageErrorf(field, format string, args ...interface{}) error {
	return &UsageError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usageErr *UsageError
	var cfgErr *ConfigError
	var validateErrs config.ValidateErrors

	switch {
	case errors.As(err, &usageErr):
		return ExitUsageError
	case errors.As(err, &cfgErr), errors.As(err, &validateErrs), errors.Is(err, cloud.ErrNotConfigured):
		return ExitConfigError
	case errors.Is(err, storage.ErrInvalidThreadID):
		return ExitUsageError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.Is(err, cloud.ErrUnauthorized):
		return ExitAuthError
	case errors.Is(err, cloud.ErrNotFound),
		errors.Is(err, storage.ErrMessageNotFound),
		errors.Is(err, storage.ErrThreadNotFound):
		return ExitNotFoundError
	case reconcile.IsKind(err, reconcile.KindValidation), reconcile.IsKind(err, reconcile.KindEmptyStream):
		return ExitStreamError
	case reconcile.IsKind(err, reconcile.KindTransport):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}
