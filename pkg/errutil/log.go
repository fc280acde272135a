// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

// Package errutil bridges oops errors to logging and tests.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context if it's an oops error.
// For oops errors, it extracts and logs the message, code, and context.
// For standard errors, it logs the error string.
func LogError(logger *slog.Logger, msg string, err error) {
	LogErrorContext(context.Background(), logger, msg, err)
}

// LogErrorContext is LogError with a context for request and trace correlation.
// Extra attrs are appended after the error fields.
func LogErrorContext(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := oopsErr.Code(); code != nil {
			fields = append(fields, "code", code)
		}
		if errCtx := oopsErr.Context(); len(errCtx) > 0 {
			fields = append(fields, "context", errCtx)
		}
	}
	logger.ErrorContext(ctx, msg, append(fields, attrs...)...)
}

// Code returns the oops code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case nil:
		return ""
	case string:
		return code
	default:
		return fmt.Sprint(code)
	}
}
