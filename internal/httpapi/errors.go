// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Accountd Contributors

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/oops"

	"github.com/userauth/accountd/internal/auth"
	"github.com/userauth/accountd/pkg/errutil"
)

// clientErrors maps domain error codes to their response message.
// Every one of them is answered with 401.
var clientErrors = map[string]string{
	auth.CodeEmailTaken:         msgUserExists,
	auth.CodeUserNotFound:       msgUserNotFound,
	auth.CodeInvalidCredentials: msgInvalidPassword,
	auth.CodeInvalidRequest:     msgInvalidRequest,
	auth.CodeTokenMissing:       msgNoToken,
	auth.CodeInvalidToken:       msgInvalidToken,
}

// classify returns the status and message for err.
func (s *Server) classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
		return he.Code, msg
	}

	code := errutil.Code(err)
	if code == auth.CodeValidationFailed {
		if oopsErr, ok := oops.AsOops(err); ok && oopsErr.Public() != "" {
			return http.StatusUnauthorized, oopsErr.Public()
		}
		return http.StatusUnauthorized, validationMessage(invalidFields(err))
	}
	if msg, ok := clientErrors[code]; ok {
		return http.StatusUnauthorized, msg
	}

	if s.exposeErrors {
		return http.StatusInternalServerError, msgServerError + " - " + err.Error()
	}
	return http.StatusInternalServerError, msgServerError
}

// invalidFields reads the offending fields from a validation error. Schema
// failures carry "fields"; domain constructors carry a single "field".
func invalidFields(err error) []string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}
	ctx := oopsErr.Context()
	if fields, ok := ctx["fields"].([]string); ok {
		return fields
	}
	if field, ok := ctx["field"].(string); ok {
		return []string{field}
	}
	return nil
}

// handleError is the echo HTTPErrorHandler. Every failure is answered with
// the FAILED envelope.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, msg := s.classify(err)
	req := c.Request()
	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(req.Context(), s.logger, "request failed", err,
			"method", req.Method,
			"path", req.URL.Path)
	} else {
		s.logger.DebugContext(req.Context(), "request rejected",
			"status", status,
			"code", errutil.Code(err),
			"path", req.URL.Path)
	}

	var writeErr error
	if req.Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, envelope{Msg: msg, Status: statusFailed})
	}
	if writeErr != nil {
		s.logger.WarnContext(req.Context(), "failed to write error response", "error", writeErr)
	}
}

// authOutcome labels the result of an auth operation for metrics.
func authOutcome(err error) string {
	if err == nil {
		return "success"
	}
	code := errutil.Code(err)
	if code == auth.CodeValidationFailed {
		return "validation_failed"
	}
	if _, ok := clientErrors[code]; ok {
		return strings.ToLower(strings.TrimPrefix(code, "AUTH_"))
	}
	return "error"
}
