package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/usestring/customs-mcp/internal/aisearch"
	"github.com/usestring/customs-mcp/internal/app"
	"github.com/usestring/customs-mcp/internal/dataquery"
	"github.com/usestring/customs-mcp/internal/form"
	"github.com/usestring/customs-mcp/internal/users"
	"github.com/usestring/customs-mcp/pkg/client"
)

// Error codes for MCP tool responses.
const (
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeAPIError     = "API_ERROR"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeAIParse      = "AI_PARSE_ERROR"
)

// CodedError is an error with an associated error code.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	return e.Cause
}

// WrapError converts an error from the runtime into a coded error.
// Validation failures keep their field messages.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded
	}

	coded = &CodedError{Message: err.Error(), Cause: err}
	var apiErr *client.APIError
	var netErr net.Error
	switch {
	case form.IsValidation(err), isStateError(err):
		coded.Code = ErrCodeInvalidInput
	case errors.Is(err, aisearch.ErrAIParse):
		coded.Code = ErrCodeAIParse
	case errors.Is(err, client.ErrUnauthorized):
		coded.Code = ErrCodeUnauthorized
		coded.Message = "not signed in or session expired; call customs_login"
	case errors.Is(err, client.ErrForbidden), errors.Is(err, users.ErrProtectedAccount):
		coded.Code = ErrCodeForbidden
	case errors.Is(err, client.ErrNotFound):
		coded.Code = ErrCodeNotFound
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		coded.Code = ErrCodeTimeout
		coded.Message = "request timed out"
	case errors.As(err, &apiErr):
		coded.Code = ErrCodeAPIError
		coded.Message = apiErr.Message
		if apiErr.Kind == client.KindValidation {
			coded.Code = ErrCodeInvalidInput
		}
	default:
		coded.Code = ErrCodeAPIError
	}

	slog.Warn("tool call failed",
		slog.String("code", coded.Code),
		slog.String("message", coded.Message),
	)
	return coded
}

// isStateError reports failures caused by calling a tool at the wrong
// moment rather than by the server.
func isStateError(err error) bool {
	for _, target := range []error{
		dataquery.ErrEmptyResult,
		dataquery.ErrNoDraft,
		dataquery.ErrDraftOpen,
		dataquery.ErrUnknownConfirmation,
		dataquery.ErrSuperseded,
		users.ErrSessionChanged,
		app.ErrUnsupportedFile,
		app.ErrUnknownRoute,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string) error {
	return &CodedError{
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}
