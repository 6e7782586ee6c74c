// Package apperr implements the error-kind taxonomy used across the tool
// server: every failure surfaced to a caller or reinjected into a model turn
// carries one of these codes.
package apperr

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an AppError.
type ErrorCode string

const (
	CodeConfig         ErrorCode = "CONFIG_ERROR"
	CodeSecurity       ErrorCode = "SECURITY_ERROR"
	CodeToolExecution  ErrorCode = "TOOL_EXECUTION_ERROR"
	CodeModelBehavior  ErrorCode = "MODEL_BEHAVIOR_ERROR"
	CodeTransport      ErrorCode = "TRANSPORT_ERROR"
	CodeNotFound       ErrorCode = "NOT_FOUND"
)

// AppError is the single error type for the whole server.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewConfigError reports invalid or missing configuration; fatal at startup.
func NewConfigError(message string, cause error) *AppError {
	return &AppError{Code: CodeConfig, Message: message, Err: cause}
}

// NewSecurityError reports a URL/path/redirect rejected by the security
// validator. Never retried, never wrapped as a recoverable tool result.
func NewSecurityError(message string) *AppError {
	return &AppError{Code: CodeSecurity, Message: message}
}

// NewToolExecutionError carries a tool name, attempt count and underlying
// cause after retries are exhausted.
func NewToolExecutionError(message string, cause error) *AppError {
	return &AppError{Code: CodeToolExecution, Message: message, Err: cause}
}

// NewModelBehaviorError reports malformed tool-call syntax from the model.
func NewModelBehaviorError(message string) *AppError {
	return &AppError{Code: CodeModelBehavior, Message: message}
}

// NewTransportError reports transport-local I/O, timeout, or disconnect.
func NewTransportError(message string, cause error) *AppError {
	return &AppError{Code: CodeTransport, Message: message, Err: cause}
}

// NewNotFoundError reports an unknown tool, session, or document id.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// Is reports whether err is an *AppError with the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
