// Package errors provides unified error handling with structured error codes
// shared across the streaming pipeline.
package errors

import "fmt"

// Code classifies pipeline failures into the handling taxonomy:
// malformed upstream data, transient dependency failure, unmatched
// reference, programming/handler fault, and lifecycle violations.
type Code int

const (
	CodeUnknown Code = iota
	CodeMalformedCandidate
	CodeEmbeddingUnavailable
	CodeValidatorUnavailable
	CodeExtractionFailed
	CodeUnmatchedReference
	CodeHandlerFault
	CodeSessionClosed
	CodeSessionExists
	CodeConfigInvalid
	CodeRateLimited
	CodeTimeout
)

var codeNames = map[Code]string{
	CodeUnknown:              "UNKNOWN",
	CodeMalformedCandidate:   "MALFORMED_CANDIDATE",
	CodeEmbeddingUnavailable: "EMBEDDING_UNAVAILABLE",
	CodeValidatorUnavailable: "VALIDATOR_UNAVAILABLE",
	CodeExtractionFailed:     "EXTRACTION_FAILED",
	CodeUnmatchedReference:   "UNMATCHED_REFERENCE",
	CodeHandlerFault:         "HANDLER_FAULT",
	CodeSessionClosed:        "SESSION_CLOSED",
	CodeSessionExists:        "SESSION_EXISTS",
	CodeConfigInvalid:        "CONFIG_INVALID",
	CodeRateLimited:          "RATE_LIMITED",
	CodeTimeout:              "TIMEOUT",
}

// String returns the symbolic name of the code.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code.String(), e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks if an error has a specific error code, unwrapping as needed.
func IsCode(err error, code Code) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			return appErr.Code == code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf extracts the code from an error, or CodeUnknown.
func CodeOf(err error) Code {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeUnknown
}

// IsRecoverable reports whether the pipeline should fail open on this error
// rather than surface it: transient provider failures and unmatched
// references never block the stream.
func IsRecoverable(err error) bool {
	switch CodeOf(err) {
	case CodeEmbeddingUnavailable, CodeValidatorUnavailable, CodeUnmatchedReference, CodeMalformedCandidate:
		return true
	default:
		return false
	}
}

// IsRetryable returns true if the error is worth retrying against the provider.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeRateLimited, CodeTimeout, CodeEmbeddingUnavailable, CodeExtractionFailed:
		return true
	default:
		return false
	}
}
