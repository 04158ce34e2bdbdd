package formstream

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why an upload failed as a whole.
type ErrorCode string

const (
	CodeTimeout        ErrorCode = "TIMEOUT_ERROR"
	CodeRequest        ErrorCode = "REQUEST_ERROR"
	CodeFileProcessing ErrorCode = "FILE_PROCESSING_ERROR"
	CodeUnknown        ErrorCode = "UNKNOWN_ERROR"
	CodeNoFiles        ErrorCode = "NO_FILES_ERROR"
)

var (
	// ErrFileTooLarge is returned by a part stream once it crosses the
	// configured per-file limit.
	ErrFileTooLarge = errors.New("file exceeds size limit")
	// ErrFieldTooLarge is returned when a form field value crosses the
	// configured field limit.
	ErrFieldTooLarge = errors.New("field exceeds size limit")
	// ErrNoHandler is recorded for every file when no handler was supplied
	// and the result type is not []byte.
	ErrNoHandler = errors.New("no handler for result type")
)

// Error is the failure half of an Outcome, and the per-file error recorded
// on a PartResult when a handler fails.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code, so
// errors.Is(err, ErrTimeout) works on wrapped values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Targets for errors.Is.
var (
	ErrTimeout        = &Error{Code: CodeTimeout, Message: "upload timed out"}
	ErrRequest        = &Error{Code: CodeRequest, Message: "request failed"}
	ErrFileProcessing = &Error{Code: CodeFileProcessing, Message: "file processing failed"}
	ErrUnknown        = &Error{Code: CodeUnknown, Message: "unknown failure"}
	ErrNoFiles        = &Error{Code: CodeNoFiles, Message: "no files uploaded"}
)

func newError(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Cause: cause}
}

// asError keeps an *Error already present in err's chain and otherwise
// wraps err under code.
func asError(err error, code ErrorCode, msg string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(code, msg, err)
}
