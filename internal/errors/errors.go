// Package errors defines the typed failure taxonomy shared by the pipeline
// and its adapters.
//
// Every failure that crosses a component boundary is an *AppError carrying a
// Kind (who can fix it) and a stable Code (what went wrong). Adapters map the
// Kind to exit codes or protocol errors; downstream consumers read the Code
// from a failed Document's metadata.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind groups error codes by the party able to correct them.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindDecode      Kind = "decode"
	KindEncode      Kind = "encode"
	KindConfig      Kind = "config"
	KindPersistence Kind = "persistence"
	KindPipeline    Kind = "pipeline"
	KindUnknown     Kind = "unknown"
)

type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any *AppError with the same Code, so the sentinels below work
// with errors.Is after New or Wrap has attached a more specific message.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(kind Kind, code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

// Wrap attaches the kind and code of sentinel to err with a new message.
func Wrap(err error, sentinel *AppError, message string) *AppError {
	return &AppError{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: message,
		Cause:   err,
	}
}

// Newf builds an error from sentinel with a formatted message and no cause.
func Newf(sentinel *AppError, format string, args ...interface{}) *AppError {
	return &AppError{
		Kind:    sentinel.Kind,
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
	}
}

var (
	ErrEmptyInput           = &AppError{Kind: KindValidation, Code: "VALIDATION_EMPTY_INPUT", Message: "input is empty"}
	ErrNotFound             = &AppError{Kind: KindValidation, Code: "VALIDATION_NOT_FOUND", Message: "file not found"}
	ErrNotAFile             = &AppError{Kind: KindValidation, Code: "VALIDATION_NOT_A_FILE", Message: "path is not a regular file"}
	ErrTooLarge             = &AppError{Kind: KindValidation, Code: "VALIDATION_TOO_LARGE", Message: "input exceeds maximum file size"}
	ErrUnsupportedExtension = &AppError{Kind: KindValidation, Code: "VALIDATION_UNSUPPORTED_EXTENSION", Message: "unsupported file extension"}

	ErrInvalidImage = &AppError{Kind: KindDecode, Code: "DECODE_INVALID_IMAGE", Message: "invalid image"}
	ErrDecodeFailed = &AppError{Kind: KindDecode, Code: "DECODE_FAILED", Message: "failed to decode image"}

	ErrUnsupportedFormat = &AppError{Kind: KindEncode, Code: "ENCODE_UNSUPPORTED_FORMAT", Message: "unsupported output format"}
	ErrEncodeFailed      = &AppError{Kind: KindEncode, Code: "ENCODE_FAILED", Message: "failed to encode image"}

	ErrInvalidQuality = &AppError{Kind: KindConfig, Code: "CONFIG_INVALID_QUALITY", Message: "quality must be between 1 and 100"}
	ErrInvalidBounds  = &AppError{Kind: KindConfig, Code: "CONFIG_INVALID_BOUNDS", Message: "size bounds must be positive"}
	ErrInvalidOption  = &AppError{Kind: KindConfig, Code: "CONFIG_INVALID_OPTION", Message: "invalid option"}

	ErrWriteFailed  = &AppError{Kind: KindPersistence, Code: "PERSIST_WRITE_FAILED", Message: "failed to write output"}
	ErrOutputExists = &AppError{Kind: KindPersistence, Code: "PERSIST_OUTPUT_EXISTS", Message: "output already exists"}

	ErrPoolSaturated = &AppError{Kind: KindPipeline, Code: "POOL_SATURATED", Message: "worker pool saturated"}
	ErrPoolClosed    = &AppError{Kind: KindPipeline, Code: "POOL_CLOSED", Message: "worker pool closed"}
	ErrTaskPanic     = &AppError{Kind: KindPipeline, Code: "POOL_TASK_PANIC", Message: "task panicked"}
	ErrTimeout       = &AppError{Kind: KindPipeline, Code: "PIPELINE_TIMEOUT", Message: "processing timed out"}
	ErrCanceled      = &AppError{Kind: KindPipeline, Code: "PIPELINE_CANCELED", Message: "processing canceled"}
)

func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
