package jobs

import (
	"errors"
	"fmt"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// Error is a pipeline failure with a stable code. Message is always one of
// the fixed strings below, so low-level error text never reaches callers;
// Err keeps the cause for logs.
type Error struct {
	Code    models.ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

var messages = map[models.ErrorCode]string{
	models.ErrCodeDownloadFailed:    "Source document could not be downloaded",
	models.ErrCodeUploadFailed:      "Extraction output could not be stored",
	models.ErrCodeExtractionFailed:  "Source document could not be read",
	models.ErrCodeUnsupportedFormat: "Source format is not supported",
	models.ErrCodeNoStructuralRows:  "No structural members detected. Check schedule format.",
	models.ErrCodeMaxAttempts:       "Job has no attempts left",
	models.ErrCodeAlreadyRunning:    "Job is already running",
	models.ErrCodeJobFinished:       "Job has already finished",
	models.ErrCodeStaleHeartbeat:    "Job stopped reporting progress",
	models.ErrCodeStoreFailed:       "Job state could not be saved",
	models.ErrCodeInvalidRequest:    "Invalid request",
	models.ErrCodeNotFound:          "Resource not found",
	models.ErrCodeInternal:          "An unexpected error occurred",
	models.ErrCodeRateLimited:       "Too many requests",
	models.ErrCodeNotImplemented:    "Endpoint not yet implemented",
	models.ErrCodeDegraded:          "One or more services degraded",
}

// Message returns the fixed public message for code. Unknown codes get the
// internal error message.
func Message(code models.ErrorCode) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return messages[models.ErrCodeInternal]
}

func newError(code models.ErrorCode, err error) *Error {
	return &Error{Code: code, Message: Message(code), Err: err}
}

// invalid reports a rejected request. msg names the offending field.
func invalid(msg string) *Error {
	return &Error{Code: models.ErrCodeInvalidRequest, Message: msg}
}

// PublicError returns the *Error in err's chain, or INTERNAL_ERROR for
// anything else.
func PublicError(err error) *Error {
	if err == nil {
		return nil
	}
	var jerr *Error
	if errors.As(err, &jerr) {
		return jerr
	}
	return newError(models.ErrCodeInternal, err)
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code models.ErrorCode) bool {
	var jerr *Error
	return errors.As(err, &jerr) && jerr.Code == code
}
