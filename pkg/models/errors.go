package models

// ErrorCode is a stable, machine-readable failure identifier. Codes are part
// of the public contract and must never change meaning.
type ErrorCode string

const (
	ErrCodeDownloadFailed     ErrorCode = "DOWNLOAD_FAILED"
	ErrCodeUploadFailed       ErrorCode = "UPLOAD_FAILED"
	ErrCodeExtractionFailed   ErrorCode = "EXTRACTION_FAILED"
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeBackendError       ErrorCode = "BACKEND_ERROR"
	ErrCodeUnsupportedFormat  ErrorCode = "UNSUPPORTED_FORMAT"
	ErrCodeNoStructuralRows   ErrorCode = "NO_STRUCTURAL_ROWS_DETECTED"
	ErrCodeMaxAttempts        ErrorCode = "MAX_ATTEMPTS_EXCEEDED"
	ErrCodeAlreadyRunning     ErrorCode = "ALREADY_RUNNING"
	ErrCodeJobFinished        ErrorCode = "JOB_FINISHED"
	ErrCodeStaleHeartbeat     ErrorCode = "STALE_HEARTBEAT"
	ErrCodeStoreFailed        ErrorCode = "STORE_FAILED"
	ErrCodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"

	// HTTP surface only; never recorded on a job.
	ErrCodeRateLimited    ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeDegraded       ErrorCode = "DEGRADED"
)

// Warning codes attached to artifact packs and extraction results.
const (
	WarnExtractionFailed     = "EXTRACTION_FAILED"
	WarnLowConfidencePages   = "LOW_CONFIDENCE_PAGES"
	WarnChunksOmitted        = "CHUNKS_OMITTED"
	WarnUncitedValueDropped  = "UNCITED_VALUE_DROPPED"
	WarnPageSplitApproximate = "PAGE_SPLIT_APPROXIMATE"
	WarnOCRUnavailable       = "OCR_UNAVAILABLE"
)

// ErrorCodePtr is a small helper for optional error codes on models.
func ErrorCodePtr(c ErrorCode) *ErrorCode { return &c }
