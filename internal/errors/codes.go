// Package errors provides structured error handling for Chordex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (cache files, disk)
//   - 3XX: Validation errors
//   - 4XX: Compute errors (device, kernel)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates cache file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryCompute indicates device or kernel execution errors.
	CategoryCompute Category = "COMPUTE"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeCacheNotFound     = "ERR_201_CACHE_NOT_FOUND"
	ErrCodeCacheCorrupt      = "ERR_202_CACHE_CORRUPT"
	ErrCodeCacheVersion      = "ERR_203_CACHE_VERSION"
	ErrCodeCacheLocked       = "ERR_204_CACHE_LOCKED"
	ErrCodeIndexWriteFailed  = "ERR_205_INDEX_WRITE_FAILED"

	// Validation errors (300-399)
	ErrCodeInvalidInput      = "ERR_301_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_302_DIMENSION_MISMATCH"
	ErrCodeVoicingNotFound   = "ERR_303_VOICING_NOT_FOUND"
	ErrCodeNotInitialized    = "ERR_304_NOT_INITIALIZED"
	ErrCodeAlreadyClosed     = "ERR_305_ALREADY_CLOSED"

	// Compute errors (400-499)
	ErrCodeDeviceUnavailable = "ERR_401_DEVICE_UNAVAILABLE"
	ErrCodeKernelFailed      = "ERR_402_KERNEL_FAILED"
	ErrCodeDeviceAlloc       = "ERR_403_DEVICE_ALLOC"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryValidation
	case '4':
		return CategoryCompute
	default:
		return CategoryInternal
	}
}

// severityFromCode derives default severity from error code.
// Compute errors are warnings because every compute failure has a CPU
// fallback; cache version/corruption errors are plain errors because the
// cache is rebuildable.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryCompute:
		return SeverityWarning
	case CategoryConfig:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether the operation behind the code can be
// retried without caller-side changes.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeCacheLocked, ErrCodeKernelFailed, ErrCodeDeviceAlloc, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
