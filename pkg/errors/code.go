package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Job & Queue errors
// 12000-12999: Sandbox & Execution errors
// 13000-13999: Compiler & Proof errors
// 14000-14999: Security errors
const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10004
	Timeout             ErrorCode = 10005

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10102

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Storage errors (10300-10399)
	StorageError    ErrorCode = 10300
	DownloadFailed  ErrorCode = 10301
	UploadFailed    ErrorCode = 10302
	ObjectNotFound  ErrorCode = 10303
	ObjectCorrupted ErrorCode = 10304

	// Validation errors (10400-10499)
	ValidationFailed   ErrorCode = 10400
	RequiredFieldEmpty ErrorCode = 10401

	// ========== Job & Queue Errors (11000-11999) ==========

	// Queue (11000-11099)
	QueueFull        ErrorCode = 11000
	QueueClosed      ErrorCode = 11001
	JobNotFound      ErrorCode = 11002
	InvalidJob       ErrorCode = 11003
	DeadlineExceeded ErrorCode = 11004

	// Worker pool (11100-11199)
	PoolNotRunning     ErrorCode = 11100
	PoolAlreadyStarted ErrorCode = 11101
	JobTimeout         ErrorCode = 11102

	// ========== Sandbox & Execution Errors (12000-12999) ==========

	SandboxCreationFailed ErrorCode = 12000
	SandboxNotFound       ErrorCode = 12001
	MountFailed           ErrorCode = 12002
	BuildFailed           ErrorCode = 12003
	ExecutionFailed       ErrorCode = 12004
	CleanupFailed         ErrorCode = 12005
	ResourceLimitExceeded ErrorCode = 12006
	SandboxSystemError    ErrorCode = 12007

	// ========== Compiler & Proof Errors (13000-13999) ==========

	CompilerError        ErrorCode = 13000
	CompilerUnavailable  ErrorCode = 13001
	ProofGenerationError ErrorCode = 13002

	// ========== Security Errors (14000-14999) ==========

	SecurityValidationFailed ErrorCode = 14000
	RuntimeNotIsolated       ErrorCode = 14001
	RunningAsRoot            ErrorCode = 14002
	SeccompDisabled          ErrorCode = 14003
	CapabilitiesNotDropped   ErrorCode = 14004
	InvalidResourceLimits    ErrorCode = 14005
	ScanFailed               ErrorCode = 14006
	ScanThresholdExceeded    ErrorCode = 14007
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Operation timed out",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	// Storage
	StorageError:    "Object storage operation failed",
	DownloadFailed:  "Failed to download object",
	UploadFailed:    "Failed to upload object",
	ObjectNotFound:  "Object not found in storage",
	ObjectCorrupted: "Object content hash mismatch",

	// Validation
	ValidationFailed:   "Validation failed",
	RequiredFieldEmpty: "Required field is empty",

	// Job & Queue
	QueueFull:        "Job queue is full, please retry later",
	QueueClosed:      "Job queue is closed",
	JobNotFound:      "Job not found",
	InvalidJob:       "Invalid job",
	DeadlineExceeded: "Job deadline exceeded",

	// Worker pool
	PoolNotRunning:     "Worker pool is not running",
	PoolAlreadyStarted: "Worker pool already started",
	JobTimeout:         "Job execution timed out",

	// Sandbox
	SandboxCreationFailed: "Failed to create sandbox",
	SandboxNotFound:       "Sandbox not found",
	MountFailed:           "Failed to mount code bundle",
	BuildFailed:           "Build failed inside sandbox",
	ExecutionFailed:       "Proof execution failed inside sandbox",
	CleanupFailed:         "Sandbox cleanup failed",
	ResourceLimitExceeded: "Sandbox resource limit exceeded",
	SandboxSystemError:    "Sandbox system error",

	// Compiler & Proof
	CompilerError:        "Theorem compiler error",
	CompilerUnavailable:  "Theorem compiler is unavailable",
	ProofGenerationError: "Proof generation failed",

	// Security
	SecurityValidationFailed: "Security validation failed",
	RuntimeNotIsolated:       "Required isolation runtime not detected",
	RunningAsRoot:            "Process is running as root",
	SeccompDisabled:          "Seccomp is required but not enabled",
	CapabilitiesNotDropped:   "Capabilities must be dropped",
	InvalidResourceLimits:    "Resource limits must be positive",
	ScanFailed:               "Security scan failed",
	ScanThresholdExceeded:    "Vulnerability threshold exceeded",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == JobNotFound, c == RecordNotFound, c == ObjectNotFound:
		return 404
	case c == QueueFull:
		return 429
	case c == ServiceUnavailable, c == CompilerUnavailable, c == PoolNotRunning:
		return 503
	case c == InvalidParams, c == InvalidJob, c >= 10400 && c < 10500:
		return 400
	default:
		return 500
	}
}
