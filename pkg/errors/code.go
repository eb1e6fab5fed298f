package errors

// ErrorCode identifies a class of failure across the judge core.
type ErrorCode int

// Code ranges:
// 10000-10999: system & common errors
// 13000-13999: submission & judge pipeline errors
// 14000-14999: contest & leaderboard errors
const (
	Success ErrorCode = 0

	// System & common
	InternalError      ErrorCode = 10000
	InvalidParams      ErrorCode = 10001
	NotFound           ErrorCode = 10002
	ServiceUnavailable ErrorCode = 10003
	ValidationFailed   ErrorCode = 10300
	BusinessRule       ErrorCode = 10301

	// Submission & judge pipeline
	SubmissionNotFound     ErrorCode = 13000
	InvalidStateTransition ErrorCode = 13001
	OptimisticConcurrency  ErrorCode = 13002
	ConfigurationNotFound  ErrorCode = 13100
	SandboxProvisioning    ErrorCode = 13101
	JudgeSystemError       ErrorCode = 13102

	// Contest & leaderboard
	ContestNotFound ErrorCode = 14000
)

var errorMessages = map[ErrorCode]string{
	Success: "Success",

	InternalError:      "Internal error",
	InvalidParams:      "Invalid parameters",
	NotFound:           "Resource not found",
	ServiceUnavailable: "Service unavailable",
	ValidationFailed:   "Validation failed",
	BusinessRule:       "Business rule violated",

	SubmissionNotFound:     "Submission not found",
	InvalidStateTransition: "Invalid submission state transition",
	OptimisticConcurrency:  "Submission was modified concurrently",
	ConfigurationNotFound:  "No runner configuration for language",
	SandboxProvisioning:    "Sandbox environment unavailable",
	JudgeSystemError:       "Judge system error",

	ContestNotFound: "Contest not found",
}

// Message returns the default message for the error code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// Retryable reports whether redelivering the triggering message may
// succeed. Only infrastructure-level failures qualify; classification
// outcomes and rejected transitions never do.
func (c ErrorCode) Retryable() bool {
	switch c {
	case SandboxProvisioning, ServiceUnavailable, InternalError:
		return true
	default:
		return false
	}
}
