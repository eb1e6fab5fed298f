package sandbox

import (
	"gavel/internal/submission"
)

// Classification is the per-test-case verdict.
type Classification string

const (
	ClassPassed              Classification = "PASSED"
	ClassWrongOutput         Classification = "WRONG_OUTPUT"
	ClassTimeLimitExceeded   Classification = "TIME_LIMIT_EXCEEDED"
	ClassMemoryLimitExceeded Classification = "MEMORY_LIMIT_EXCEEDED"
	ClassRuntimeError        Classification = "RUNTIME_ERROR"
	ClassCompilationError    Classification = "COMPILATION_ERROR"
)

// TestCaseResult is the classified outcome of judging one test case.
// Which fields are meaningful depends on the classification: Output is
// set for passed and wrong-output results, Expected only for wrong
// output, ExitCode and Stderr only for runtime and compilation errors.
type TestCaseResult struct {
	Classification Classification
	Output         string
	Expected       string
	ExitCode       int
	Stderr         string
}

// Passed reports whether the test case was accepted.
func (r TestCaseResult) Passed() bool {
	return r.Classification == ClassPassed
}

// Answer maps the classification to a submission answer.
func (r TestCaseResult) Answer() submission.Answer {
	switch r.Classification {
	case ClassPassed:
		return submission.AnswerAccepted
	case ClassWrongOutput:
		return submission.AnswerWrongAnswer
	case ClassTimeLimitExceeded:
		return submission.AnswerTimeLimitExceeded
	case ClassMemoryLimitExceeded:
		return submission.AnswerMemoryLimitExceeded
	case ClassRuntimeError:
		return submission.AnswerRuntimeError
	case ClassCompilationError:
		return submission.AnswerCompilationError
	default:
		return submission.AnswerNone
	}
}
