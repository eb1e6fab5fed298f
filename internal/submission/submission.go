// Package submission holds the submission domain model: languages,
// lifecycle status, judged answers and execution records.
package submission

import (
	"time"

	"github.com/google/uuid"

	"gavel/internal/common/storage"
	"gavel/pkg/errors"
)

// Language identifies a supported submission language.
type Language string

const (
	LanguageCPP17     Language = "CPP_17"
	LanguageJava21    Language = "JAVA_21"
	LanguagePython312 Language = "PYTHON_3_12"
)

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusJudging Status = "JUDGING"
	StatusJudged  Status = "JUDGED"
	StatusFailed  Status = "FAILED"
)

// Terminal reports whether the status is a resting state that only a
// rerun can leave.
func (s Status) Terminal() bool {
	return s == StatusJudged || s == StatusFailed
}

// Answer is the judged outcome of a submission.
type Answer string

const (
	AnswerNone                Answer = "NO_ANSWER"
	AnswerAccepted            Answer = "ACCEPTED"
	AnswerWrongAnswer         Answer = "WRONG_ANSWER"
	AnswerTimeLimitExceeded   Answer = "TIME_LIMIT_EXCEEDED"
	AnswerMemoryLimitExceeded Answer = "MEMORY_LIMIT_EXCEEDED"
	AnswerRuntimeError        Answer = "RUNTIME_ERROR"
	AnswerCompilationError    Answer = "COMPILATION_ERROR"
)

// Submission is one contestant submission for a problem.
type Submission struct {
	ID        uuid.UUID
	ContestID uuid.UUID
	ProblemID uuid.UUID
	MemberID  uuid.UUID
	Language  Language
	Status    Status
	Answer    Answer
	Code      storage.AttachmentRef
	CreatedAt time.Time

	// Version backs optimistic concurrency on status updates.
	Version int64
}

// Execution is the immutable record of one judging pass over a
// submission. A rerun appends a new execution rather than rewriting
// the previous one.
type Execution struct {
	ID                uuid.UUID
	SubmissionID      uuid.UUID
	Answer            Answer
	TotalTestCases    int
	ApprovedTestCases int

	// Input is the test-case file this pass ran against. Kept per
	// execution: the problem's file can be replaced between reruns.
	Input  storage.AttachmentRef
	Output storage.AttachmentRef

	CreatedAt time.Time
}

// NewExecution builds an execution record, validating the test-case
// counters.
func NewExecution(submissionID uuid.UUID, answer Answer, approved, total int) (*Execution, error) {
	if total < 0 || approved < 0 || approved > total {
		return nil, errors.Newf(errors.InvalidParams,
			"invalid test case counters: approved=%d total=%d", approved, total)
	}
	return &Execution{
		ID:                uuid.New(),
		SubmissionID:      submissionID,
		Answer:            answer,
		TotalTestCases:    total,
		ApprovedTestCases: approved,
		CreatedAt:         time.Now().UTC(),
	}, nil
}
