// Package service orchestrates judging: it takes queued submissions
// through the sandbox and writes back verdicts, execution records and
// notifications.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gavel/internal/common/storage"
	"gavel/internal/contest"
	"gavel/internal/dispatch"
	"gavel/internal/judge/language"
	"gavel/internal/judge/sandbox"
	"gavel/internal/notify"
	"gavel/internal/submission"
	"gavel/internal/testcase"
	"gavel/pkg/errors"
)

// Config tunes the judge service.
type Config struct {
	// PoolSize bounds concurrently judged submissions.
	PoolSize int

	// WorkDirRoot is where per-submission workspaces are created.
	WorkDirRoot string

	// OutputBucket, when set, receives captured solution output per
	// execution. Empty disables capture.
	OutputBucket string
}

func (c *Config) applyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 4
	}
	if c.WorkDirRoot == "" {
		c.WorkDirRoot = os.TempDir()
	}
}

// Service wires the judging pipeline together.
type Service struct {
	cfg         Config
	subs        submission.Store
	contests    contest.Store
	attachments storage.AttachmentStore
	loader      *testcase.Loader
	registry    *language.Registry
	runner      *sandbox.Runner
	policy      *dispatch.Policy
	sink        notify.Sink
	logger      *zap.Logger

	// sem bounds concurrent judging across all consumers.
	sem chan struct{}
}

func NewService(
	cfg Config,
	subs submission.Store,
	contests contest.Store,
	attachments storage.AttachmentStore,
	registry *language.Registry,
	runner *sandbox.Runner,
	policy *dispatch.Policy,
	sink notify.Sink,
	logger *zap.Logger,
) (*Service, error) {
	cfg.applyDefaults()
	if subs == nil || contests == nil || attachments == nil {
		return nil, errors.New(errors.InvalidParams).WithMessage("judge service needs its stores")
	}
	if registry == nil || runner == nil {
		return nil, errors.New(errors.InvalidParams).WithMessage("judge service needs a language registry and a runner")
	}
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Service{
		cfg:         cfg,
		subs:        subs,
		contests:    contests,
		attachments: attachments,
		loader:      testcase.NewLoader(attachments),
		registry:    registry,
		runner:      runner,
		policy:      policy,
		sink:        sink,
		logger:      logger,
		sem:         make(chan struct{}, cfg.PoolSize),
	}, nil
}

// Judge runs one submission through the sandbox and persists the
// outcome.
//
// Retryable errors (sandbox provisioning, storage blips) are returned
// with the submission left in JUDGING so a redelivery can resume it;
// the dead-letter path eventually parks it as FAILED. Non-retryable
// judge-side faults mark the submission FAILED here and return nil.
func (s *Service) Judge(ctx context.Context, submissionID uuid.UUID) error {
	sub, err := s.subs.FindByID(ctx, submissionID)
	if err != nil {
		return err
	}

	switch sub.Status {
	case submission.StatusQueued:
		// Normal path, transition below after validation.
	case submission.StatusJudging:
		// Redelivery of a submission that crashed mid-judging. Resume.
		s.logger.Info("resuming submission already in judging",
			zap.String("submission_id", sub.ID.String()))
	default:
		// Duplicate delivery after the verdict landed.
		s.logger.Info("submission already judged, skipping",
			zap.String("submission_id", sub.ID.String()),
			zap.String("status", string(sub.Status)))
		return nil
	}

	problem, err := s.contests.FindProblem(ctx, sub.ProblemID)
	if err != nil {
		return err
	}

	// Validate the test material before touching submission state, so a
	// broken problem leaves the submission where it was.
	cases, err := s.loader.Load(ctx, problem.TestCases)
	if err != nil {
		return err
	}

	if sub.Status == submission.StatusQueued {
		if err := s.transition(ctx, sub, submission.StatusJudging); err != nil {
			return err
		}
	}

	cfg, err := s.registry.Resolve(sub.Language)
	if err != nil {
		return s.fail(ctx, sub, err)
	}

	outcome, err := s.execute(ctx, sub, cfg, problem, cases)
	if err != nil {
		if errors.GetCode(err).Retryable() {
			return err
		}
		return s.fail(ctx, sub, err)
	}

	return s.finish(ctx, sub, problem, outcome)
}

// outcome carries the verdict of one full judging pass.
type outcome struct {
	answer   submission.Answer
	approved int
	total    int
	outputs  []string
}

// execute compiles once and runs test cases in order, stopping at the
// first failure.
func (s *Service) execute(ctx context.Context, sub *submission.Submission,
	cfg language.RunnerConfig, problem *contest.Problem, cases []testcase.TestCase) (*outcome, error) {

	workDir, err := os.MkdirTemp(s.cfg.WorkDirRoot, "judge-"+sub.ID.String()+"-*")
	if err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "create workspace")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			s.logger.Warn("workspace cleanup failed", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	code, err := s.attachments.Download(ctx, sub.Code)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(workDir, cfg.SourceFilename), code, 0o644); err != nil {
		return nil, errors.Wrapf(err, errors.InternalError, "write source file")
	}

	out := &outcome{total: len(cases)}

	compile, err := s.runner.Compile(ctx, cfg, workDir)
	if err != nil {
		return nil, err
	}
	if !compile.OK {
		out.answer = submission.AnswerCompilationError
		out.outputs = []string{compile.Stderr}
		return out, nil
	}

	timeLimit := time.Duration(problem.TimeLimitMs) * time.Millisecond
	out.answer = submission.AnswerAccepted
	for i, tc := range cases {
		res, err := s.runner.RunTestCase(ctx, cfg, workDir, tc, timeLimit, problem.MemoryLimitMB)
		if err != nil {
			return nil, err
		}
		out.outputs = append(out.outputs, res.Output)
		if !res.Passed() {
			out.answer = res.Answer()
			s.logger.Info("test case failed",
				zap.String("submission_id", sub.ID.String()),
				zap.Int("test_case", i+1),
				zap.String("classification", string(res.Classification)))
			break
		}
		out.approved++
	}
	return out, nil
}

// finish moves the submission to JUDGED and records the execution. The
// status is re-read first: a manual override during judging wins and
// this run's verdict is discarded. The execution row is written only
// after the status CAS wins, so a discarded verdict leaves no trace in
// the history.
func (s *Service) finish(ctx context.Context, sub *submission.Submission,
	problem *contest.Problem, out *outcome) error {

	fresh, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if fresh.Status != submission.StatusJudging {
		s.logger.Warn("submission status changed during judging, discarding verdict",
			zap.String("submission_id", sub.ID.String()),
			zap.String("status", string(fresh.Status)),
			zap.String("discarded_answer", string(out.answer)))
		return nil
	}

	if err := fresh.Transition(submission.StatusJudged); err != nil {
		return err
	}
	fresh.Answer = out.answer
	if err := s.subs.Update(ctx, fresh); err != nil {
		if errors.Is(err, errors.OptimisticConcurrency) {
			s.logger.Warn("lost submission update race, discarding verdict",
				zap.String("submission_id", sub.ID.String()))
			return nil
		}
		return err
	}

	exec, err := submission.NewExecution(sub.ID, out.answer, out.approved, out.total)
	if err != nil {
		return err
	}
	exec.Input = problem.TestCases
	exec.Output = s.captureOutput(ctx, sub, exec.ID, out.outputs)
	if err := s.subs.CreateExecution(ctx, exec); err != nil {
		return err
	}

	s.logger.Info("submission judged",
		zap.String("submission_id", sub.ID.String()),
		zap.String("answer", string(out.answer)),
		zap.Int("approved", out.approved),
		zap.Int("total", out.total))
	s.notifyUpdated(ctx, fresh)
	return nil
}

// fail parks the submission as FAILED after a non-retryable fault and
// acknowledges the message.
func (s *Service) fail(ctx context.Context, sub *submission.Submission, cause error) error {
	s.logger.Error("judging failed",
		zap.String("submission_id", sub.ID.String()),
		zap.Error(cause))

	fresh, err := s.subs.FindByID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if fresh.Status != submission.StatusJudging {
		return nil
	}
	if err := fresh.Transition(submission.StatusFailed); err != nil {
		return err
	}
	if err := s.subs.Update(ctx, fresh); err != nil {
		return err
	}
	s.notifyUpdated(ctx, fresh)
	return nil
}

// Rerun requeues a terminal submission for another judging pass. The
// enqueue itself is deferred onto hooks so it only happens after the
// caller commits.
func (s *Service) Rerun(ctx context.Context, submissionID uuid.UUID, hooks *dispatch.Hooks) (*submission.Submission, error) {
	sub, err := s.subs.FindByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	c, err := s.contests.FindByID(ctx, sub.ContestID)
	if err != nil {
		return nil, err
	}

	if err := sub.Transition(submission.StatusQueued); err != nil {
		return nil, err
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	if s.policy != nil {
		s.policy.OnSubmissionRerun(c, sub, hooks)
	}
	s.notifyUpdated(ctx, sub)
	return sub, nil
}

func (s *Service) transition(ctx context.Context, sub *submission.Submission, to submission.Status) error {
	if err := sub.Transition(to); err != nil {
		return err
	}
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}
	s.notifyUpdated(ctx, sub)
	return nil
}

// captureOutput uploads the concatenated per-test output. Capture is
// best effort: a storage failure costs the transcript, not the verdict.
func (s *Service) captureOutput(ctx context.Context, sub *submission.Submission,
	execID uuid.UUID, outputs []string) storage.AttachmentRef {

	if s.cfg.OutputBucket == "" || len(outputs) == 0 {
		return storage.AttachmentRef{}
	}
	var joined []byte
	for i, out := range outputs {
		joined = append(joined, []byte(fmt.Sprintf("--- test case %d ---\n%s\n", i+1, out))...)
	}
	ref := storage.AttachmentRef{
		Bucket:      s.cfg.OutputBucket,
		Key:         fmt.Sprintf("executions/%s/%s.txt", sub.ID, execID),
		Filename:    "output.txt",
		ContentType: "text/plain",
	}
	if err := s.attachments.Upload(ctx, ref, joined); err != nil {
		s.logger.Warn("output capture failed",
			zap.String("submission_id", sub.ID.String()), zap.Error(err))
		return storage.AttachmentRef{}
	}
	return ref
}

func (s *Service) notifyUpdated(ctx context.Context, sub *submission.Submission) {
	s.sink.Notify(ctx, notify.Event{
		Type:         notify.EventSubmissionUpdated,
		ContestID:    sub.ContestID,
		SubmissionID: sub.ID,
		MemberID:     sub.MemberID,
	})
}
