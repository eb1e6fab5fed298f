package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gavel/internal/common/mq"
	"gavel/internal/common/storage"
	"gavel/internal/contest"
	"gavel/internal/dispatch"
	"gavel/internal/judge/language"
	"gavel/internal/judge/sandbox"
	"gavel/internal/notify"
	"gavel/internal/submission"
	"gavel/pkg/errors"
)

type fakeSubs struct {
	mu    sync.Mutex
	subs  map[uuid.UUID]submission.Submission
	execs []submission.Execution

	// onUpdate, when set, runs before each Update sees the store.
	onUpdate func(sub *submission.Submission)
}

func newFakeSubs(subs ...submission.Submission) *fakeSubs {
	f := &fakeSubs{subs: make(map[uuid.UUID]submission.Submission)}
	for _, sub := range subs {
		f.subs[sub.ID] = sub
	}
	return f
}

func (f *fakeSubs) FindByID(_ context.Context, id uuid.UUID) (*submission.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		return nil, errors.New(errors.SubmissionNotFound).WithMessage("submission not found")
	}
	copied := sub
	return &copied, nil
}

func (f *fakeSubs) Update(_ context.Context, sub *submission.Submission) error {
	if f.onUpdate != nil {
		f.onUpdate(sub)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.subs[sub.ID]
	if !ok {
		return errors.New(errors.SubmissionNotFound).WithMessage("submission not found")
	}
	if stored.Version != sub.Version {
		return errors.New(errors.OptimisticConcurrency).WithMessage("version mismatch")
	}
	sub.Version++
	f.subs[sub.ID] = *sub
	return nil
}

func (f *fakeSubs) CreateExecution(_ context.Context, exec *submission.Execution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, *exec)
	return nil
}

func (f *fakeSubs) ListByContest(_ context.Context, contestID uuid.UUID) ([]submission.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []submission.Submission
	for _, sub := range f.subs {
		if sub.ContestID == contestID {
			out = append(out, sub)
		}
	}
	return out, nil
}

// setStatus simulates an out-of-band status change, like a judge
// overriding the verdict manually.
func (f *fakeSubs) setStatus(id uuid.UUID, status submission.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := f.subs[id]
	sub.Status = status
	sub.Version++
	f.subs[id] = sub
}

func (f *fakeSubs) get(t *testing.T, id uuid.UUID) submission.Submission {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	sub, ok := f.subs[id]
	if !ok {
		t.Fatalf("submission %s missing from store", id)
	}
	return sub
}

type fakeContests struct {
	contest contest.Contest
	problem contest.Problem
}

func (f *fakeContests) FindByID(_ context.Context, id uuid.UUID) (*contest.Contest, error) {
	if id != f.contest.ID {
		return nil, errors.New(errors.ContestNotFound).WithMessage("contest not found")
	}
	c := f.contest
	return &c, nil
}

func (f *fakeContests) FindProblem(_ context.Context, id uuid.UUID) (*contest.Problem, error) {
	if id != f.problem.ID {
		return nil, errors.New(errors.NotFound).WithMessage("problem not found")
	}
	p := f.problem
	return &p, nil
}

func (f *fakeContests) ListProblems(context.Context, uuid.UUID) ([]contest.Problem, error) {
	return []contest.Problem{f.problem}, nil
}

func (f *fakeContests) ListMembers(context.Context, uuid.UUID) ([]contest.Member, error) {
	return nil, nil
}

type fakeAttachments struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (f *fakeAttachments) Upload(_ context.Context, ref storage.AttachmentRef, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[ref.Key] = data
	return nil
}

func (f *fakeAttachments) Download(_ context.Context, ref storage.AttachmentRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[ref.Key]
	if !ok {
		return nil, errors.New(errors.NotFound).WithMessage("no such object")
	}
	return data, nil
}

func (f *fakeAttachments) Stat(_ context.Context, ref storage.AttachmentRef) (storage.AttachmentStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[ref.Key]
	if !ok {
		return storage.AttachmentStat{}, errors.New(errors.NotFound).WithMessage("no such object")
	}
	return storage.AttachmentStat{SizeBytes: int64(len(data))}, nil
}

// scriptEngine replays canned results in order. onExec, when set, runs
// before each result is returned.
type scriptEngine struct {
	mu     sync.Mutex
	script []sandbox.ExecResult
	errs   []error
	calls  int
	onExec func(call int)
}

func (e *scriptEngine) Exec(_ context.Context, _ sandbox.ExecSpec) (sandbox.ExecResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.calls
	e.calls++
	if e.onExec != nil {
		e.onExec(i)
	}
	if i < len(e.errs) && e.errs[i] != nil {
		return sandbox.ExecResult{}, e.errs[i]
	}
	if i < len(e.script) {
		return e.script[i], nil
	}
	return sandbox.ExecResult{}, nil
}

type countingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *countingSink) Notify(_ context.Context, event notify.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

type fixture struct {
	svc      *Service
	subs     *fakeSubs
	sub      submission.Submission
	engine   *scriptEngine
	sink     *countingSink
	producer *fakeProducer
}

type fakeProducer struct {
	mu        sync.Mutex
	published []*mq.Message
}

func (f *fakeProducer) Publish(_ context.Context, _ string, msg *mq.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	return nil
}

// newFixture builds a judge service around one Python submission and a
// problem with three test cases echoing their input.
func newFixture(t *testing.T, engine *scriptEngine, testCSV string) *fixture {
	t.Helper()

	contestID := uuid.New()
	problemID := uuid.New()
	attachments := &fakeAttachments{}

	tcRef := storage.AttachmentRef{Key: "testcases.csv", ContentType: "text/csv"}
	if err := attachments.Upload(context.Background(), tcRef, []byte(testCSV)); err != nil {
		t.Fatalf("upload test cases: %v", err)
	}
	codeRef := storage.AttachmentRef{Key: "code.py", ContentType: "text/x-python"}
	if err := attachments.Upload(context.Background(), codeRef, []byte("print(input())\n")); err != nil {
		t.Fatalf("upload code: %v", err)
	}

	sub := submission.Submission{
		ID:        uuid.New(),
		ContestID: contestID,
		ProblemID: problemID,
		MemberID:  uuid.New(),
		Language:  submission.LanguagePython312,
		Status:    submission.StatusQueued,
		Answer:    submission.AnswerNone,
		Code:      codeRef,
		Version:   1,
	}
	subs := newFakeSubs(sub)

	contests := &fakeContests{
		contest: contest.Contest{ID: contestID, Settings: contest.Settings{AutoJudgeEnabled: true}},
		problem: contest.Problem{
			ID: problemID, ContestID: contestID, Letter: "A",
			TimeLimitMs: 1000, MemoryLimitMB: 256, TestCases: tcRef,
		},
	}

	registry, err := language.NewRegistry(language.DefaultSpecs())
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	runner := sandbox.NewRunner(engine, sandbox.RunnerOptions{}, zap.NewNop())
	sink := &countingSink{}
	producer := &fakeProducer{}
	policy := dispatch.NewPolicy(producer, "judge.tasks", zap.NewNop())

	svc, err := NewService(Config{PoolSize: 2, WorkDirRoot: t.TempDir()},
		subs, contests, attachments, registry, runner, policy, sink, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return &fixture{svc: svc, subs: subs, sub: sub, engine: engine, sink: sink, producer: producer}
}

const echoCSV = "1,1\n2,2\n3,3\n"

func TestJudgeAccepted(t *testing.T) {
	engine := &scriptEngine{script: []sandbox.ExecResult{
		{Stdout: "1\n"}, {Stdout: "2\n"}, {Stdout: "3\n"},
	}}
	f := newFixture(t, engine, echoCSV)

	if err := f.svc.Judge(context.Background(), f.sub.ID); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}

	got := f.subs.get(t, f.sub.ID)
	if got.Status != submission.StatusJudged || got.Answer != submission.AnswerAccepted {
		t.Fatalf("submission = %s/%s, want JUDGED/ACCEPTED", got.Status, got.Answer)
	}
	if len(f.subs.execs) != 1 {
		t.Fatalf("got %d executions, want 1", len(f.subs.execs))
	}
	exec := f.subs.execs[0]
	if exec.ApprovedTestCases != 3 || exec.TotalTestCases != 3 {
		t.Fatalf("execution counters = %d/%d, want 3/3", exec.ApprovedTestCases, exec.TotalTestCases)
	}
	if exec.Input.Key != "testcases.csv" {
		t.Fatalf("execution input = %+v, want the problem's test-case ref", exec.Input)
	}
	if len(f.sink.events) == 0 {
		t.Fatal("expected submission update notifications")
	}
}

func TestJudgeLostUpdateRaceRecordsNoExecution(t *testing.T) {
	engine := &scriptEngine{script: []sandbox.ExecResult{
		{Stdout: "1\n"}, {Stdout: "2\n"}, {Stdout: "3\n"},
	}}
	f := newFixture(t, engine, echoCSV)

	// A concurrent writer bumps the version between the verdict re-read
	// and the CAS write.
	f.subs.onUpdate = func(sub *submission.Submission) {
		if sub.Status == submission.StatusJudged {
			f.subs.setStatus(f.sub.ID, submission.StatusJudging)
		}
	}

	if err := f.svc.Judge(context.Background(), f.sub.ID); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	if len(f.subs.execs) != 0 {
		t.Fatal("a verdict that lost the update race must not record an execution")
	}
}

func TestJudgeStopsAtFirstFailure(t *testing.T) {
	engine := &scriptEngine{script: []sandbox.ExecResult{
		{Stdout: "1\n"}, {Stdout: "wrong\n"}, {Stdout: "3\n"},
	}}
	f := newFixture(t, engine, echoCSV)

	if err := f.svc.Judge(context.Background(), f.sub.ID); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}

	got := f.subs.get(t, f.sub.ID)
	if got.Answer != submission.AnswerWrongAnswer {
		t.Fatalf("answer = %s, want WRONG_ANSWER", got.Answer)
	}
	exec := f.subs.execs[0]
	if exec.ApprovedTestCases != 1 || exec.TotalTestCases != 3 {
		t.Fatalf("execution counters = %d/%d, want 1/3", exec.ApprovedTestCases, exec.TotalTestCases)
	}
	if engine.calls != 2 {
		t.Fatalf("engine ran %d times, want 2 (no execution past the failure)", engine.calls)
	}
}

func TestJudgeCompilationErrorShortCircuits(t *testing.T) {
	engine := &scriptEngine{script: []sandbox.ExecResult{
		{ExitCode: 1, Stderr: "main.cpp:1:1: error: expected unqualified-id"},
	}}
	f := newFixture(t, engine, echoCSV)

	// Switch the submission to a compiled language.
	sub := f.subs.get(t, f.sub.ID)
	sub.Language = submission.LanguageCPP17
	f.subs.subs[sub.ID] = sub

	if err := f.svc.Judge(context.Background(), f.sub.ID); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}

	got := f.subs.get(t, f.sub.ID)
	if got.Answer != submission.AnswerCompilationError {
		t.Fatalf("answer = %s, want COMPILATION_ERROR", got.Answer)
	}
	exec := f.subs.execs[0]
	if exec.ApprovedTestCases != 0 || exec.TotalTestCases != 3 {
		t.Fatalf("execution counters = %d/%d, want 0/3", exec.ApprovedTestCases, exec.TotalTestCases)
	}
	if engine.calls != 1 {
		t.Fatalf("engine ran %d times, want 1 (compile only)", engine.calls)
	}
}

func TestJudgeRejectsEmptyTestCaseFile(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, "")

	err := f.svc.Judge(context.Background(), f.sub.ID)
	if !errors.Is(err, errors.BusinessRule) {
		t.Fatalf("err = %v, want BusinessRule", err)
	}
	got := f.subs.get(t, f.sub.ID)
	if got.Status != submission.StatusQueued {
		t.Fatalf("status = %s, submission must stay QUEUED", got.Status)
	}
	if engine.calls != 0 {
		t.Fatal("sandbox must not run for a rejected test-case file")
	}
}

func TestJudgeUnknownLanguageFails(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, echoCSV)

	sub := f.subs.get(t, f.sub.ID)
	sub.Language = submission.Language("COBOL_74")
	f.subs.subs[sub.ID] = sub

	if err := f.svc.Judge(context.Background(), f.sub.ID); err != nil {
		t.Fatalf("Judge returned %v, want nil after parking as FAILED", err)
	}
	got := f.subs.get(t, f.sub.ID)
	if got.Status != submission.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
}

func TestJudgeProvisioningErrorLeavesJudging(t *testing.T) {
	engine := &scriptEngine{errs: []error{
		errors.New(errors.SandboxProvisioning).WithMessage("no daemon"),
	}}
	f := newFixture(t, engine, echoCSV)

	err := f.svc.Judge(context.Background(), f.sub.ID)
	if !errors.Is(err, errors.SandboxProvisioning) {
		t.Fatalf("err = %v, want SandboxProvisioning", err)
	}
	got := f.subs.get(t, f.sub.ID)
	if got.Status != submission.StatusJudging {
		t.Fatalf("status = %s, want JUDGING pending redelivery", got.Status)
	}
}

func TestJudgeDiscardsVerdictAfterManualOverride(t *testing.T) {
	engine := &scriptEngine{script: []sandbox.ExecResult{
		{Stdout: "1\n"}, {Stdout: "2\n"}, {Stdout: "3\n"},
	}}
	f := newFixture(t, engine, echoCSV)

	// A judge intervenes while the sandbox is running the last test.
	f.engine.onExec = func(call int) {
		if call == 2 {
			f.subs.setStatus(f.sub.ID, submission.StatusFailed)
		}
	}

	if err := f.svc.Judge(context.Background(), f.sub.ID); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	got := f.subs.get(t, f.sub.ID)
	if got.Status != submission.StatusFailed {
		t.Fatalf("status = %s, manual override must win", got.Status)
	}
	if len(f.subs.execs) != 0 {
		t.Fatal("discarded verdict must not record an execution")
	}
}

func TestJudgeSkipsAlreadyJudgedSubmission(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, echoCSV)
	f.subs.setStatus(f.sub.ID, submission.StatusJudged)

	if err := f.svc.Judge(context.Background(), f.sub.ID); err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	if engine.calls != 0 {
		t.Fatal("duplicate delivery must not re-run the sandbox")
	}
}

func TestHandleMessageAcksPoisonPayload(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, echoCSV)

	if err := f.svc.HandleMessage(context.Background(), mq.NewMessage([]byte("{not json"))); err != nil {
		t.Fatalf("HandleMessage returned %v, want nil ack", err)
	}
}

func TestHandleMessageRetryableErrorPropagates(t *testing.T) {
	engine := &scriptEngine{errs: []error{
		errors.New(errors.SandboxProvisioning).WithMessage("no daemon"),
	}}
	f := newFixture(t, engine, echoCSV)

	body, _ := json.Marshal(dispatch.Task{SubmissionID: f.sub.ID.String()})
	err := f.svc.HandleMessage(context.Background(), mq.NewMessage(body))
	if !errors.Is(err, errors.SandboxProvisioning) {
		t.Fatalf("err = %v, want SandboxProvisioning for redelivery", err)
	}
}

func TestHandleFailedMessageParksSubmission(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, echoCSV)

	body, _ := json.Marshal(dispatch.Task{SubmissionID: f.sub.ID.String()})
	if err := f.svc.HandleFailedMessage(context.Background(), mq.NewMessage(body)); err != nil {
		t.Fatalf("HandleFailedMessage failed: %v", err)
	}
	got := f.subs.get(t, f.sub.ID)
	if got.Status != submission.StatusFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
}

func TestHandleFailedMessageLeavesTerminalAlone(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, echoCSV)
	f.subs.setStatus(f.sub.ID, submission.StatusJudged)

	body, _ := json.Marshal(dispatch.Task{SubmissionID: f.sub.ID.String()})
	if err := f.svc.HandleFailedMessage(context.Background(), mq.NewMessage(body)); err != nil {
		t.Fatalf("HandleFailedMessage failed: %v", err)
	}
	got := f.subs.get(t, f.sub.ID)
	if got.Status != submission.StatusJudged {
		t.Fatalf("status = %s, terminal JUDGED must stay", got.Status)
	}
}

func TestRerunRequeuesAndDispatches(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, echoCSV)
	f.subs.setStatus(f.sub.ID, submission.StatusJudged)

	var hooks dispatch.Hooks
	sub, err := f.svc.Rerun(context.Background(), f.sub.ID, &hooks)
	if err != nil {
		t.Fatalf("Rerun failed: %v", err)
	}
	if sub.Status != submission.StatusQueued || sub.Answer != submission.AnswerNone {
		t.Fatalf("rerun left %s/%s, want QUEUED/NO_ANSWER", sub.Status, sub.Answer)
	}
	if len(f.producer.published) != 0 {
		t.Fatal("enqueue must wait for the commit hooks")
	}
	if err := hooks.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(f.producer.published) != 1 {
		t.Fatalf("published %d judge tasks, want 1", len(f.producer.published))
	}
}

func TestRerunRejectsJudgingSubmission(t *testing.T) {
	engine := &scriptEngine{}
	f := newFixture(t, engine, echoCSV)
	f.subs.setStatus(f.sub.ID, submission.StatusJudging)

	var hooks dispatch.Hooks
	_, err := f.svc.Rerun(context.Background(), f.sub.ID, &hooks)
	if !errors.Is(err, errors.InvalidStateTransition) {
		t.Fatalf("err = %v, want InvalidStateTransition", err)
	}
	if hooks.Len() != 0 {
		t.Fatal("rejected rerun must not queue a dispatch")
	}
}
