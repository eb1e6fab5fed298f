package sandbox

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"gavel/internal/judge/language"
	"gavel/internal/testcase"
)

// RunnerOptions tunes verdict classification.
type RunnerOptions struct {
	// CompileTimeLimit bounds the compile step. Compilation is not
	// charged against the problem's time limit.
	CompileTimeLimit time.Duration

	// MaxStderrBytes truncates stderr kept on runtime and compile
	// errors.
	MaxStderrBytes int

	// ExactMatch disables the default whitespace-tolerant output
	// comparison.
	ExactMatch bool
}

func (o *RunnerOptions) applyDefaults() {
	if o.CompileTimeLimit <= 0 {
		o.CompileTimeLimit = 60 * time.Second
	}
	if o.MaxStderrBytes <= 0 {
		o.MaxStderrBytes = 8 << 10
	}
}

// Runner judges individual test cases on top of an Engine. It holds no
// per-submission state: the caller owns the workspace directory and the
// compile-once-then-run loop.
type Runner struct {
	engine Engine
	opts   RunnerOptions
	logger *zap.Logger
}

func NewRunner(engine Engine, opts RunnerOptions, logger *zap.Logger) *Runner {
	opts.applyDefaults()
	return &Runner{engine: engine, opts: opts, logger: logger}
}

// CompileResult reports the compile step. A failed compile is a verdict
// about the submission, not an error.
type CompileResult struct {
	OK     bool
	Stderr string
}

// Compile runs the language's compile command once in the workspace.
// Languages without a compile step succeed trivially.
func (r *Runner) Compile(ctx context.Context, cfg language.RunnerConfig, workDir string) (CompileResult, error) {
	if !cfg.NeedsCompilation() {
		return CompileResult{OK: true}, nil
	}

	res, err := r.engine.Exec(ctx, ExecSpec{
		Image:     cfg.Image,
		Argv:      cfg.CompileCommand(),
		WorkDir:   workDir,
		TimeLimit: r.opts.CompileTimeLimit,
	})
	if err != nil {
		return CompileResult{}, err
	}
	if res.TimedOut || res.ExitCode != 0 {
		stderr := res.Stderr
		if res.TimedOut {
			stderr = "compilation timed out"
		}
		r.logger.Debug("compilation failed",
			zap.String("image", cfg.Image),
			zap.Int("exit_code", res.ExitCode))
		return CompileResult{OK: false, Stderr: r.truncate(stderr)}, nil
	}
	return CompileResult{OK: true}, nil
}

// RunTestCase executes the solution against one test case in a fresh
// container and classifies the outcome. Exceeding the time limit wins
// over exceeding the memory limit when both apply.
func (r *Runner) RunTestCase(ctx context.Context, cfg language.RunnerConfig, workDir string,
	tc testcase.TestCase, timeLimit time.Duration, memoryLimitMB int64) (TestCaseResult, error) {

	res, err := r.engine.Exec(ctx, ExecSpec{
		Image:         cfg.Image,
		Argv:          cfg.RunCommand(memoryLimitMB),
		WorkDir:       workDir,
		Stdin:         terminated(tc.Input),
		TimeLimit:     timeLimit,
		MemoryLimitMB: memoryLimitMB,
	})
	if err != nil {
		return TestCaseResult{}, err
	}

	switch {
	case res.TimedOut:
		return TestCaseResult{Classification: ClassTimeLimitExceeded}, nil
	case res.OOMKilled:
		return TestCaseResult{Classification: ClassMemoryLimitExceeded}, nil
	case res.ExitCode != 0:
		return TestCaseResult{
			Classification: ClassRuntimeError,
			ExitCode:       res.ExitCode,
			Stderr:         r.truncate(res.Stderr),
		}, nil
	}

	if r.outputMatches(res.Stdout, tc.Expected) {
		return TestCaseResult{Classification: ClassPassed, Output: res.Stdout}, nil
	}
	return TestCaseResult{
		Classification: ClassWrongOutput,
		Output:         res.Stdout,
		Expected:       tc.Expected,
	}, nil
}

func (r *Runner) outputMatches(actual, expected string) bool {
	if r.opts.ExactMatch {
		return actual == expected
	}
	return canonical(actual) == canonical(expected)
}

// canonical normalizes output for comparison: trailing whitespace on
// each line and trailing blank lines are ignored, interior structure is
// not.
func canonical(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := strings.Join(lines, "\n")
	return strings.TrimRight(out, "\n")
}

func (r *Runner) truncate(s string) string {
	if len(s) <= r.opts.MaxStderrBytes {
		return s
	}
	return s[:r.opts.MaxStderrBytes] + "\n... [truncated]"
}

// terminated makes sure nonempty stdin ends with a newline so
// line-oriented readers see their last token.
func terminated(input string) string {
	if input != "" && !strings.HasSuffix(input, "\n") {
		return input + "\n"
	}
	return input
}
