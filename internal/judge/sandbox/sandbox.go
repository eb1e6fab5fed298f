// Package sandbox executes untrusted solution code in isolated
// containers and classifies the outcome of each test case.
package sandbox

import (
	"context"
	"time"
)

// ExecSpec describes one isolated command execution.
type ExecSpec struct {
	Image string
	Argv  []string

	// WorkDir is a host directory mounted read-write at /sandbox and
	// used as the working directory. Compile artifacts written there
	// survive into later executions for the same submission.
	WorkDir string

	Stdin string

	// TimeLimit bounds wall-clock time. Zero means no limit (used for
	// compilation, which gets a fixed generous limit from the runner).
	TimeLimit time.Duration

	// MemoryLimitMB caps container memory. Zero means engine default.
	MemoryLimitMB int64
}

// ExecResult is the raw outcome of one execution, before any verdict
// classification.
type ExecResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
	OOMKilled bool
	Duration  time.Duration
}

// Engine runs a single command in a fresh isolated instance. Engine
// errors mean the sandbox itself could not be provisioned or observed;
// failures of the judged program are reported through ExecResult.
type Engine interface {
	Exec(ctx context.Context, spec ExecSpec) (ExecResult, error)
}
