package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gavel/pkg/errors"
)

const (
	// startupGrace pads the wall-clock deadline so container startup
	// time is not charged against the solution.
	startupGrace = 3 * time.Second

	// dockerDaemonError is the docker CLI exit code for daemon-side
	// failures (bad image, dead daemon), as opposed to the judged
	// program's own exit code.
	dockerDaemonError = 125
)

// DockerConfig tunes the docker engine.
type DockerConfig struct {
	// Binary is the docker CLI path. Defaults to "docker".
	Binary string

	// ContainerWorkDir is where the submission workspace is mounted.
	ContainerWorkDir string

	// MaxOutputBytes caps captured stdout/stderr per execution.
	MaxOutputBytes int64

	// DefaultMemoryLimitMB applies when a spec carries no limit.
	DefaultMemoryLimitMB int64

	// PidsLimit caps processes inside the container.
	PidsLimit int
}

func (c *DockerConfig) applyDefaults() {
	if c.Binary == "" {
		c.Binary = "docker"
	}
	if c.ContainerWorkDir == "" {
		c.ContainerWorkDir = "/sandbox"
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = 1 << 20
	}
	if c.DefaultMemoryLimitMB <= 0 {
		c.DefaultMemoryLimitMB = 512
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 128
	}
}

// DockerEngine runs each execution in a fresh container via the docker
// CLI. Containers get no network and a hard memory cap; the workspace
// directory is the only shared state between executions.
type DockerEngine struct {
	cfg    DockerConfig
	logger *zap.Logger
}

func NewDockerEngine(cfg DockerConfig, logger *zap.Logger) *DockerEngine {
	cfg.applyDefaults()
	return &DockerEngine{cfg: cfg, logger: logger}
}

func (e *DockerEngine) Exec(ctx context.Context, spec ExecSpec) (ExecResult, error) {
	if spec.Image == "" || len(spec.Argv) == 0 {
		return ExecResult{}, errors.New(errors.InvalidParams).
			WithMessage("exec spec needs an image and an argv")
	}

	name := "judge-" + uuid.NewString()
	memMB := spec.MemoryLimitMB
	if memMB <= 0 {
		memMB = e.cfg.DefaultMemoryLimitMB
	}

	args := []string{
		"run", "--name", name, "-i",
		"--network", "none",
		"--memory", fmt.Sprintf("%dm", memMB),
		"--memory-swap", fmt.Sprintf("%dm", memMB),
		"--pids-limit", fmt.Sprintf("%d", e.cfg.PidsLimit),
		"-v", spec.WorkDir + ":" + e.cfg.ContainerWorkDir,
		"-w", e.cfg.ContainerWorkDir,
		spec.Image,
	}
	args = append(args, spec.Argv...)

	runCtx := ctx
	if spec.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.TimeLimit+startupGrace)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.cfg.Binary, args...)
	cmd.Stdin = strings.NewReader(spec.Stdin)
	stdout := newLimitedBuffer(e.cfg.MaxOutputBytes)
	stderr := newLimitedBuffer(e.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	defer e.remove(name)

	result := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return ExecResult{}, errors.Wrapf(err, errors.SandboxProvisioning,
				"start container for image %s", spec.Image)
		}
		result.ExitCode = exitErr.ExitCode()
		if result.ExitCode == dockerDaemonError {
			return ExecResult{}, errors.Newf(errors.SandboxProvisioning,
				"container failed to start: %s", strings.TrimSpace(result.Stderr))
		}
	}

	result.OOMKilled = e.inspectOOMKilled(name)
	return result, nil
}

// inspectOOMKilled asks the daemon whether the kernel OOM killer
// terminated the container. Inspection failures are logged and treated
// as not OOM-killed.
func (e *DockerEngine) inspectOOMKilled(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, e.cfg.Binary, "inspect", "-f", "{{.State.OOMKilled}}", name)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		e.logger.Warn("container inspect failed",
			zap.String("container", name), zap.Error(err))
		return false
	}
	return strings.TrimSpace(out.String()) == "true"
}

func (e *DockerEngine) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := exec.CommandContext(ctx, e.cfg.Binary, "rm", "-f", name).Run(); err != nil {
		e.logger.Warn("container cleanup failed",
			zap.String("container", name), zap.Error(err))
	}
}

// limitedBuffer keeps the first n bytes and silently drops the rest, so
// an output flood cannot exhaust judge memory.
type limitedBuffer struct {
	buf bytes.Buffer
	max int64
}

func newLimitedBuffer(max int64) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
