package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Result captures a finished process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner starts external processes. ExecRunner is the real implementation;
// tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs processes with os/exec. A positive Timeout kills the
// process when exceeded.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: cmd.ProcessState.ExitCode()}
	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return res, fmt.Errorf("%s: %w", name, err)
	}
	return res, nil
}

// Available reports whether bin resolves on PATH.
func Available(bin string) bool {
	_, err := exec.LookPath(bin)
	return err == nil
}
