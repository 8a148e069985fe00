// Package executor runs whitelisted shell commands for a session's tool
// calls, one at a time across the whole process.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
)

// Timeout is the wall-clock budget for a single command. A var, not a
// const, so tests can shrink it.
var Timeout = 30 * time.Second

// allowed lists the base commands the Executor will run, per the
// whitelist in the spec.
var allowed = map[string]bool{
	"ls": true, "pwd": true, "whoami": true, "cat": true, "id": true,
	"uname": true, "hostname": true, "date": true, "uptime": true,
	"dig": true, "curl": true, "head": true, "tail": true, "wc": true,
	"grep": true, "echo": true, "env": true, "pandoc": true,
	"mkdir": true, "mktemp": true,
}

// allowedList is the whitelist rendered for error messages, in a stable
// order.
var allowedList = "ls pwd whoami cat id uname hostname date uptime dig curl head tail wc grep echo env pandoc mkdir mktemp"

// Result is the outcome of running one command.
type Result struct {
	Success bool
	Stdout  string
	Stderr  string
	Error   string
}

// Executor serializes command execution host-wide: exactly one command
// runs at a time across all sessions, matching the teacher's
// gateway.Queue semaphore-gated concurrency limiter generalized to a
// weight of one.
type Executor struct {
	sem *semaphore.Weighted
}

// New creates an Executor that runs at most one command at a time.
func New() *Executor {
	return &Executor{sem: semaphore.NewWeighted(1)}
}

// Execute validates command against the whitelist, then runs it under
// sh -c with workDir as its working directory, enforcing Timeout and
// killing the whole process group if it's exceeded.
func (e *Executor) Execute(ctx context.Context, command, workDir string) Result {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Result{Success: false, Error: "Command '' is not allowed. Allowed: " + allowedList}
	}

	fields := strings.Fields(trimmed)
	base := fields[0]
	if !allowed[base] {
		return Result{Success: false, Error: fmt.Sprintf("Command '%s' is not allowed. Allowed: %s", base, allowedList)}
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("Command could not be scheduled: %v", err)}
	}
	defer e.sem.Release(1)

	return run(trimmed, workDir)
}

func run(command, workDir string) Result {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to start command: %v", err)}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			return Result{Success: true, Stdout: stdout.String()}
		}
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok {
			return Result{
				Success: false,
				Stdout:  stdout.String(),
				Stderr:  stderr.String(),
				Error:   fmt.Sprintf("Exit code: %d", exitErr.ExitCode()),
			}
		}
		return Result{Success: false, Stdout: stdout.String(), Stderr: stderr.String(), Error: err.Error()}

	case <-time.After(Timeout):
		// Kill the whole process group, not just the leader, so
		// children spawned by the shell don't outlive the timeout.
		syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		<-done
		return Result{Success: false, Error: "Command timed out after 30 seconds"}
	}
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}
