package executor

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestExecuteAllowedCommand(t *testing.T) {
	e := New()
	dir := t.TempDir()
	res := e.Execute(context.Background(), "echo hello", dir)
	if !res.Success {
		t.Fatalf("expected success, got error: %s", res.Error)
	}
	if strings.TrimSpace(res.Stdout) != "hello" {
		t.Errorf("expected stdout 'hello', got %q", res.Stdout)
	}
}

func TestExecuteDisallowedCommand(t *testing.T) {
	e := New()
	dir := t.TempDir()
	res := e.Execute(context.Background(), "rm -rf /", dir)
	if res.Success {
		t.Fatal("expected failure for disallowed command")
	}
	if !strings.Contains(res.Error, "rm") || !strings.Contains(res.Error, "not allowed") {
		t.Errorf("unexpected error message: %s", res.Error)
	}
}

func TestExecuteNonZeroExit(t *testing.T) {
	e := New()
	dir := t.TempDir()
	res := e.Execute(context.Background(), "grep nonexistent-pattern-xyz /dev/null", dir)
	if res.Success {
		t.Fatal("expected failure for non-zero exit")
	}
	if !strings.HasPrefix(res.Error, "Exit code:") {
		t.Errorf("expected 'Exit code:' error, got %q", res.Error)
	}
}

func TestExecuteWorkDirIsolation(t *testing.T) {
	e := New()
	dir := t.TempDir()
	res := e.Execute(context.Background(), "pwd", dir)
	if !res.Success {
		t.Fatalf("expected success, got %s", res.Error)
	}
	if strings.TrimSpace(res.Stdout) != dir {
		t.Errorf("expected pwd to report %s, got %s", dir, strings.TrimSpace(res.Stdout))
	}
}

func TestExecuteTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping slow timeout test in short mode")
	}
	orig := Timeout
	Timeout = 200 * time.Millisecond
	defer func() { Timeout = orig }()

	e := New()
	dir := t.TempDir()
	res := e.Execute(context.Background(), "curl --max-time 5 http://10.255.255.1/", dir)
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if res.Error != "Command timed out after 30 seconds" {
		t.Errorf("expected timeout message, got %q", res.Error)
	}
}

func TestExecuteSerializesAcrossCalls(t *testing.T) {
	e := New()
	dir := t.TempDir()

	start := time.Now()
	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			e.Execute(context.Background(), "echo hi", dir)
			done <- struct{}{}
		}()
	}
	<-done
	<-done
	if time.Since(start) > 5*time.Second {
		t.Fatal("commands took too long; executor may be deadlocked")
	}
}
