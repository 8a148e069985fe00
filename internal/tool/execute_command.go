package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/user/chatd/internal/executor"
)

// ExecuteCommand wraps an executor.Executor as a Tool, generalizing the
// teacher's single bash tool to the whitelisted command runner.
type ExecuteCommand struct {
	exec    *executor.Executor
	workDir string
}

// NewExecuteCommand creates the execute_command tool. Commands run with
// workDir as their current directory.
func NewExecuteCommand(exec *executor.Executor, workDir string) *ExecuteCommand {
	return &ExecuteCommand{exec: exec, workDir: workDir}
}

func (c *ExecuteCommand) Name() string { return "execute_command" }

func (c *ExecuteCommand) Description() string {
	return "Run a whitelisted shell command on the host and return its stdout, stderr, and exit status."
}

func (c *ExecuteCommand) Parameters() []byte {
	return []byte(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "The command line to execute"}
		},
		"required": ["command"]
	}`)
}

type executeCommandArgs struct {
	Command string `json:"command"`
}

type executeCommandResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (c *ExecuteCommand) Execute(ctx context.Context, argumentsJSON string) (string, error) {
	var args executeCommandArgs
	if err := json.Unmarshal([]byte(argumentsJSON), &args); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if args.Command == "" {
		return "", fmt.Errorf("command is required")
	}

	res := c.exec.Execute(ctx, args.Command, c.workDir)
	out, err := json.Marshal(executeCommandResult{
		Success: res.Success,
		Stdout:  res.Stdout,
		Stderr:  res.Stderr,
		Error:   res.Error,
	})
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(out), nil
}
