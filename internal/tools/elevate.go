package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkamenev/toolgate/internal/model"
	"github.com/pkamenev/toolgate/internal/scope"
)

// ElevationRunner executes a command with elevated privileges and
// returns its combined output and exit code. Injectable so tests never
// touch sudo.
type ElevationRunner interface {
	RunElevated(ctx context.Context, command string) (output string, exitCode int, err error)
}

// Elevate runs a command with elevated privileges. The scope guard
// screens the command before anything executes; a blocked pattern
// refuses the invocation outright, confirmation or not.
type Elevate struct {
	Guard  *scope.Guard
	Runner ElevationRunner
}

func (Elevate) Capability() model.Capability { return model.CapElevate }

func (t Elevate) Invoke(ctx context.Context, params map[string]string) (string, error) {
	command, err := requireParam(params, "command")
	if err != nil {
		return "", err
	}
	if err := t.Guard.CheckElevation(command); err != nil {
		return "", err
	}

	runner := t.Runner
	if runner == nil {
		runner = sudoRunner{}
	}
	output, exitCode, err := runner.RunElevated(ctx, command)
	if err != nil {
		return "", fmt.Errorf("tools: elevated command: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("tools: elevated command exited %d: %s", exitCode, strings.TrimSpace(output))
	}
	return output, nil
}

type sudoRunner struct{}

func (sudoRunner) RunElevated(ctx context.Context, command string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "sudo", "--non-interactive", "sh", "-c", command)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				exitCode = status.ExitStatus()
			}
		} else {
			return "", 0, err
		}
	}
	return out.String(), exitCode, nil
}
