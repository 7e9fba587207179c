package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkamenev/toolgate/internal/model"
	"github.com/pkamenev/toolgate/internal/scope"
)

// ListProcesses reports running processes via ps.
type ListProcesses struct{}

func (ListProcesses) Capability() model.Capability { return model.CapListProcesses }

func (ListProcesses) Invoke(ctx context.Context, _ map[string]string) (string, error) {
	cmd := exec.CommandContext(ctx, "ps", "-eo", "pid,user,comm")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tools: list processes: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// AppLauncher starts an application by name. Injectable so tests do not
// spawn real processes.
type AppLauncher func(ctx context.Context, name string) error

// LaunchApp starts an allowlisted application.
type LaunchApp struct {
	Guard    *scope.Guard
	Launcher AppLauncher
}

func (LaunchApp) Capability() model.Capability { return model.CapLaunchApp }

func (t LaunchApp) Invoke(ctx context.Context, params map[string]string) (string, error) {
	name, err := requireParam(params, "app")
	if err != nil {
		return "", err
	}
	if err := t.Guard.CheckApp(name); err != nil {
		return "", err
	}

	launcher := t.Launcher
	if launcher == nil {
		launcher = defaultLauncher
	}
	if err := launcher(ctx, name); err != nil {
		return "", fmt.Errorf("tools: launch %q: %w", name, err)
	}
	return fmt.Sprintf("launched %s", name), nil
}

func defaultLauncher(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, name)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Detach: the application outlives the invocation.
	go cmd.Wait()
	return nil
}
