package power

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner runs an external command to completion.
type Runner interface {
	// Run executes name with args and returns an error carrying its output
	// if it exits unsuccessfully.
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner implements Runner using os/exec.
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the command and captures its output for error reporting.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) // #nosec G204 -- operator-configured shutdown command
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if output := strings.TrimSpace(out.String()); output != "" {
			return fmt.Errorf("%s: %w: %s", name, err, output)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// CommandAction powers off the host by running a command.
type CommandAction struct {
	name   string
	args   []string
	runner Runner
}

// NewCommandAction splits command on whitespace and binds it to runner.
func NewCommandAction(command string, runner Runner) (*CommandAction, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("shutdown command must not be empty")
	}
	return &CommandAction{
		name:   fields[0],
		args:   fields[1:],
		runner: runner,
	}, nil
}

// Shutdown runs the command.
func (a *CommandAction) Shutdown(ctx context.Context) error {
	slog.Info("Running shutdown command", "command", a.name, "args", a.args)
	if err := a.runner.Run(ctx, a.name, a.args...); err != nil {
		return fmt.Errorf("shutdown command failed: %w", err)
	}
	return nil
}
