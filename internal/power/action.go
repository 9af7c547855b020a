// Package power powers the host off once the data cap is reached.
//
// Shutdown is destructive and irreversible, so it is modelled as an
// injectable Action: production wires a command or logind, tests wire a
// recorder.
package power

import (
	"context"
	"fmt"
	"log/slog"
)

// Method selects how the host is powered off.
type Method string

const (
	// MethodCommand runs an external command such as "systemctl poweroff".
	MethodCommand Method = "command"
	// MethodLogind asks systemd-logind over the system D-Bus.
	MethodLogind Method = "logind"
	// MethodNone only logs; the host keeps running.
	MethodNone Method = "none"
)

// DefaultCommand is the shutdown command used by MethodCommand.
const DefaultCommand = "systemctl poweroff"

// Action powers off the host. The caller never observes the outcome in the
// success case; an error means the request could not even be issued.
type Action interface {
	Shutdown(ctx context.Context) error
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context) error

// Shutdown calls f(ctx).
func (f ActionFunc) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// DryRunAction logs the shutdown instead of performing it.
type DryRunAction struct{}

// Shutdown logs and returns nil.
func (DryRunAction) Shutdown(context.Context) error {
	slog.Warn("Dry run: host shutdown skipped")
	return nil
}

// New returns the Action for method. command is only used by MethodCommand
// and defaults to DefaultCommand.
func New(method Method, command string) (Action, error) {
	switch method {
	case MethodCommand, "":
		if command == "" {
			command = DefaultCommand
		}
		return NewCommandAction(command, NewExecRunner())
	case MethodLogind:
		return NewLogindAction(), nil
	case MethodNone:
		return DryRunAction{}, nil
	default:
		return nil, fmt.Errorf("unknown shutdown method %q", method)
	}
}
