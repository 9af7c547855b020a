package power

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1")
	logindMethod = "org.freedesktop.login1.Manager.PowerOff"
)

// busCaller is the subset of dbus.BusObject used to reach logind.
type busCaller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// LogindAction powers off the host through systemd-logind.
type LogindAction struct {
	connect func(ctx context.Context) (busCaller, func() error, error)
}

// NewLogindAction creates an action bound to the system bus.
func NewLogindAction() *LogindAction {
	return &LogindAction{connect: connectSystemBus}
}

func connectSystemBus(ctx context.Context) (busCaller, func() error, error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, nil, err
	}
	return conn.Object(logindDest, logindPath), conn.Close, nil
}

// Shutdown calls Manager.PowerOff without the interactive flag, so polkit
// must already allow the caller (root always is).
func (a *LogindAction) Shutdown(ctx context.Context) error {
	obj, closeBus, err := a.connect(ctx)
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer func() { _ = closeBus() }()

	slog.Info("Requesting power off from logind")
	if call := obj.CallWithContext(ctx, logindMethod, 0, false); call.Err != nil {
		return fmt.Errorf("logind PowerOff: %w", call.Err)
	}
	return nil
}
