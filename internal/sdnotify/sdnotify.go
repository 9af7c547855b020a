// Package sdnotify implements the small subset of the systemd notify
// protocol the guard needs: readiness, stopping and watchdog pings.
package sdnotify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"
)

// Notification states understood by systemd.
const (
	Ready    = "READY=1"
	Stopping = "STOPPING=1"
	Watchdog = "WATCHDOG=1"
)

// Notify sends state to the socket named by $NOTIFY_SOCKET.
// It returns false without error when not running under systemd.
func Notify(state string) (bool, error) {
	socketPath := os.Getenv("NOTIFY_SOCKET")
	if socketPath == "" {
		return false, nil
	}

	// A leading '@' (abstract namespace) is handled by the net package.
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: socketPath, Net: "unixgram"})
	if err != nil {
		return false, fmt.Errorf("dial notify socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write([]byte(state)); err != nil {
		return false, fmt.Errorf("write notify socket: %w", err)
	}
	return true, nil
}

// NotifyOrWarn sends state and logs instead of returning failures.
func NotifyOrWarn(state string) {
	if _, err := Notify(state); err != nil {
		slog.Warn("Failed to notify systemd", "state", state, "error", err)
	}
}

// WatchdogInterval returns half of $WATCHDOG_USEC, the recommended ping
// period, or 0 when the watchdog is disabled.
func WatchdogInterval() (time.Duration, error) {
	raw := os.Getenv("WATCHDOG_USEC")
	if raw == "" {
		return 0, nil
	}
	if pid := os.Getenv("WATCHDOG_PID"); pid != "" && pid != strconv.Itoa(os.Getpid()) {
		return 0, nil
	}

	usec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || usec <= 0 {
		return 0, fmt.Errorf("invalid WATCHDOG_USEC %q", raw)
	}
	return time.Duration(usec) * time.Microsecond / 2, nil
}

// RunWatchdog pings the watchdog until ctx is done. It returns immediately
// when the watchdog is disabled.
func RunWatchdog(ctx context.Context) error {
	interval, err := WatchdogInterval()
	if err != nil {
		slog.Warn("Watchdog disabled", "error", err)
		return nil
	}
	if interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			NotifyOrWarn(Watchdog)
		}
	}
}
