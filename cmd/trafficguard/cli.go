package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shini4i/trafficguard/internal/config"
	"github.com/shini4i/trafficguard/internal/fileutil"
	"github.com/shini4i/trafficguard/internal/logging"
	"github.com/shini4i/trafficguard/internal/metrics"
	"github.com/shini4i/trafficguard/internal/monitor"
	"github.com/shini4i/trafficguard/internal/power"
	"github.com/shini4i/trafficguard/internal/quota"
	"github.com/shini4i/trafficguard/internal/schedule"
	"github.com/shini4i/trafficguard/internal/sdnotify"
)

const envPrefix = "TRAFFICGUARD_"

// CLI represents the command-line interface structure.
type CLI struct {
	Globals

	Version kong.VersionFlag `help:"Show version and exit"`
	EnvFile string           `help:"Load TRAFFICGUARD_* variables from a KEY=VALUE file" type:"existingfile" env:"TRAFFICGUARD_ENV_FILE"`

	Run    RunCmd    `cmd:"" help:"Watch the interface and power off at the cap (default)" default:"1"`
	Status StatusCmd `cmd:"" help:"Show the persisted usage against the cap"`
	Reset  ResetCmd  `cmd:"" help:"Zero the persisted usage total"`
}

// Globals holds flags shared by every command.
type Globals struct {
	LogLevel  string         `help:"Log level (debug, info, warn, error)" default:"info" env:"TRAFFICGUARD_LOG_LEVEL"`
	LogFormat logging.Format `help:"Log format" enum:"text,json" default:"text" env:"TRAFFICGUARD_LOG_FORMAT"`
	Store     string         `help:"Path of the persisted usage total" default:"/var/lib/trafficguard/usage" env:"TRAFFICGUARD_STORE" type:"path"`

	out io.Writer `kong:"-"`
}

// AfterApply initializes logging once flags are parsed.
func (c *CLI) AfterApply() error {
	logger, err := logging.Setup(logging.Options{Level: c.LogLevel, Format: c.LogFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger.With("run_id", uuid.NewString()))
	return nil
}

func (g *Globals) stdout() io.Writer {
	if g.out == nil {
		return os.Stdout
	}
	return g.out
}

// RunCmd is the long-running guard.
type RunCmd struct {
	Interface     string        `help:"Network interface to meter" short:"i" default:"eth0" env:"TRAFFICGUARD_INTERFACE"`
	Source        string        `help:"Counter source" enum:"procfs,gopsutil" default:"procfs" env:"TRAFFICGUARD_SOURCE"`
	ProcNetDev    string        `help:"Interface statistics table for the procfs source" default:"/proc/net/dev" env:"TRAFFICGUARD_PROC_NET_DEV"`
	Interval      time.Duration `help:"Time between polls" default:"3s" env:"TRAFFICGUARD_INTERVAL"`
	SampleTimeout time.Duration `help:"Upper bound for one counter read" default:"2s" env:"TRAFFICGUARD_SAMPLE_TIMEOUT"`

	Cap            config.ByteSize `help:"Data cap, e.g. 50GB or 1TiB (plain numbers are bytes)" required:"" env:"TRAFFICGUARD_CAP"`
	ResetAt        string          `help:"Daily reset time HH:MM, or a 5-field cron expression; empty disables resets" default:"00:00" env:"TRAFFICGUARD_RESET_AT"`
	ResetTolerance time.Duration   `help:"How long after the reset time a poll still resets" default:"10s" env:"TRAFFICGUARD_RESET_TOLERANCE"`

	ShutdownMethod  power.Method `help:"How to power off" enum:"command,logind,none" default:"command" env:"TRAFFICGUARD_SHUTDOWN_METHOD"`
	ShutdownCommand string       `help:"Command run by the command method" default:"systemctl poweroff" env:"TRAFFICGUARD_SHUTDOWN_COMMAND"`
	DryRun          bool         `help:"Log instead of powering off" env:"TRAFFICGUARD_DRY_RUN"`

	MetricsFile string `help:"Write Prometheus metrics to this file after every poll" env:"TRAFFICGUARD_METRICS_FILE" type:"path"`
}

func (r *RunCmd) config(g *Globals) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Interface = r.Interface
	cfg.Source = r.Source
	cfg.ProcNetDev = r.ProcNetDev
	cfg.Interval = r.Interval
	cfg.SampleTimeout = r.SampleTimeout
	cfg.Cap = r.Cap
	cfg.ResetAt = r.ResetAt
	cfg.ResetTolerance = r.ResetTolerance
	cfg.StorePath = g.Store
	cfg.ShutdownMethod = r.ShutdownMethod
	cfg.ShutdownCommand = r.ShutdownCommand
	cfg.DryRun = r.DryRun
	cfg.MetricsFile = r.MetricsFile
	return cfg
}

// Run starts the guard and blocks until a signal, the cap or a fatal error.
func (r *RunCmd) Run(g *Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return r.run(ctx, g, nil)
}

// run wires the guard. A non-nil action replaces the configured one.
func (r *RunCmd) run(ctx context.Context, g *Globals, action power.Action) error {
	cfg := r.config(g)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	window, err := cfg.ResetWindow()
	if err != nil {
		return err
	}
	if action == nil {
		if action, err = cfg.NewAction(); err != nil {
			return err
		}
	}

	store := quota.NewFileStore(cfg.StorePath)
	if err := os.MkdirAll(filepath.Dir(store.Path()), 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	lock, err := store.Lock()
	if err != nil {
		if errors.Is(err, fileutil.ErrLocked) {
			return fmt.Errorf("another instance is using %s: %w", store.Path(), err)
		}
		return err
	}
	defer func() { _ = lock.Unlock() }()

	m := metrics.New(cfg.MetricsFile, cfg.Interface, uint64(cfg.Cap))
	mon := monitor.New(cfg.MonitorConfig(), cfg.NewSampler(), store, action,
		monitor.WithResetWindow(window),
		monitor.WithObserver(m))

	slog.Info("Starting trafficguard",
		"version", version,
		"interface", cfg.Interface,
		"source", cfg.Source,
		"cap", cfg.Cap.String(),
		"reset_at", cfg.ResetAt,
		"store", store.Path(),
		"dry_run", cfg.DryRun)

	if err := mon.Init(ctx); err != nil {
		return err
	}
	sdnotify.NotifyOrWarn(sdnotify.Ready)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return sdnotify.RunWatchdog(groupCtx) })
	group.Go(func() error { return mon.Loop(groupCtx) })

	err = group.Wait()
	sdnotify.NotifyOrWarn(sdnotify.Stopping)
	if flushErr := m.Flush(); flushErr != nil {
		slog.Warn("Failed to write metrics textfile", "error", flushErr)
	}

	// A joined error means the shutdown action itself failed.
	if err == monitor.ErrCapReached {
		slog.Info("Shutdown issued, exiting")
		return nil
	}
	return err
}

// StatusCmd prints the persisted usage. It takes no lock and is safe to run
// next to the guard.
type StatusCmd struct {
	Cap     config.ByteSize `help:"Data cap to compare against" env:"TRAFFICGUARD_CAP"`
	ResetAt string          `help:"Reset schedule used to print the next reset" default:"00:00" env:"TRAFFICGUARD_RESET_AT"`

	now func() time.Time `kong:"-"`
}

// Run prints the status report.
func (s *StatusCmd) Run(g *Globals) error {
	store := quota.NewFileStore(g.Store)
	total, err := store.Load()
	if err != nil && !errors.Is(err, quota.ErrCorrupt) {
		return err
	}

	now := time.Now
	if s.now != nil {
		now = s.now
	}

	out := g.stdout()
	fmt.Fprintf(out, "store:      %s\n", store.Path())
	if errors.Is(err, quota.ErrCorrupt) {
		fmt.Fprintf(out, "used:       invalid value, counted as 0\n")
	} else {
		fmt.Fprintf(out, "used:       %s (%d bytes)\n", humanize.IBytes(total), total)
	}

	if s.Cap > 0 {
		capBytes := uint64(s.Cap)
		remaining := uint64(0)
		if total < capBytes {
			remaining = capBytes - total
		}
		fmt.Fprintf(out, "cap:        %s (%.1f%% used)\n", s.Cap, 100*float64(total)/float64(capBytes))
		fmt.Fprintf(out, "remaining:  %s\n", humanize.IBytes(remaining))
	}

	if s.ResetAt != "" {
		window, err := schedule.Parse(s.ResetAt, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "next reset: %s\n", window.Next(now()).Format(time.RFC3339))
	}
	return nil
}

// ResetCmd zeroes the persisted total. It refuses while the guard runs,
// since the guard would overwrite the store on its next poll.
type ResetCmd struct{}

// Run resets the store.
func (r *ResetCmd) Run(g *Globals) error {
	store := quota.NewFileStore(g.Store)
	lock, err := store.Lock()
	if err != nil {
		if errors.Is(err, fileutil.ErrLocked) {
			return fmt.Errorf("trafficguard is running; stop it before resetting: %w", err)
		}
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if err := store.Save(0); err != nil {
		return err
	}
	slog.Info("Usage total reset", "store", store.Path())
	fmt.Fprintf(g.stdout(), "usage reset to 0 in %s\n", store.Path())
	return nil
}
