// Package config holds the static configuration of the guard.
package config

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shini4i/trafficguard/internal/monitor"
	"github.com/shini4i/trafficguard/internal/power"
	"github.com/shini4i/trafficguard/internal/quota"
	"github.com/shini4i/trafficguard/internal/schedule"
	"github.com/shini4i/trafficguard/internal/stats"
)

const (
	// AppName is the application identifier used for the env prefix and logs.
	AppName = "trafficguard"

	// SourceProcfs reads counters from a /proc/net/dev formatted table.
	SourceProcfs = "procfs"
	// SourceGopsutil reads counters through gopsutil.
	SourceGopsutil = "gopsutil"

	// DefaultInterface is the interface watched when none is configured.
	DefaultInterface = "eth0"
	// DefaultResetAt is the daily reset time when none is configured.
	DefaultResetAt = "00:00"
)

// ByteSize is a byte count that accepts human units ("50MB", "1.5GiB") when
// parsed from text. Decimal units are powers of 1000, binary units of 1024.
type ByteSize uint64

// UnmarshalText parses a size such as "1024", "500 KB" or "2GiB".
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", string(text), err)
	}
	*b = ByteSize(n)
	return nil
}

// String formats the size with binary units.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Config represents the guard configuration. All sizes are in bytes.
type Config struct {
	Interface     string
	Source        string
	ProcNetDev    string
	Interval      time.Duration
	SampleTimeout time.Duration

	Cap            ByteSize
	ResetAt        string
	ResetTolerance time.Duration

	StorePath string

	ShutdownMethod  power.Method
	ShutdownCommand string
	DryRun          bool

	MetricsFile string
}

// DefaultConfig returns a configuration with sensible defaults. Cap has no
// default: it must always be chosen explicitly.
func DefaultConfig() *Config {
	return &Config{
		Interface:       DefaultInterface,
		Source:          SourceProcfs,
		ProcNetDev:      stats.DefaultProcNetDev,
		Interval:        monitor.DefaultInterval,
		SampleTimeout:   monitor.DefaultSampleTimeout,
		ResetAt:         DefaultResetAt,
		ResetTolerance:  schedule.DefaultTolerance,
		StorePath:       quota.DefaultPath,
		ShutdownMethod:  power.MethodCommand,
		ShutdownCommand: power.DefaultCommand,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface must not be empty")
	}
	switch c.Source {
	case SourceProcfs, SourceGopsutil:
	default:
		return fmt.Errorf("source must be %q or %q, got %q", SourceProcfs, SourceGopsutil, c.Source)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.SampleTimeout < 0 {
		return fmt.Errorf("sample timeout must be non-negative")
	}
	if c.Cap == 0 {
		return fmt.Errorf("cap must be greater than zero")
	}
	if c.ResetTolerance <= 0 {
		return fmt.Errorf("reset tolerance must be positive")
	}
	if c.ResetTolerance >= 60*time.Second {
		return fmt.Errorf("reset tolerance must be shorter than a minute")
	}
	if c.ResetAt != "" {
		if _, err := schedule.Parse(c.ResetAt, c.ResetTolerance); err != nil {
			return err
		}
	}
	if c.StorePath == "" {
		return fmt.Errorf("store path must not be empty")
	}
	switch c.ShutdownMethod {
	case power.MethodCommand:
		if c.ShutdownCommand == "" {
			return fmt.Errorf("shutdown command must not be empty")
		}
	case power.MethodLogind, power.MethodNone:
	default:
		return fmt.Errorf("unknown shutdown method %q", c.ShutdownMethod)
	}
	return nil
}

// EffectiveSampleTimeout clamps the sample timeout to the poll interval so a
// slow read never delays the next tick.
func (c *Config) EffectiveSampleTimeout() time.Duration {
	if c.SampleTimeout == 0 || c.SampleTimeout > c.Interval {
		return c.Interval
	}
	return c.SampleTimeout
}

// MonitorConfig returns the accumulator loop parameters.
func (c *Config) MonitorConfig() monitor.Config {
	return monitor.Config{
		Interval:      c.Interval,
		Cap:           uint64(c.Cap),
		SampleTimeout: c.EffectiveSampleTimeout(),
	}
}

// ResetWindow parses the reset schedule. It returns nil when resets are
// disabled (empty ResetAt).
func (c *Config) ResetWindow() (*schedule.Window, error) {
	if c.ResetAt == "" {
		return nil, nil
	}
	return schedule.Parse(c.ResetAt, c.ResetTolerance)
}

// NewSampler returns the sampler for the configured source.
func (c *Config) NewSampler() stats.Sampler {
	if c.Source == SourceGopsutil {
		return stats.NewPsutilSampler(c.Interface)
	}
	return stats.NewProcNetDevSampler(c.ProcNetDev, c.Interface)
}

// NewAction returns the shutdown action, or a dry run when DryRun is set.
func (c *Config) NewAction() (power.Action, error) {
	if c.DryRun {
		return power.DryRunAction{}, nil
	}
	return power.New(c.ShutdownMethod, c.ShutdownCommand)
}
