// Package monitor implements the accumulator loop: it polls the interface
// sampler, folds traffic deltas into the persisted usage total, applies the
// periodic reset and powers the host off once the cap is reached.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/shini4i/trafficguard/internal/power"
	"github.com/shini4i/trafficguard/internal/quota"
	"github.com/shini4i/trafficguard/internal/schedule"
	"github.com/shini4i/trafficguard/internal/stats"
)

const (
	// DefaultInterval is the default time between polls.
	DefaultInterval = 3 * time.Second

	// DefaultSampleTimeout bounds a single counter read.
	DefaultSampleTimeout = 2 * time.Second
)

// ErrCapReached is returned by Step and Run once the total reached the cap
// and the shutdown action has been issued. The loop never continues after it.
var ErrCapReached = errors.New("data cap reached")

// Observer receives loop events, typically for metrics.
type Observer interface {
	ObserveSample(s stats.Sample)
	ObserveRewind()
	ObserveReset()
	ObserveStoreError()
	// ObserveTotal is called once at the end of every iteration.
	ObserveTotal(total uint64)
}

type nopObserver struct{}

func (nopObserver) ObserveSample(stats.Sample) {}
func (nopObserver) ObserveRewind()             {}
func (nopObserver) ObserveReset()              {}
func (nopObserver) ObserveStoreError()         {}
func (nopObserver) ObserveTotal(uint64)        {}

// Config holds the loop parameters.
type Config struct {
	// Interval is the time between polls.
	Interval time.Duration
	// Cap is the usage, in bytes, at which the host is powered off.
	Cap uint64
	// SampleTimeout bounds each sampler call. Zero disables the bound.
	SampleTimeout time.Duration
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithResetWindow enables the periodic reset.
func WithResetWindow(w *schedule.Window) Option {
	return func(m *Monitor) { m.reset = w }
}

// WithObserver registers an observer for loop events.
func WithObserver(o Observer) Option {
	return func(m *Monitor) {
		if o != nil {
			m.observer = o
		}
	}
}

// WithClock replaces the wall clock used for the reset window.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithTicker replaces the ticker driving Loop.
func WithTicker(fn TickerFunc) Option {
	return func(m *Monitor) { m.newTicker = fn }
}

// Monitor is the accumulator loop. It is not safe for concurrent use; a
// single goroutine owns it and the store it writes.
type Monitor struct {
	cfg      Config
	sampler  stats.Sampler
	store    quota.Store
	action   power.Action
	reset    *schedule.Window
	observer Observer

	now       func() time.Time
	newTicker TickerFunc

	state State
}

// New creates a Monitor. Zero Interval selects DefaultInterval.
func New(cfg Config, sampler stats.Sampler, store quota.Store, action power.Action, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	m := &Monitor{
		cfg:       cfg,
		sampler:   sampler,
		store:     store,
		action:    action,
		observer:  nopObserver{},
		now:       time.Now,
		newTicker: NewTicker,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a copy of the current loop state.
func (m *Monitor) State() State {
	return m.state
}

// Init prepares the loop: it creates the store if missing, takes the
// baseline sample, loads the persisted total and applies a reset window
// that is active right now. Sampler failures are returned; store failures
// are logged and the total starts at 0.
func (m *Monitor) Init(ctx context.Context) error {
	if err := m.store.Ensure(); err != nil {
		slog.Warn("Failed to initialize usage store", "error", err)
		m.observer.ObserveStoreError()
	}

	sample, err := m.sample(ctx)
	if err != nil {
		return fmt.Errorf("initial sample: %w", err)
	}
	m.state.Rebase(sample)
	m.observer.ObserveSample(sample)

	total, err := m.store.Load()
	switch {
	case err == nil:
	case errors.Is(err, quota.ErrCorrupt):
		slog.Warn("Stored usage total is invalid, starting from 0", "error", err)
	default:
		slog.Warn("Failed to load usage total, starting from 0", "error", err)
		m.observer.ObserveStoreError()
	}
	m.state.Total = total

	m.applyReset(m.now())

	slog.Info("Monitor initialized",
		"interface", sample.Interface,
		"total", humanize.IBytes(m.state.Total),
		"cap", humanize.IBytes(m.cfg.Cap),
		"rx_bytes", sample.RxBytes,
		"tx_bytes", sample.TxBytes)
	return nil
}

// Run initializes the loop and polls until ctx is cancelled, the cap is
// reached (ErrCapReached) or the sampler fails fatally.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Init(ctx); err != nil {
		return err
	}
	return m.Loop(ctx)
}

// Loop polls on the configured interval. Init must have been called.
// Cancelling ctx stops the loop after a final save of the total.
func (m *Monitor) Loop(ctx context.Context) error {
	ticker := m.newTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.persist()
			slog.Info("Monitor stopped", "total", humanize.IBytes(m.state.Total))
			return nil
		case <-ticker.C():
			if err := m.Step(ctx); err != nil {
				return err
			}
		}
	}
}

// Step runs one iteration: reset check, sample, delta, persist, cap check.
// It returns nil to continue, ErrCapReached after issuing the shutdown, or
// a fatal sampler error. Transient sampler failures skip the iteration.
func (m *Monitor) Step(ctx context.Context) error {
	m.applyReset(m.now())

	sample, err := m.sample(ctx)
	if err != nil {
		if stats.IsFatal(err) {
			return err
		}
		slog.Warn("Failed to sample interface, skipping iteration", "error", err)
		return nil
	}
	m.observer.ObserveSample(sample)

	lastRx, lastTx := m.state.LastRx, m.state.LastTx
	delta, rewound := m.state.Advance(sample)
	if rewound {
		slog.Info("Interface counters went backwards, rebasing",
			"interface", sample.Interface,
			"last_rx", lastRx, "rx", sample.RxBytes,
			"last_tx", lastTx, "tx", sample.TxBytes)
		m.observer.ObserveRewind()
	}

	m.persist()
	m.observer.ObserveTotal(m.state.Total)

	slog.Debug("Poll",
		"rx_bytes", sample.RxBytes,
		"tx_bytes", sample.TxBytes,
		"delta", delta,
		"total", m.state.Total)

	if m.state.Total >= m.cfg.Cap {
		return m.shutdown(ctx)
	}
	return nil
}

func (m *Monitor) sample(ctx context.Context) (stats.Sample, error) {
	if m.cfg.SampleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.SampleTimeout)
		defer cancel()
	}
	return m.sampler.Sample(ctx)
}

// applyReset zeroes the total when now is inside a reset window whose
// activation has not been applied yet.
func (m *Monitor) applyReset(now time.Time) {
	if m.reset == nil {
		return
	}
	activation, ok := m.reset.Active(now)
	if !ok || activation.Equal(m.state.lastReset) {
		return
	}

	m.state.lastReset = activation
	previous := m.state.Total
	m.state.Total = 0

	slog.Info("Usage total reset",
		"schedule", m.reset.String(),
		"activation", activation,
		"previous", humanize.IBytes(previous))
	m.observer.ObserveReset()
}

// persist saves the total. Failures are logged and retried on the next
// iteration; the in-memory total stays authoritative.
func (m *Monitor) persist() {
	if err := m.store.Save(m.state.Total); err != nil {
		slog.Warn("Failed to persist usage total", "total", m.state.Total, "error", err)
		m.observer.ObserveStoreError()
	}
}

func (m *Monitor) shutdown(ctx context.Context) error {
	slog.Warn("Data cap reached, shutting down host",
		"total", humanize.IBytes(m.state.Total),
		"cap", humanize.IBytes(m.cfg.Cap))

	// The shutdown must go out even if a stop signal raced with the last poll.
	if err := m.action.Shutdown(context.WithoutCancel(ctx)); err != nil {
		slog.Error("Shutdown action failed", "error", err)
		return errors.Join(ErrCapReached, err)
	}
	return ErrCapReached
}
