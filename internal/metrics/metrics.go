// Package metrics exposes usage counters in the Prometheus text format.
//
// There is no listener: the registry is flushed to a file after every poll
// for node_exporter's textfile collector to pick up.
package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shini4i/trafficguard/internal/stats"
)

const namespace = "trafficguard"

// Metrics holds the guard's gauges and counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	path     string
	now      func() time.Time

	usage       prometheus.Gauge
	limit       prometheus.Gauge
	rxBytes     prometheus.Gauge
	txBytes     prometheus.Gauge
	lastUpdate  prometheus.Gauge
	polls       prometheus.Counter
	rewinds     prometheus.Counter
	resets      prometheus.Counter
	storeErrors prometheus.Counter
}

// New creates the metric set for one interface. path is the textfile to
// write on every update; an empty path keeps metrics in memory only.
func New(path, interfaceName string, capBytes uint64) *Metrics {
	labels := prometheus.Labels{"interface": interfaceName}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: labels,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: name, Help: help, ConstLabels: labels,
		})
	}

	m := &Metrics{
		registry:    prometheus.NewRegistry(),
		path:        path,
		now:         time.Now,
		usage:       gauge("usage_bytes", "Bytes counted against the cap since the last reset"),
		limit:       gauge("cap_bytes", "Configured data cap in bytes"),
		rxBytes:     gauge("interface_receive_bytes", "Last sampled cumulative receive counter"),
		txBytes:     gauge("interface_transmit_bytes", "Last sampled cumulative transmit counter"),
		lastUpdate:  gauge("last_update_timestamp_seconds", "Unix time of the last completed poll"),
		polls:       counter("polls_total", "Completed polling iterations"),
		rewinds:     counter("counter_rewinds_total", "Samples whose counters went backwards"),
		resets:      counter("resets_total", "Usage resets applied by the reset schedule"),
		storeErrors: counter("store_errors_total", "Failed reads or writes of the usage store"),
	}

	m.registry.MustRegister(
		m.usage, m.limit, m.rxBytes, m.txBytes, m.lastUpdate,
		m.polls, m.rewinds, m.resets, m.storeErrors,
	)
	m.limit.Set(float64(capBytes))
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveSample records the latest raw counters.
func (m *Metrics) ObserveSample(s stats.Sample) {
	m.rxBytes.Set(float64(s.RxBytes))
	m.txBytes.Set(float64(s.TxBytes))
}

// ObserveRewind counts a counter rewind.
func (m *Metrics) ObserveRewind() { m.rewinds.Inc() }

// ObserveReset counts a scheduled reset.
func (m *Metrics) ObserveReset() { m.resets.Inc() }

// ObserveStoreError counts a store failure.
func (m *Metrics) ObserveStoreError() { m.storeErrors.Inc() }

// ObserveTotal records the total at the end of an iteration and flushes the
// textfile.
func (m *Metrics) ObserveTotal(total uint64) {
	m.usage.Set(float64(total))
	m.polls.Inc()
	m.lastUpdate.Set(float64(m.now().Unix()))

	if err := m.Flush(); err != nil {
		slog.Warn("Failed to write metrics textfile", "path", m.path, "error", err)
	}
}

// Flush writes the registry to the textfile. It is a no-op without a path.
func (m *Metrics) Flush() error {
	if m.path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.path, m.registry)
}
