package stats

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultProcNetDev is the kernel's per-interface statistics table.
	DefaultProcNetDev = "/proc/net/dev"

	// Field positions after the "name:" prefix.
	rxBytesField = 0
	txBytesField = 8
)

// ProcNetDevSampler reads counters from a /proc/net/dev formatted table.
type ProcNetDevSampler struct {
	path          string
	interfaceName string
	now           func() time.Time
}

// NewProcNetDevSampler creates a sampler for interfaceName reading from path.
// An empty path selects DefaultProcNetDev.
func NewProcNetDevSampler(path, interfaceName string) *ProcNetDevSampler {
	if path == "" {
		path = DefaultProcNetDev
	}
	return &ProcNetDevSampler{
		path:          path,
		interfaceName: interfaceName,
		now:           time.Now,
	}
}

// Sample reads the table and returns the counters of the configured interface.
// The read runs in its own goroutine so ctx can bound it.
func (s *ProcNetDevSampler) Sample(ctx context.Context) (Sample, error) {
	type result struct {
		rx, tx uint64
		err    error
	}

	done := make(chan result, 1)
	go func() {
		rx, tx, err := s.read()
		done <- result{rx: rx, tx: tx, err: err}
	}()

	select {
	case <-ctx.Done():
		return Sample{}, fmt.Errorf("read %s: %w", s.path, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return Sample{}, r.err
		}
		return Sample{
			Interface: s.interfaceName,
			RxBytes:   r.rx,
			TxBytes:   r.tx,
			Timestamp: s.now(),
		}, nil
	}
}

func (s *ProcNetDevSampler) read() (rx, tx uint64, err error) {
	f, err := os.Open(s.path) // #nosec G304 -- configured statistics table
	if err != nil {
		return 0, 0, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	return ParseNetDev(f, s.interfaceName)
}

// ParseNetDev scans a /proc/net/dev table for interfaceName and returns its
// received and transmitted byte counters. The received counter is the first
// field after "name:" and the transmitted counter the ninth.
func ParseNetDev(r io.Reader, interfaceName string) (rx, tx uint64, err error) {
	var seen []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		// Header lines carry no colon.
		name, counters, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name != interfaceName {
			seen = append(seen, name)
			continue
		}

		fields := strings.Fields(counters)
		if len(fields) <= txBytesField {
			return 0, 0, &ParseError{
				Interface: interfaceName,
				Field:     "line",
				Value:     strings.TrimSpace(line),
				Err:       fmt.Errorf("expected at least %d fields, got %d", txBytesField+1, len(fields)),
			}
		}

		if rx, err = parseCounter(interfaceName, "rx_bytes", fields[rxBytesField]); err != nil {
			return 0, 0, err
		}
		if tx, err = parseCounter(interfaceName, "tx_bytes", fields[txBytesField]); err != nil {
			return 0, 0, err
		}
		return rx, tx, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("scan interface table: %w", err)
	}

	return 0, 0, interfaceNotFound(interfaceName, seen)
}

func parseCounter(interfaceName, field, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, &ParseError{Interface: interfaceName, Field: field, Value: value, Err: err}
	}
	return n, nil
}

func interfaceNotFound(name string, seen []string) error {
	if len(seen) == 0 {
		return fmt.Errorf("%w: %q", ErrInterfaceNotFound, name)
	}
	return fmt.Errorf("%w: %q (available: %s)", ErrInterfaceNotFound, name, strings.Join(seen, ", "))
}
