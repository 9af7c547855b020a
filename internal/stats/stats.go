// Package stats samples the cumulative byte counters of a network interface.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sample is one snapshot of an interface's cumulative traffic counters.
type Sample struct {
	// Interface is the network interface name (e.g., "eth0").
	Interface string

	// RxBytes is the total bytes received on the interface since it came up.
	RxBytes uint64
	// TxBytes is the total bytes transmitted on the interface since it came up.
	TxBytes uint64

	// Timestamp is when the counters were read.
	Timestamp time.Time
}

// Sampler reads the current counters of one interface.
type Sampler interface {
	// Sample returns the counters as of now. Implementations must honour ctx
	// so a stuck read cannot stall the caller.
	Sample(ctx context.Context) (Sample, error)
}

// ErrInterfaceNotFound is returned when the configured interface is absent
// from the counter table.
var ErrInterfaceNotFound = errors.New("network interface not found")

// ParseError reports a counter field that is not a non-negative integer.
type ParseError struct {
	Interface string
	Field     string
	Value     string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s counter of %s: invalid value %q: %v", e.Field, e.Interface, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a structural sampler failure that retrying
// cannot fix: a missing interface or a malformed counter line.
func IsFatal(err error) bool {
	var parseErr *ParseError
	return errors.Is(err, ErrInterfaceNotFound) || errors.As(err, &parseErr)
}
