package stats

import (
	"context"
	"fmt"
	"time"

	psnet "github.com/shirou/gopsutil/v4/net"
)

// PsutilSampler reads interface counters through gopsutil. It follows the
// HOST_PROC environment variable, which makes it usable from a container
// that mounts the host's /proc elsewhere.
type PsutilSampler struct {
	interfaceName string
	counters      func(ctx context.Context, pernic bool) ([]psnet.IOCountersStat, error)
	now           func() time.Time
}

// NewPsutilSampler creates a gopsutil backed sampler for interfaceName.
func NewPsutilSampler(interfaceName string) *PsutilSampler {
	return &PsutilSampler{
		interfaceName: interfaceName,
		counters:      psnet.IOCountersWithContext,
		now:           time.Now,
	}
}

// Sample returns the counters of the configured interface.
func (s *PsutilSampler) Sample(ctx context.Context) (Sample, error) {
	nics, err := s.counters(ctx, true)
	if err != nil {
		return Sample{}, fmt.Errorf("read interface counters: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Sample{}, fmt.Errorf("read interface counters: %w", err)
	}

	seen := make([]string, 0, len(nics))
	for _, nic := range nics {
		if nic.Name == s.interfaceName {
			return Sample{
				Interface: s.interfaceName,
				RxBytes:   nic.BytesRecv,
				TxBytes:   nic.BytesSent,
				Timestamp: s.now(),
			}, nil
		}
		seen = append(seen, nic.Name)
	}

	return Sample{}, interfaceNotFound(s.interfaceName, seen)
}
