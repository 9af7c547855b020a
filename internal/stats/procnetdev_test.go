package stats

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const netDevFixture = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:  104729     982    0    0    0     0          0         0   104729     982    0    0    0     0       0          0
  eth0: 5839267   12345    0    0    0     0          0        17  1234567    6543    0    0    0     0       0          0
wlan0:90210 77 0 0 0 0 0 0 4242 33 0 0 0 0 0 0
`

func TestParseNetDev(t *testing.T) {
	tests := []struct {
		name      string
		iface     string
		expectedR uint64
		expectedT uint64
	}{
		{"space after colon", "eth0", 5839267, 1234567},
		{"no space after colon", "wlan0", 90210, 4242},
		{"loopback", "lo", 104729, 104729},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rx, tx, err := ParseNetDev(strings.NewReader(netDevFixture), tt.iface)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedR, rx)
			assert.Equal(t, tt.expectedT, tx)
		})
	}
}

func TestParseNetDev_InterfaceNotFound(t *testing.T) {
	_, _, err := ParseNetDev(strings.NewReader(netDevFixture), "eth1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterfaceNotFound)
	assert.Contains(t, err.Error(), `"eth1"`)
	assert.Contains(t, err.Error(), "available: lo, eth0, wlan0")
	assert.True(t, IsFatal(err))
}

func TestParseNetDev_PrefixIsNotAMatch(t *testing.T) {
	// "eth0" must not match "veth0" the way a substring search would.
	table := "veth0: 1 0 0 0 0 0 0 0 2 0 0 0 0 0 0 0\n"
	_, _, err := ParseNetDev(strings.NewReader(table), "eth0")
	assert.ErrorIs(t, err, ErrInterfaceNotFound)
}

func TestParseNetDev_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		field string
	}{
		{"negative rx", "eth0: -5 0 0 0 0 0 0 0 10 0 0 0 0 0 0 0", "rx_bytes"},
		{"non numeric tx", "eth0: 5 0 0 0 0 0 0 0 abc 0 0 0 0 0 0 0", "tx_bytes"},
		{"too few fields", "eth0: 5 0 0", "line"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseNetDev(strings.NewReader(tt.line+"\n"), "eth0")
			require.Error(t, err)

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.field, parseErr.Field)
			assert.Equal(t, "eth0", parseErr.Interface)
			assert.True(t, IsFatal(err))
		})
	}
}

func TestProcNetDevSampler_Sample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev")
	require.NoError(t, os.WriteFile(path, []byte(netDevFixture), 0600))

	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	s := NewProcNetDevSampler(path, "eth0")
	s.now = func() time.Time { return fixed }

	sample, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Sample{Interface: "eth0", RxBytes: 5839267, TxBytes: 1234567, Timestamp: fixed}, sample)
}

func TestProcNetDevSampler_MissingTable(t *testing.T) {
	s := NewProcNetDevSampler("/nonexistent/proc/net/dev", "eth0")

	_, err := s.Sample(context.Background())
	require.Error(t, err)
	assert.False(t, IsFatal(err))
}

func TestProcNetDevSampler_ContextCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev")
	require.NoError(t, os.WriteFile(path, []byte(netDevFixture), 0600))
	s := NewProcNetDevSampler(path, "eth0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either branch of the select may win; a cancelled read must never be fatal.
	_, err := s.Sample(ctx)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsFatal(err))
	}
}

func TestNewProcNetDevSampler_DefaultPath(t *testing.T) {
	s := NewProcNetDevSampler("", "eth0")
	assert.Equal(t, DefaultProcNetDev, s.path)
}
