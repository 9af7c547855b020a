package monitor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shini4i/trafficguard/internal/stats"
)

func TestState_Advance(t *testing.T) {
	tests := []struct {
		name          string
		state         State
		rx, tx        uint64
		expectedDelta uint64
		expectedTotal uint64
		rewound       bool
	}{
		{
			name:          "growth on both counters",
			state:         State{Total: 10, LastRx: 100, LastTx: 50},
			rx:            160, tx: 90,
			expectedDelta: 100, expectedTotal: 110,
		},
		{
			name:          "no traffic",
			state:         State{Total: 10, LastRx: 100, LastTx: 50},
			rx:            100, tx: 50,
			expectedDelta: 0, expectedTotal: 10,
		},
		{
			name:          "receive counter rewound",
			state:         State{Total: 10, LastRx: 100000, LastTx: 50},
			rx:            20, tx: 80,
			expectedDelta: 30, expectedTotal: 40, rewound: true,
		},
		{
			name:          "both counters rewound",
			state:         State{Total: 10, LastRx: 100000, LastTx: 500000},
			rx:            20, tx: 30,
			expectedDelta: 0, expectedTotal: 10, rewound: true,
		},
		{
			name:          "total saturates",
			state:         State{Total: math.MaxUint64 - 5, LastRx: 0, LastTx: 0},
			rx:            10, tx: 10,
			expectedDelta: 20, expectedTotal: math.MaxUint64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.state
			delta, rewound := st.Advance(stats.Sample{RxBytes: tt.rx, TxBytes: tt.tx})

			assert.Equal(t, tt.expectedDelta, delta)
			assert.Equal(t, tt.expectedTotal, st.Total)
			assert.Equal(t, tt.rewound, rewound)
			// Baselines always follow the latest sample.
			assert.Equal(t, tt.rx, st.LastRx)
			assert.Equal(t, tt.tx, st.LastTx)
		})
	}
}

func TestState_AdvanceAfterRewindCountsFromNewBaseline(t *testing.T) {
	st := State{LastRx: 5000, LastTx: 5000}

	st.Advance(stats.Sample{RxBytes: 100, TxBytes: 100})
	delta, rewound := st.Advance(stats.Sample{RxBytes: 150, TxBytes: 120})

	assert.False(t, rewound)
	assert.Equal(t, uint64(70), delta)
	assert.Equal(t, uint64(70), st.Total)
}
