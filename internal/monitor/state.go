package monitor

import (
	"math"
	"time"

	"github.com/shini4i/trafficguard/internal/stats"
)

// State is the accumulator's loop state, threaded through every iteration.
type State struct {
	// Total is the number of bytes counted since the last reset.
	Total uint64
	// LastRx and LastTx are the counters of the previous sample.
	LastRx uint64
	LastTx uint64

	// lastReset is the reset activation already applied, so a window that
	// spans several polls zeroes the total only once.
	lastReset time.Time
}

// Rebase sets the delta baselines from s without counting any traffic.
func (st *State) Rebase(s stats.Sample) {
	st.LastRx = s.RxBytes
	st.LastTx = s.TxBytes
}

// Advance folds s into the state and returns the bytes added to Total.
// A counter that went backwards (interface re-initialized, host counters
// reset) contributes nothing for this interval; rewound reports it.
// Baselines always move to the new sample.
func (st *State) Advance(s stats.Sample) (delta uint64, rewound bool) {
	rx, rxRewound := counterDelta(st.LastRx, s.RxBytes)
	tx, txRewound := counterDelta(st.LastTx, s.TxBytes)
	st.Rebase(s)

	delta = saturatingAdd(rx, tx)
	st.Total = saturatingAdd(st.Total, delta)
	return delta, rxRewound || txRewound
}

func counterDelta(last, current uint64) (uint64, bool) {
	if current < last {
		return 0, true
	}
	return current - last, false
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
