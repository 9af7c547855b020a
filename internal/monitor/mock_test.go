package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shini4i/trafficguard/internal/quota"
	"github.com/shini4i/trafficguard/internal/stats"
)

// sampleStep is one scripted sampler response.
type sampleStep struct {
	rx, tx uint64
	err    error
}

// mockSampler implements stats.Sampler from a script. Once the script is
// exhausted it keeps returning the last step.
type mockSampler struct {
	mu    sync.Mutex
	steps []sampleStep
	calls int
}

func newMockSampler(steps ...sampleStep) *mockSampler {
	return &mockSampler{steps: steps}
}

func (s *mockSampler) Sample(context.Context) (stats.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++

	step := s.steps[i]
	if step.err != nil {
		return stats.Sample{}, step.err
	}
	return stats.Sample{Interface: "eth0", RxBytes: step.rx, TxBytes: step.tx}, nil
}

func (s *mockSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// memStore implements quota.Store in memory.
type memStore struct {
	value   uint64
	exists  bool
	corrupt bool

	ensureErr error
	loadErr   error
	saveErr   error

	saves []uint64
}

var _ quota.Store = (*memStore)(nil)

func (s *memStore) Ensure() error {
	if s.ensureErr != nil {
		return s.ensureErr
	}
	if !s.exists {
		s.exists = true
		s.value = 0
	}
	return nil
}

func (s *memStore) Load() (uint64, error) {
	if s.loadErr != nil {
		return 0, s.loadErr
	}
	if s.corrupt {
		return 0, quota.ErrCorrupt
	}
	return s.value, nil
}

func (s *memStore) Save(total uint64) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.value = total
	s.exists = true
	s.saves = append(s.saves, total)
	return nil
}

// recordingAction implements power.Action and counts invocations.
type recordingAction struct {
	calls int
	err   error
}

func (a *recordingAction) Shutdown(context.Context) error {
	a.calls++
	return a.err
}

// recordingObserver implements Observer.
type recordingObserver struct {
	samples     int
	rewinds     int
	resets      int
	storeErrors int
	totals      []uint64
}

func (o *recordingObserver) ObserveSample(stats.Sample) { o.samples++ }
func (o *recordingObserver) ObserveRewind()             { o.rewinds++ }
func (o *recordingObserver) ObserveReset()              { o.resets++ }
func (o *recordingObserver) ObserveStoreError()         { o.storeErrors++ }
func (o *recordingObserver) ObserveTotal(t uint64)      { o.totals = append(o.totals, t) }

// manualTicker implements Ticker with a buffered channel the test fills.
type manualTicker struct {
	ch      chan time.Time
	stopped bool
}

func newManualTicker(ticks int) *manualTicker {
	t := &manualTicker{ch: make(chan time.Time, ticks)}
	for i := 0; i < ticks; i++ {
		t.ch <- time.Time{}
	}
	return t
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               { t.stopped = true }

func (t *manualTicker) factory() TickerFunc {
	return func(time.Duration) Ticker { return t }
}

// fixedClock returns a clock that always reports now.
func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

var errTransient = errors.New("resource temporarily unavailable")
