package agent

import (
	"time"

	"tsnetmon/internal/shared"
)

// Estimator turns successive absolute byte counters into upload/download
// rates. One instance per monitored interface; timestamps must be fed in
// non-decreasing order.
type Estimator struct {
	prevSent uint64
	prevRecv uint64
	prevTime time.Time
	primed   bool
}

// Rates returns (upload, download) in Mbps for the reading at now and
// stores it as the new baseline.
//
// The first call returns (0, 0): there is no previous sample yet. A
// non-positive elapsed time (clock skew, duplicate tick) also returns
// (0, 0) but leaves the baseline untouched so a bad sample cannot corrupt
// the next computation.
func (e *Estimator) Rates(sent, recv uint64, now time.Time) (float64, float64) {
	if !e.primed {
		e.prevSent, e.prevRecv, e.prevTime = sent, recv, now
		e.primed = true
		return 0, 0
	}

	elapsed := now.Sub(e.prevTime).Seconds()
	if elapsed <= 0 {
		return 0, 0
	}

	up := rateMbps(sent, e.prevSent, elapsed)
	down := rateMbps(recv, e.prevRecv, elapsed)

	e.prevSent, e.prevRecv, e.prevTime = sent, recv, now
	return up, down
}

// rateMbps tolerates counter resets: a current value below the baseline
// means the interface reinitialized, so the absolute value is the delta.
func rateMbps(cur, prev uint64, elapsed float64) float64 {
	delta := cur
	if cur >= prev {
		delta = cur - prev
	}
	return float64(delta) / elapsed * shared.BytesToMbps
}
