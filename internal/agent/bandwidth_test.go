package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEstimator_ColdStart(t *testing.T) {
	var e Estimator

	up, down := e.Rates(123456789, 987654321, time.Now())
	require.Zero(t, up)
	require.Zero(t, down)
}

func TestEstimator_Rates(t *testing.T) {
	var e Estimator
	t0 := time.Now()

	e.Rates(1000, 2000, t0)
	// 1310720 B/s is exactly 10 Mbps, 2621440 B/s is 20 Mbps
	up, down := e.Rates(1000+1310720, 2000+2621440, t0.Add(1*time.Second))
	require.InDelta(t, 10.0, up, 0.001)
	require.InDelta(t, 20.0, down, 0.001)
}

func TestEstimator_EqualTimestampsKeepBaseline(t *testing.T) {
	var e Estimator
	t0 := time.Now()

	e.Rates(1000, 2000, t0)

	// duplicate tick: no rate, and the bogus reading must not become the
	// new baseline
	up, down := e.Rates(999999999, 999999999, t0)
	require.Zero(t, up)
	require.Zero(t, down)

	up, down = e.Rates(1000+1310720, 2000+2621440, t0.Add(1*time.Second))
	require.InDelta(t, 10.0, up, 0.001)
	require.InDelta(t, 20.0, down, 0.001)
}

func TestEstimator_CounterReset(t *testing.T) {
	var e Estimator
	t0 := time.Now()

	e.Rates(5_000_000, 5_000_000, t0)

	// counters went backwards: delta is the current absolute value
	up, down := e.Rates(1310720, 2621440, t0.Add(1*time.Second))
	require.InDelta(t, 10.0, up, 0.001)
	require.InDelta(t, 20.0, down, 0.001)
}
