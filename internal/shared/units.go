// Package shared holds the wire protocol and the constants both the agent
// and the collector agree on.
package shared

import (
	"math"
	"time"
)

const (
	APIPrefix = "/api/v1"

	// Tailscale assigns addresses from the CGNAT block 100.64.0.0/10.
	TailscaleIPPrefix = "100."
	InterfaceLinux    = "tailscale0"
	InterfaceWindows  = "Tailscale"

	// MetricInterval is the agent's measurement/submission cadence.
	MetricInterval = 25 * time.Second

	// AgentTimeout is how long an agent may stay silent before read-path
	// queries flip it to offline.
	AgentTimeout = 300 * time.Second

	// MaxConsecutiveFailures terminates the agent instead of spinning
	// forever against a dead collector.
	MaxConsecutiveFailures = 10

	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusIdle    = "idle" // reserved, never produced

	// BytesPerGB converts cumulative counters to GB for display.
	BytesPerGB = 1 << 30

	// BytesToMbps converts bytes/second to megabits/second.
	BytesToMbps = 8.0 / (1 << 20)
)

// RetryBackoff is the submission wait table, indexed by attempt number and
// clamped to the last entry.
var RetryBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Round2 rounds user-facing floats to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
