// Package agent implements the measurement side: interface discovery,
// bandwidth estimation, peer aggregation, and delivery to the collector.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"tsnetmon/internal/shared"
)

// ErrNoData means this tick produced no usable measurement. The loop skips
// submission and keeps going; it is not a crash condition.
var ErrNoData = errors.New("no metrics data this tick")

// ifaceCounters are cumulative since boot.
type ifaceCounters struct {
	BytesSent   uint64
	BytesRecv   uint64
	PacketsSent uint64
	PacketsRecv uint64
}

// Monitor owns one interface and the state needed to derive rates from it.
type Monitor struct {
	Iface       string
	Hostname    string
	TailscaleIP string
	OSType      string

	est Estimator
}

// NewMonitor discovers the Tailscale interface. An error here is fatal to
// the caller: there is nothing to monitor without it.
func NewMonitor(ifaceOverride string) (*Monitor, error) {
	var name, ip string
	var err error
	if ifaceOverride != "" {
		name, ip, err = lookupInterface(ifaceOverride)
	} else {
		name, ip, err = detectInterface()
	}
	if err != nil {
		return nil, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	osType := "linux"
	if runtime.GOOS == "windows" {
		osType = "windows"
	}

	m := &Monitor{
		Iface:       name,
		Hostname:    hostname,
		TailscaleIP: ip,
		OSType:      osType,
	}
	log.Info().
		Str("interface", m.Iface).
		Str("hostname", m.Hostname).
		Str("tailscale_ip", m.TailscaleIP).
		Msg("monitor initialized")
	return m, nil
}

// Collect produces one measurement snapshot. Counter read failures come
// back as ErrNoData so the loop can skip this tick and continue.
func (m *Monitor) Collect(ctx context.Context) (shared.MetricsData, error) {
	counters, err := readCounters(m.Iface)
	if err != nil {
		return shared.MetricsData{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}

	up, down := m.est.Rates(counters.BytesSent, counters.BytesRecv, time.Now())
	peers := collectPeers(ctx, m.TailscaleIP)

	return shared.MetricsData{
		BytesSent:           int64(counters.BytesSent),
		BytesReceived:       int64(counters.BytesRecv),
		CurrentUploadMbps:   shared.Round2(up),
		CurrentDownloadMbps: shared.Round2(down),
		PacketsSent:         int64(counters.PacketsSent),
		PacketsReceived:     int64(counters.PacketsRecv),
		ActiveConnections:   peers,
	}, nil
}

// Submission wraps a snapshot with the agent's identity.
func (m *Monitor) Submission(metrics shared.MetricsData) shared.MetricSubmission {
	return shared.MetricSubmission{
		Hostname:    m.Hostname,
		Timestamp:   time.Now().UTC(),
		TailscaleIP: m.TailscaleIP,
		Metrics:     metrics,
	}
}
