package server

import (
	"errors"
	"time"

	"tsnetmon/internal/shared"
)

// ErrIPRegistered signals a registration identity collision: exactly one
// agent may own a tailscale IP.
var ErrIPRegistered = errors.New("tailscale ip already registered")

type AgentRecord struct {
	ID          string
	Hostname    string
	TailscaleIP string
	OSType      string
	FirstSeen   time.Time
	LastSeen    time.Time
	Status      string
}

// AgentAuth is the minimal row set the credential scan needs.
type AgentAuth struct {
	AgentID string
	KeyHash string
}

type MetricRecord struct {
	ID                int64
	AgentID           string
	Timestamp         time.Time
	BytesSent         int64
	BytesReceived     int64
	PacketsSent       int64
	PacketsReceived   int64
	UploadMbps        float64
	DownloadMbps      float64
	ActiveConnections int
}

// PairTraffic is one (reporting host, peer host) row of the talker ranking.
type PairTraffic struct {
	FromHost string
	ToHost   string
	Bytes    int64
}

type HistoryRow struct {
	Timestamp     time.Time
	Hostname      string
	UploadMbps    float64
	DownloadMbps  float64
	BytesSent     int64
	BytesReceived int64
}

// Store is the collector's persistence boundary. All methods run short
// per-request transactions; there is no cross-request shared state beyond
// the database itself.
type Store interface {
	CreateAgent(hostname, tailscaleIP, osType, keyHash string, now time.Time) (string, error)
	AgentAuthRows() ([]AgentAuth, error)
	GetAgentByHostname(hostname string) (*AgentRecord, error)

	// SweepAndListAgents demotes stale agents and lists all of them inside
	// one transaction, so a caller never sees an agent that should already
	// read as offline.
	SweepAndListAgents(timeout time.Duration, now time.Time) ([]AgentRecord, error)

	// InsertMetric writes the snapshot, its peer rows, and the owning
	// agent's liveness update atomically.
	InsertMetric(agentID string, sub shared.MetricSubmission, now time.Time) (int64, error)

	LatestMetrics() (map[string]MetricRecord, error)
	LatestMetricForAgent(agentID string) (*MetricRecord, error)
	TopTalkers(since time.Time, limit int) ([]PairTraffic, error)
	History(start, end time.Time, hostname string) ([]HistoryRow, error)

	Ping() error
}
