package shared

import "time"

// ConnectionInfo is one active peer seen by an agent. Per-connection byte
// counts are not available from host-level counters, so Bytes is best-effort
// and usually zero.
type ConnectionInfo struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	Bytes    int64  `json:"bytes"`
	Port     int    `json:"port,omitempty"`
	State    string `json:"state,omitempty"`
}

// MetricsData carries one measurement tick: cumulative interface counters
// since boot plus the rates derived against the previous tick.
type MetricsData struct {
	BytesSent           int64            `json:"bytes_sent"`
	BytesReceived       int64            `json:"bytes_received"`
	CurrentUploadMbps   float64          `json:"current_upload_mbps"`
	CurrentDownloadMbps float64          `json:"current_download_mbps"`
	PacketsSent         int64            `json:"packets_sent"`
	PacketsReceived     int64            `json:"packets_received"`
	ActiveConnections   []ConnectionInfo `json:"active_connections"`
}

// MetricSubmission is the payload POSTed to the collector each tick.
type MetricSubmission struct {
	Hostname    string      `json:"hostname"`
	Timestamp   time.Time   `json:"timestamp"`
	TailscaleIP string      `json:"tailscale_ip"`
	Metrics     MetricsData `json:"metrics"`
}

type RegisterRequest struct {
	Hostname    string `json:"hostname"`
	TailscaleIP string `json:"tailscale_ip"`
	OSType      string `json:"os_type"`
}

// RegisterResponse returns the minted credential. The plaintext key is
// returned exactly once; only its hash is stored server-side.
type RegisterResponse struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
	Message string `json:"message"`
}

type AgentInfo struct {
	ID          string    `json:"id"`
	Hostname    string    `json:"hostname"`
	TailscaleIP string    `json:"tailscale_ip"`
	Status      string    `json:"status"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	OSType      string    `json:"os_type"`
}

type TrafficStats struct {
	SentGB          float64 `json:"sent_gb"`
	ReceivedGB      float64 `json:"received_gb"`
	CurrentUpload   float64 `json:"current_upload"`
	CurrentDownload float64 `json:"current_download"`
}

type HostTraffic struct {
	Hostname string       `json:"hostname"`
	IP       string       `json:"ip"`
	Status   string       `json:"status"`
	LastSeen time.Time    `json:"last_seen"`
	Traffic  TrafficStats `json:"traffic"`
}

type ConnectionPair struct {
	FromHost  string  `json:"from_host"`
	ToHost    string  `json:"to_host"`
	TrafficGB float64 `json:"traffic_gb"`
}

type DashboardSummary struct {
	TotalHosts       int       `json:"total_hosts"`
	OnlineHosts      int       `json:"online_hosts"`
	OfflineHosts     int       `json:"offline_hosts"`
	TotalTrafficGB   float64   `json:"total_traffic_gb"`
	AvgBandwidthMbps float64   `json:"avg_bandwidth_mbps"`
	LastUpdated      time.Time `json:"last_updated"`
}

type TrafficSummaryResponse struct {
	Summary        DashboardSummary `json:"summary"`
	Hosts          []HostTraffic    `json:"hosts"`
	TopConnections []ConnectionPair `json:"top_connections"`
}

type HistoricalDataPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Hostname      string    `json:"hostname"`
	UploadMbps    float64   `json:"upload_mbps"`
	DownloadMbps  float64   `json:"download_mbps"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
}

type HistoricalDataResponse struct {
	Data            []HistoricalDataPoint `json:"data"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	IntervalSeconds int                   `json:"interval_seconds"`
}

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
