package server

import (
	"time"

	"tsnetmon/internal/shared"
)

// buildDashboard computes the summary from swept agent rows and each
// agent's latest snapshot. Traffic totals count only the latest snapshot
// per agent: counters are cumulative, so summing history would double
// count.
func buildDashboard(agents []AgentRecord, latest map[string]MetricRecord, now time.Time) shared.DashboardSummary {
	online := 0
	for _, a := range agents {
		if a.Status == shared.StatusOnline {
			online++
		}
	}

	var totalBytes int64
	var bandwidth float64
	for _, m := range latest {
		totalBytes += m.BytesSent + m.BytesReceived
		bandwidth += m.UploadMbps + m.DownloadMbps
	}

	divisor := len(latest)
	if divisor == 0 {
		divisor = 1
	}

	return shared.DashboardSummary{
		TotalHosts:       len(agents),
		OnlineHosts:      online,
		OfflineHosts:     len(agents) - online,
		TotalTrafficGB:   shared.Round2(float64(totalBytes) / shared.BytesPerGB),
		AvgBandwidthMbps: shared.Round2(bandwidth / float64(divisor)),
		LastUpdated:      now.UTC(),
	}
}

// buildHostTraffic maps an agent and its latest snapshot to the per-host
// view; an agent that never submitted gets a zeroed placeholder.
func buildHostTraffic(a AgentRecord, m *MetricRecord) shared.HostTraffic {
	traffic := shared.TrafficStats{}
	if m != nil {
		traffic = shared.TrafficStats{
			SentGB:          shared.Round2(float64(m.BytesSent) / shared.BytesPerGB),
			ReceivedGB:      shared.Round2(float64(m.BytesReceived) / shared.BytesPerGB),
			CurrentUpload:   shared.Round2(m.UploadMbps),
			CurrentDownload: shared.Round2(m.DownloadMbps),
		}
	}

	return shared.HostTraffic{
		Hostname: a.Hostname,
		IP:       a.TailscaleIP,
		Status:   a.Status,
		LastSeen: a.LastSeen,
		Traffic:  traffic,
	}
}

func buildPairs(pairs []PairTraffic) []shared.ConnectionPair {
	out := make([]shared.ConnectionPair, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, shared.ConnectionPair{
			FromHost:  p.FromHost,
			ToHost:    p.ToHost,
			TrafficGB: shared.Round2(float64(p.Bytes) / shared.BytesPerGB),
		})
	}
	return out
}
