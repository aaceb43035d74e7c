package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tsnetmon/internal/shared"
)

// API owns the HTTP surface. The store handle is constructed at startup
// and passed in explicitly; there is no ambient global.
type API struct {
	Store        Store
	AgentTimeout time.Duration
}

func NewAPI(store Store) *API {
	return &API{Store: store, AgentTimeout: shared.AgentTimeout}
}

// Routes wires the versioned endpoint set.
func (a *API) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	p := shared.APIPrefix
	mux.HandleFunc("POST "+p+"/register", a.Register)
	mux.HandleFunc("POST "+p+"/metrics", a.RequireAgentAuth(a.SubmitMetrics))
	mux.HandleFunc("GET "+p+"/agents", a.ListAgents)
	mux.HandleFunc("GET "+p+"/dashboard", a.Dashboard)
	mux.HandleFunc("GET "+p+"/traffic/summary", a.TrafficSummary)
	mux.HandleFunc("GET "+p+"/traffic/by-host/{hostname}", a.HostTraffic)
	mux.HandleFunc("GET "+p+"/traffic/history", a.History)
	mux.HandleFunc("GET "+p+"/health", a.Health)
	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 2<<20))
}

func (a *API) Register(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad body"})
		return
	}

	var req shared.RegisterRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad json"})
		return
	}
	if req.Hostname == "" || req.TailscaleIP == "" || req.OSType == "" {
		writeJSON(w, 400, map[string]any{"error": "hostname, tailscale_ip and os_type are required"})
		return
	}

	apiKey, err := newAPIKey()
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "key generation failed"})
		return
	}
	keyHash, err := hashAPIKey(apiKey)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "key hashing failed"})
		return
	}

	agentID, err := a.Store.CreateAgent(req.Hostname, req.TailscaleIP, req.OSType, keyHash, time.Now())
	if errors.Is(err, ErrIPRegistered) {
		writeJSON(w, 409, map[string]any{"error": fmt.Sprintf("agent with ip %s already registered", req.TailscaleIP)})
		return
	}
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}

	log.Info().Str("agent_id", agentID).Str("hostname", req.Hostname).Str("ip", req.TailscaleIP).Msg("agent registered")

	writeJSON(w, 200, shared.RegisterResponse{
		AgentID: agentID,
		APIKey:  apiKey,
		Message: fmt.Sprintf("agent %s registered successfully", req.Hostname),
	})
}

// RequireAgentAuth authenticates the Bearer credential before any storage
// write. The scan compares the presented key against every stored hash:
// O(agents) per request, fine for a small fleet but a known scaling limit.
func (a *API) RequireAgentAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeJSON(w, 401, map[string]any{"error": "missing or malformed authorization header"})
			return
		}

		auth, err := a.Store.AgentAuthRows()
		if err != nil {
			writeJSON(w, 500, map[string]any{"error": "db error"})
			return
		}

		for _, row := range auth {
			if checkAPIKey(key, row.KeyHash) {
				r.Header.Set("X-Agent-Id", row.AgentID)
				next(w, r)
				return
			}
		}

		writeJSON(w, 401, map[string]any{"error": "invalid api key"})
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func (a *API) SubmitMetrics(w http.ResponseWriter, r *http.Request) {
	agentID := r.Header.Get("X-Agent-Id")

	body, err := readBody(r)
	if err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad body"})
		return
	}

	var sub shared.MetricSubmission
	if err := json.Unmarshal(body, &sub); err != nil {
		writeJSON(w, 400, map[string]any{"error": "bad json"})
		return
	}
	if sub.Timestamp.IsZero() {
		sub.Timestamp = time.Now().UTC()
	}

	if _, err := a.Store.InsertMetric(agentID, sub, time.Now()); err != nil {
		log.Error().Err(err).Str("agent_id", agentID).Msg("metric insert failed")
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}

	writeJSON(w, 200, shared.APIResponse{Success: true, Message: "metrics received"})
}

func (a *API) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := a.Store.SweepAndListAgents(a.AgentTimeout, time.Now())
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}

	out := make([]shared.AgentInfo, 0, len(agents))
	for _, rec := range agents {
		out = append(out, shared.AgentInfo{
			ID:          rec.ID,
			Hostname:    rec.Hostname,
			TailscaleIP: rec.TailscaleIP,
			Status:      rec.Status,
			FirstSeen:   rec.FirstSeen,
			LastSeen:    rec.LastSeen,
			OSType:      rec.OSType,
		})
	}
	writeJSON(w, 200, out)
}

func (a *API) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := a.dashboard()
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}
	writeJSON(w, 200, summary)
}

func (a *API) dashboard() (shared.DashboardSummary, error) {
	now := time.Now()
	agents, err := a.Store.SweepAndListAgents(a.AgentTimeout, now)
	if err != nil {
		return shared.DashboardSummary{}, err
	}
	latest, err := a.Store.LatestMetrics()
	if err != nil {
		return shared.DashboardSummary{}, err
	}
	return buildDashboard(agents, latest, now), nil
}

func (a *API) TrafficSummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	agents, err := a.Store.SweepAndListAgents(a.AgentTimeout, now)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}
	latest, err := a.Store.LatestMetrics()
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}

	hosts := make([]shared.HostTraffic, 0, len(agents))
	for _, rec := range agents {
		var m *MetricRecord
		if latestRec, ok := latest[rec.ID]; ok {
			m = &latestRec
		}
		hosts = append(hosts, buildHostTraffic(rec, m))
	}

	pairs, err := a.Store.TopTalkers(now.Add(-1*time.Hour), 10)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}

	writeJSON(w, 200, shared.TrafficSummaryResponse{
		Summary:        buildDashboard(agents, latest, now),
		Hosts:          hosts,
		TopConnections: buildPairs(pairs),
	})
}

func (a *API) HostTraffic(w http.ResponseWriter, r *http.Request) {
	hostname := r.PathValue("hostname")

	rec, err := a.Store.GetAgentByHostname(hostname)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}
	if rec == nil {
		writeJSON(w, 404, map[string]any{"error": fmt.Sprintf("host %s not found", hostname)})
		return
	}

	m, err := a.Store.LatestMetricForAgent(rec.ID)
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}

	writeJSON(w, 200, buildHostTraffic(*rec, m))
}

func (a *API) History(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			hours = v
		}
	}
	// bounded to [1h, 720h]
	if hours < 1 {
		hours = 1
	}
	if hours > 720 {
		hours = 720
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)

	rows, err := a.Store.History(start, end, r.URL.Query().Get("hostname"))
	if err != nil {
		writeJSON(w, 500, map[string]any{"error": "db error"})
		return
	}

	data := make([]shared.HistoricalDataPoint, 0, len(rows))
	for _, h := range rows {
		data = append(data, shared.HistoricalDataPoint{
			Timestamp:     h.Timestamp,
			Hostname:      h.Hostname,
			UploadMbps:    shared.Round2(h.UploadMbps),
			DownloadMbps:  shared.Round2(h.DownloadMbps),
			BytesSent:     h.BytesSent,
			BytesReceived: h.BytesReceived,
		})
	}

	writeJSON(w, 200, shared.HistoricalDataResponse{
		Data:            data,
		StartTime:       start,
		EndTime:         end,
		IntervalSeconds: int(shared.MetricInterval.Seconds()),
	})
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Ping(); err != nil {
		writeJSON(w, 503, map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, 200, map[string]any{"status": "healthy", "timestamp": time.Now().UTC()})
}
