package server

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tsnetmon/internal/shared"
)

func newTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	// one in-memory database per test, not one per pooled connection
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db), db
}

func mustCreateAgent(t *testing.T, st *SQLiteStore, hostname, ip string, now time.Time) string {
	t.Helper()
	id, err := st.CreateAgent(hostname, ip, "linux", "not-a-real-hash", now)
	require.NoError(t, err)
	return id
}

func submission(hostname, ip string, metrics shared.MetricsData) shared.MetricSubmission {
	return shared.MetricSubmission{
		Hostname:    hostname,
		Timestamp:   time.Now().UTC(),
		TailscaleIP: ip,
		Metrics:     metrics,
	}
}

func TestCreateAgent_DuplicateIP(t *testing.T) {
	st, _ := newTestStore(t)
	now := time.Now()

	mustCreateAgent(t, st, "h1", "100.64.0.1", now)
	_, err := st.CreateAgent("h2", "100.64.0.1", "linux", "hash", now)
	require.ErrorIs(t, err, ErrIPRegistered)

	agents, err := st.SweepAndListAgents(shared.AgentTimeout, now)
	require.NoError(t, err)
	require.Len(t, agents, 1, "never two live records for one ip")
}

func TestSweep_Boundary(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Now()

	stale := mustCreateAgent(t, st, "stale", "100.64.0.1", now)
	fresh := mustCreateAgent(t, st, "fresh", "100.64.0.2", now)

	timeout := shared.AgentTimeout
	_, err := db.Exec(`UPDATE agents SET last_seen = ? WHERE id = ?`,
		now.Add(-(timeout + time.Second)).Unix(), stale)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE agents SET last_seen = ? WHERE id = ?`,
		now.Add(-(timeout - time.Second)).Unix(), fresh)
	require.NoError(t, err)

	agents, err := st.SweepAndListAgents(timeout, now)
	require.NoError(t, err)
	require.Len(t, agents, 2)

	byHost := map[string]string{}
	for _, a := range agents {
		byHost[a.Hostname] = a.Status
	}
	require.Equal(t, shared.StatusOffline, byHost["stale"])
	require.Equal(t, shared.StatusOnline, byHost["fresh"])
}

func TestInsertMetric_Atomicity(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Now()
	id := mustCreateAgent(t, st, "h1", "100.64.0.1", now)

	// empty peer list is a valid snapshot
	emptyID, err := st.InsertMetric(id, submission("h1", "100.64.0.1", shared.MetricsData{}), now)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM connections WHERE metric_id = ?`, emptyID).Scan(&n))
	require.Zero(t, n)

	peers := []shared.ConnectionInfo{
		{IP: "100.64.0.2", Hostname: "p1", Port: 22, State: "ESTABLISHED"},
		{IP: "100.64.0.3", Port: 443, State: "TIME_WAIT"},
		{IP: "100.64.0.4", Hostname: "p3", Port: 8080, State: "ESTABLISHED"},
	}
	metricID, err := st.InsertMetric(id, submission("h1", "100.64.0.1", shared.MetricsData{ActiveConnections: peers}), now)
	require.NoError(t, err)

	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM connections WHERE metric_id = ?`, metricID).Scan(&n))
	require.Equal(t, len(peers), n)

	// ingestion promoted the agent
	rec, err := st.GetAgentByHostname("h1")
	require.NoError(t, err)
	require.Equal(t, shared.StatusOnline, rec.Status)
}

func TestLatestMetrics_MaxID(t *testing.T) {
	st, _ := newTestStore(t)
	now := time.Now()
	id := mustCreateAgent(t, st, "h1", "100.64.0.1", now)

	_, err := st.InsertMetric(id, submission("h1", "100.64.0.1", shared.MetricsData{BytesSent: 1}), now)
	require.NoError(t, err)
	second, err := st.InsertMetric(id, submission("h1", "100.64.0.1", shared.MetricsData{BytesSent: 2}), now)
	require.NoError(t, err)

	latest, err := st.LatestMetrics()
	require.NoError(t, err)
	require.Equal(t, second, latest[id].ID)
	require.EqualValues(t, 2, latest[id].BytesSent)

	m, err := st.LatestMetricForAgent(id)
	require.NoError(t, err)
	require.Equal(t, second, m.ID)
}

func TestTopTalkers_WindowAndHostnameFilter(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Now()
	id := mustCreateAgent(t, st, "h1", "100.64.0.1", now)

	peers := []shared.ConnectionInfo{
		{IP: "100.64.0.2", Hostname: "big", Bytes: 5000},
		{IP: "100.64.0.3", Hostname: "small", Bytes: 100},
		{IP: "100.64.0.4", Bytes: 999999}, // unresolved, excluded from the ranking
	}
	_, err := st.InsertMetric(id, submission("h1", "100.64.0.1", shared.MetricsData{ActiveConnections: peers}), now)
	require.NoError(t, err)

	// an old snapshot outside the trailing window
	oldID, err := st.InsertMetric(id, submission("h1", "100.64.0.1", shared.MetricsData{ActiveConnections: []shared.ConnectionInfo{
		{IP: "100.64.0.5", Hostname: "ancient", Bytes: 12345},
	}}), now)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE metrics SET timestamp = ? WHERE id = ?`, now.Add(-2*time.Hour).Unix(), oldID)
	require.NoError(t, err)

	pairs, err := st.TopTalkers(now.Add(-1*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	require.Equal(t, "big", pairs[0].ToHost, "ordered by bytes descending")
	require.EqualValues(t, 5000, pairs[0].Bytes)
	require.Equal(t, "small", pairs[1].ToHost)
}

func TestHistory_FilterAndOrder(t *testing.T) {
	st, db := newTestStore(t)
	now := time.Now()
	h1 := mustCreateAgent(t, st, "h1", "100.64.0.1", now)
	h2 := mustCreateAgent(t, st, "h2", "100.64.0.2", now)

	first, err := st.InsertMetric(h1, submission("h1", "100.64.0.1", shared.MetricsData{BytesSent: 1}), now)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE metrics SET timestamp = ? WHERE id = ?`, now.Add(-30*time.Minute).Unix(), first)
	require.NoError(t, err)
	_, err = st.InsertMetric(h1, submission("h1", "100.64.0.1", shared.MetricsData{BytesSent: 2}), now)
	require.NoError(t, err)
	_, err = st.InsertMetric(h2, submission("h2", "100.64.0.2", shared.MetricsData{BytesSent: 3}), now)
	require.NoError(t, err)

	rows, err := st.History(now.Add(-1*time.Hour), now, "")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.True(t, !rows[0].Timestamp.After(rows[1].Timestamp), "ascending by time")

	rows, err = st.History(now.Add(-1*time.Hour), now, "h1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, "h1", r.Hostname)
	}
}
