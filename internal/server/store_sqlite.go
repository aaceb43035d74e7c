package server

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"tsnetmon/internal/shared"
)

type SQLiteStore struct {
	DB *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{DB: db}
}

func (s *SQLiteStore) CreateAgent(hostname, tailscaleIP, osType, keyHash string, now time.Time) (string, error) {
	var existing string
	err := s.DB.QueryRow(`SELECT id FROM agents WHERE tailscale_ip = ?`, tailscaleIP).Scan(&existing)
	if err == nil {
		return "", ErrIPRegistered
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	agentID := uuid.NewString()
	ts := now.Unix()
	_, err = s.DB.Exec(
		`INSERT INTO agents (id, hostname, tailscale_ip, os_type, api_key_hash, first_seen, last_seen, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, hostname, tailscaleIP, osType, keyHash, ts, ts, shared.StatusOnline,
	)
	return agentID, err
}

func (s *SQLiteStore) AgentAuthRows() ([]AgentAuth, error) {
	rows, err := s.DB.Query(`SELECT id, api_key_hash FROM agents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auth []AgentAuth
	for rows.Next() {
		var a AgentAuth
		if err := rows.Scan(&a.AgentID, &a.KeyHash); err != nil {
			return nil, err
		}
		auth = append(auth, a)
	}
	return auth, rows.Err()
}

func (s *SQLiteStore) GetAgentByHostname(hostname string) (*AgentRecord, error) {
	row := s.DB.QueryRow(
		`SELECT id, hostname, tailscale_ip, os_type, first_seen, last_seen, status
		 FROM agents WHERE hostname = ?`, hostname,
	)
	rec, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (s *SQLiteStore) SweepAndListAgents(timeout time.Duration, now time.Time) ([]AgentRecord, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	cutoff := now.Add(-timeout).Unix()
	if _, err := tx.Exec(
		`UPDATE agents SET status = ? WHERE last_seen < ? AND status != ?`,
		shared.StatusOffline, cutoff, shared.StatusOffline,
	); err != nil {
		return nil, err
	}

	rows, err := tx.Query(
		`SELECT id, hostname, tailscale_ip, os_type, first_seen, last_seen, status
		 FROM agents ORDER BY hostname`,
	)
	if err != nil {
		return nil, err
	}

	var agents []AgentRecord
	for rows.Next() {
		rec, err := scanAgent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		agents = append(agents, *rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	return agents, tx.Commit()
}

func (s *SQLiteStore) InsertMetric(agentID string, sub shared.MetricSubmission, now time.Time) (int64, error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO metrics (agent_id, timestamp, bytes_sent, bytes_received,
		                      packets_sent, packets_received, upload_mbps, download_mbps, active_connections)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agentID, sub.Timestamp.Unix(),
		sub.Metrics.BytesSent, sub.Metrics.BytesReceived,
		sub.Metrics.PacketsSent, sub.Metrics.PacketsReceived,
		sub.Metrics.CurrentUploadMbps, sub.Metrics.CurrentDownloadMbps,
		len(sub.Metrics.ActiveConnections),
	)
	if err != nil {
		return 0, err
	}
	metricID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, conn := range sub.Metrics.ActiveConnections {
		if _, err := tx.Exec(
			`INSERT INTO connections (metric_id, remote_ip, remote_hostname, remote_port, bytes_transferred, state)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			metricID, conn.IP, nullString(conn.Hostname), conn.Port, conn.Bytes, nullString(conn.State),
		); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(
		`UPDATE agents SET last_seen = ?, status = ? WHERE id = ?`,
		now.Unix(), shared.StatusOnline, agentID,
	); err != nil {
		return 0, err
	}

	return metricID, tx.Commit()
}

// LatestMetrics returns each agent's most recent snapshot, keyed by agent
// id. "Most recent" is max(id): ids are append-only and monotonic, which
// makes the choice deterministic even for equal timestamps.
func (s *SQLiteStore) LatestMetrics() (map[string]MetricRecord, error) {
	rows, err := s.DB.Query(
		`SELECT m.id, m.agent_id, m.timestamp, m.bytes_sent, m.bytes_received,
		        m.packets_sent, m.packets_received, m.upload_mbps, m.download_mbps, m.active_connections
		 FROM metrics m
		 JOIN (SELECT agent_id, MAX(id) AS max_id FROM metrics GROUP BY agent_id) latest
		   ON m.agent_id = latest.agent_id AND m.id = latest.max_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]MetricRecord)
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, err
		}
		out[m.AgentID] = *m
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LatestMetricForAgent(agentID string) (*MetricRecord, error) {
	row := s.DB.QueryRow(
		`SELECT id, agent_id, timestamp, bytes_sent, bytes_received,
		        packets_sent, packets_received, upload_mbps, download_mbps, active_connections
		 FROM metrics WHERE agent_id = ? ORDER BY id DESC LIMIT 1`, agentID,
	)
	m, err := scanMetric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

// TopTalkers ranks (reporting host, peer host) pairs by transferred bytes
// within the window. Peers without a resolved hostname are excluded: the
// hostname is the join key of the ranking.
func (s *SQLiteStore) TopTalkers(since time.Time, limit int) ([]PairTraffic, error) {
	rows, err := s.DB.Query(
		`SELECT a.hostname, c.remote_hostname, SUM(c.bytes_transferred) AS total
		 FROM connections c
		 JOIN metrics m ON m.id = c.metric_id
		 JOIN agents a ON a.id = m.agent_id
		 WHERE m.timestamp >= ? AND c.remote_hostname IS NOT NULL AND c.remote_hostname != ''
		 GROUP BY a.hostname, c.remote_hostname
		 ORDER BY total DESC
		 LIMIT ?`,
		since.Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []PairTraffic
	for rows.Next() {
		var p PairTraffic
		if err := rows.Scan(&p.FromHost, &p.ToHost, &p.Bytes); err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func (s *SQLiteStore) History(start, end time.Time, hostname string) ([]HistoryRow, error) {
	query := `SELECT m.timestamp, a.hostname, m.upload_mbps, m.download_mbps, m.bytes_sent, m.bytes_received
	          FROM metrics m
	          JOIN agents a ON a.id = m.agent_id
	          WHERE m.timestamp >= ? AND m.timestamp <= ?`
	args := []any{start.Unix(), end.Unix()}
	if hostname != "" {
		query += ` AND a.hostname = ?`
		args = append(args, hostname)
	}
	query += ` ORDER BY m.timestamp ASC`

	rows, err := s.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var ts int64
		if err := rows.Scan(&ts, &h.Hostname, &h.UploadMbps, &h.DownloadMbps, &h.BytesSent, &h.BytesReceived); err != nil {
			return nil, err
		}
		h.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping() error {
	var one int
	return s.DB.QueryRow(`SELECT 1`).Scan(&one)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*AgentRecord, error) {
	var rec AgentRecord
	var firstSeen, lastSeen int64
	if err := row.Scan(&rec.ID, &rec.Hostname, &rec.TailscaleIP, &rec.OSType, &firstSeen, &lastSeen, &rec.Status); err != nil {
		return nil, err
	}
	rec.FirstSeen = time.Unix(firstSeen, 0).UTC()
	rec.LastSeen = time.Unix(lastSeen, 0).UTC()
	return &rec, nil
}

func scanMetric(row rowScanner) (*MetricRecord, error) {
	var m MetricRecord
	var ts int64
	if err := row.Scan(&m.ID, &m.AgentID, &ts, &m.BytesSent, &m.BytesReceived,
		&m.PacketsSent, &m.PacketsReceived, &m.UploadMbps, &m.DownloadMbps, &m.ActiveConnections); err != nil {
		return nil, err
	}
	m.Timestamp = time.Unix(ts, 0).UTC()
	return &m, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
