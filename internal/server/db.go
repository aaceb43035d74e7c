package server

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// OpenDB opens the collector database and applies the schema. WAL keeps
// aggregation reads from serializing behind concurrent ingestion writes.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON;`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			hostname TEXT NOT NULL,
			tailscale_ip TEXT NOT NULL UNIQUE,
			os_type TEXT NOT NULL,
			api_key_hash TEXT NOT NULL,
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'offline'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_hostname ON agents(hostname);`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			bytes_sent INTEGER NOT NULL,
			bytes_received INTEGER NOT NULL,
			packets_sent INTEGER NOT NULL DEFAULT 0,
			packets_received INTEGER NOT NULL DEFAULT 0,
			upload_mbps REAL NOT NULL DEFAULT 0,
			download_mbps REAL NOT NULL DEFAULT 0,
			active_connections INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(agent_id) REFERENCES agents(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_agent_ts ON metrics(agent_id, timestamp);`,
		`CREATE TABLE IF NOT EXISTS connections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			metric_id INTEGER NOT NULL,
			remote_ip TEXT NOT NULL,
			remote_hostname TEXT,
			remote_port INTEGER,
			bytes_transferred INTEGER NOT NULL DEFAULT 0,
			state TEXT,
			FOREIGN KEY(metric_id) REFERENCES metrics(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_connections_metric ON connections(metric_id, remote_ip);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
