package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     2,
		Description: "Tool approvals and permission decision log",
		Up:          migration002_permissions,
	})
}

func migration002_permissions(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// "Always allow" approvals, keyed by agent + tool + input hash
	_, err = tx.Exec(`
		CREATE TABLE tool_approvals (
			agent_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			input_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (agent_id, tool_name, input_hash)
		);
	`)
	if err != nil {
		return err
	}

	// Audit log of every permission prompt outcome
	_, err = tx.Exec(`
		CREATE TABLE permission_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			request_id TEXT NOT NULL,
			tool_name TEXT,
			decision TEXT NOT NULL,
			feedback TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX idx_permission_decisions_session ON permission_decisions(session_id, created_at);
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}
