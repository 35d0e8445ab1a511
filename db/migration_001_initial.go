package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "Initial schema - sessions, messages, settings",
		Up:          migration001_initial,
	})
}

func migration001_initial(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Sessions table. pending_json carries a serialized interruption
	// (question or permission request) so it survives restarts.
	_, err = tx.Exec(`
		CREATE TABLE chat_sessions (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			runtime_session_id TEXT,
			title TEXT,
			pending_json TEXT,
			total_cost_usd REAL NOT NULL DEFAULT 0,
			total_turns INTEGER NOT NULL DEFAULT 0,
			archived_at INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			last_message_at INTEGER
		);

		CREATE UNIQUE INDEX idx_chat_sessions_runtime_id ON chat_sessions(runtime_session_id)
			WHERE runtime_session_id IS NOT NULL;
		CREATE INDEX idx_chat_sessions_agent_id ON chat_sessions(agent_id);
		CREATE INDEX idx_chat_sessions_updated_at ON chat_sessions(updated_at);
	`)
	if err != nil {
		return err
	}

	// Messages table. content is the JSON-encoded content block array.
	_, err = tx.Exec(`
		CREATE TABLE chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX idx_chat_messages_session ON chat_messages(session_id, created_at);
	`)
	if err != nil {
		return err
	}

	// Settings table (key-value)
	_, err = tx.Exec(`
		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER
		);
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}
