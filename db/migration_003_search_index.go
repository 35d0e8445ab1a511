package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     3,
		Description: "Search index tracking on messages",
		Up:          migration003_searchIndex,
	})
}

func migration003_searchIndex(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// indexed_at is NULL while the row waits for the search sync worker
	_, err = tx.Exec(`
		ALTER TABLE chat_messages ADD COLUMN indexed_at INTEGER;

		CREATE INDEX idx_chat_messages_unindexed ON chat_messages(created_at)
			WHERE indexed_at IS NULL;
	`)
	if err != nil {
		return err
	}

	return tx.Commit()
}
