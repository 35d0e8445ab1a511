package db

import (
	"database/sql"
)

// SaveChatMessage upserts a finalized transcript message. Saves are
// idempotent so re-settling a turn after a crash cannot duplicate rows.
// A content change clears indexed_at to requeue the row for search sync.
func SaveChatMessage(m *ChatMessage) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = NowMs()
	}

	_, err := Run(`
		INSERT INTO chat_messages (id, session_id, role, content, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			model = excluded.model,
			indexed_at = CASE
				WHEN chat_messages.content = excluded.content THEN chat_messages.indexed_at
				ELSE NULL
			END`,
		m.ID, m.SessionID, m.Role, m.Content, NullString(m.Model), m.CreatedAt,
	)
	return err
}

// SaveChatMessages upserts a batch of messages in one transaction
func SaveChatMessages(messages []ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}

	return Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO chat_messages (id, session_id, role, content, model, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				model = excluded.model,
				indexed_at = CASE
					WHEN chat_messages.content = excluded.content THEN chat_messages.indexed_at
					ELSE NULL
				END`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range messages {
			m := &messages[i]
			if m.CreatedAt == 0 {
				m.CreatedAt = NowMs()
			}
			if _, err := stmt.Exec(m.ID, m.SessionID, m.Role, m.Content, NullString(m.Model), m.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListChatMessages returns a session's transcript in chronological order
func ListChatMessages(sessionID string) ([]ChatMessage, error) {
	return Select(`
		SELECT id, session_id, role, content, model, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC`,
		[]QueryParam{sessionID},
		func(rows *sql.Rows) (ChatMessage, error) { return scanChatMessage(rows) },
	)
}

// CountChatMessages counts a session's persisted messages
func CountChatMessages(sessionID string) (int64, error) {
	return Count(`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, sessionID)
}
