package db

import (
	"database/sql"
)

// SearchQueueItem is one transcript message waiting to be indexed, joined
// with the session metadata the search document denormalizes.
type SearchQueueItem struct {
	MessageID string
	SessionID string
	AgentID   string
	Role      string
	Content   string
	Title     *string
	CreatedAt int64
}

// ListUnindexedChatMessages returns messages waiting for search indexing,
// oldest first
func ListUnindexedChatMessages(limit int) ([]SearchQueueItem, error) {
	return Select(`
		SELECT m.id, m.session_id, s.agent_id, m.role, m.content, s.title, m.created_at
		FROM chat_messages m
		JOIN chat_sessions s ON s.id = m.session_id
		WHERE m.indexed_at IS NULL
		ORDER BY m.created_at ASC, m.id ASC
		LIMIT ?`,
		[]QueryParam{limit},
		func(rows *sql.Rows) (SearchQueueItem, error) {
			var item SearchQueueItem
			err := rows.Scan(&item.MessageID, &item.SessionID, &item.AgentID,
				&item.Role, &item.Content, &item.Title, &item.CreatedAt)
			return item, err
		},
	)
}

// MarkChatMessagesIndexed stamps rows as indexed
func MarkChatMessagesIndexed(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	now := NowMs()
	return Transaction(func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`UPDATE chat_messages SET indexed_at = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, id := range ids {
			if _, err := stmt.Exec(now, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// RequeueSessionSearchIndex marks a session's whole transcript for
// re-indexing. Session titles are denormalized into every search document,
// so a title change requeues them all.
func RequeueSessionSearchIndex(sessionID string) error {
	_, err := Run(`UPDATE chat_messages SET indexed_at = NULL WHERE session_id = ?`, sessionID)
	return err
}

// CountUnindexedChatMessages reports the search sync backlog
func CountUnindexedChatMessages() (int64, error) {
	return Count(`SELECT COUNT(*) FROM chat_messages WHERE indexed_at IS NULL`)
}
