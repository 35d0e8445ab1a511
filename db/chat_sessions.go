package db

import (
	"database/sql"
)

const chatSessionColumns = `id, agent_id, runtime_session_id, title, pending_json,
	   total_cost_usd, total_turns, archived_at, created_at, updated_at, last_message_at`

// CreateChatSession inserts a new session row. CreatedAt/UpdatedAt are
// filled in if the caller left them zero.
func CreateChatSession(s *ChatSession) error {
	now := NowMs()
	if s.CreatedAt == 0 {
		s.CreatedAt = now
	}
	if s.UpdatedAt == 0 {
		s.UpdatedAt = now
	}

	_, err := Run(`
		INSERT INTO chat_sessions (id, agent_id, runtime_session_id, title, pending_json,
			total_cost_usd, total_turns, archived_at, created_at, updated_at, last_message_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.AgentID, NullString(s.RuntimeSessionID), NullString(s.Title), NullString(s.PendingJSON),
		s.TotalCostUSD, s.TotalTurns, nullInt(s.ArchivedAt), s.CreatedAt, s.UpdatedAt, nullInt(s.LastMessageAt),
	)
	return err
}

// GetChatSession retrieves a session by console id (nil if not found)
func GetChatSession(id string) (*ChatSession, error) {
	return SelectOne(
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE id = ?`,
		[]QueryParam{id},
		func(row *sql.Row) (ChatSession, error) { return scanChatSession(row) },
	)
}

// GetChatSessionByRuntimeID retrieves a session by its runtime-assigned id
func GetChatSessionByRuntimeID(runtimeID string) (*ChatSession, error) {
	return SelectOne(
		`SELECT `+chatSessionColumns+` FROM chat_sessions WHERE runtime_session_id = ?`,
		[]QueryParam{runtimeID},
		func(row *sql.Row) (ChatSession, error) { return scanChatSession(row) },
	)
}

// SessionListFilter controls ListChatSessions pagination and filtering
type SessionListFilter struct {
	// Status is "active", "archived", or "all" (default "active")
	Status string
	// Limit caps the page size (default 50)
	Limit int
	// Cursor returns sessions updated strictly before this epoch-ms value.
	// Zero means start from the newest.
	Cursor int64
	// AgentID filters to a single agent when non-empty
	AgentID string
}

// ListChatSessions returns sessions ordered by updated_at descending
func ListChatSessions(filter SessionListFilter) ([]ChatSession, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	query := `SELECT ` + chatSessionColumns + ` FROM chat_sessions WHERE 1=1`
	var params []QueryParam

	switch filter.Status {
	case SessionStatusArchived:
		query += ` AND archived_at IS NOT NULL`
	case SessionStatusAll:
		// no filter
	default:
		query += ` AND archived_at IS NULL`
	}

	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		params = append(params, filter.AgentID)
	}
	if filter.Cursor > 0 {
		query += ` AND updated_at < ?`
		params = append(params, filter.Cursor)
	}

	query += ` ORDER BY updated_at DESC LIMIT ?`
	params = append(params, filter.Limit)

	return Select(query, params, func(rows *sql.Rows) (ChatSession, error) {
		return scanChatSession(rows)
	})
}

// CountChatSessions counts sessions matching a status filter
func CountChatSessions(status string) (int64, error) {
	switch status {
	case SessionStatusArchived:
		return Count(`SELECT COUNT(*) FROM chat_sessions WHERE archived_at IS NOT NULL`)
	case SessionStatusAll:
		return Count(`SELECT COUNT(*) FROM chat_sessions`)
	default:
		return Count(`SELECT COUNT(*) FROM chat_sessions WHERE archived_at IS NULL`)
	}
}

// SetChatSessionRuntimeID records the runtime-assigned session id
func SetChatSessionRuntimeID(id, runtimeID string) error {
	_, err := Run(
		`UPDATE chat_sessions SET runtime_session_id = ?, updated_at = ? WHERE id = ?`,
		runtimeID, NowMs(), id,
	)
	return err
}

// ResetChatSessionRuntime re-keys a session to a new runtime session id and
// drops its persisted transcript. Used when the runtime clears a conversation
// mid-stream and continues under a fresh id.
func ResetChatSessionRuntime(id, newRuntimeID string) error {
	return Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`UPDATE chat_sessions SET runtime_session_id = ?, updated_at = ? WHERE id = ?`,
			newRuntimeID, NowMs(), id,
		); err != nil {
			return err
		}
		_, err := tx.Exec(`DELETE FROM chat_messages WHERE session_id = ?`, id)
		return err
	})
}

// ListUntitledChatSessions returns active sessions that completed at least
// one turn but have no title yet, oldest activity first
func ListUntitledChatSessions(limit int) ([]ChatSession, error) {
	return Select(
		`SELECT `+chatSessionColumns+`
		FROM chat_sessions
		WHERE title IS NULL AND archived_at IS NULL AND total_turns > 0
		ORDER BY last_message_at ASC
		LIMIT ?`,
		[]QueryParam{limit},
		func(rows *sql.Rows) (ChatSession, error) { return scanChatSession(rows) },
	)
}

// UpdateChatSessionTitle sets the display title
func UpdateChatSessionTitle(id, title string) error {
	_, err := Run(
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, NowMs(), id,
	)
	return err
}

// SetChatSessionPending stores the serialized pending interruption
// (nil clears it)
func SetChatSessionPending(id string, pendingJSON *string) error {
	_, err := Run(
		`UPDATE chat_sessions SET pending_json = ?, updated_at = ? WHERE id = ?`,
		NullString(pendingJSON), NowMs(), id,
	)
	return err
}

// AddChatSessionUsage accumulates cost and turn counters after a turn ends
func AddChatSessionUsage(id string, costUSD float64, turns int64, lastMessageAt int64) error {
	_, err := Run(`
		UPDATE chat_sessions SET
			total_cost_usd = total_cost_usd + ?,
			total_turns = total_turns + ?,
			last_message_at = ?,
			updated_at = ?
		WHERE id = ?`,
		costUSD, turns, lastMessageAt, NowMs(), id,
	)
	return err
}

// ArchiveChatSession marks a session as archived
func ArchiveChatSession(id string) error {
	_, err := Run(
		`UPDATE chat_sessions SET archived_at = ?, updated_at = ? WHERE id = ? AND archived_at IS NULL`,
		NowMs(), NowMs(), id,
	)
	return err
}

// UnarchiveChatSession removes the archived mark
func UnarchiveChatSession(id string) error {
	_, err := Run(
		`UPDATE chat_sessions SET archived_at = NULL, updated_at = ? WHERE id = ?`,
		NowMs(), id,
	)
	return err
}

// DeleteChatSession removes a session and (via cascade) its messages
func DeleteChatSession(id string) error {
	_, err := Run(`DELETE FROM chat_sessions WHERE id = ?`, id)
	return err
}

// ChatSessionExists checks if a session row exists
func ChatSessionExists(id string) (bool, error) {
	return Exists(`SELECT 1 FROM chat_sessions WHERE id = ?`, id)
}

// nullInt converts *int64 to sql.NullInt64
func nullInt(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
