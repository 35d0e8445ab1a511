package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
)

// HashToolInput returns the hex digest used as the tool_approvals input key.
// Hashing the raw input JSON means an identical future request matches
// without parsing.
func HashToolInput(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}

// SaveToolApproval records an "always allow" decision. Saving the same
// approval twice is a no-op.
func SaveToolApproval(agentID, toolName, inputHash string) error {
	_, err := Run(`
		INSERT INTO tool_approvals (agent_id, tool_name, input_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(agent_id, tool_name, input_hash) DO NOTHING`,
		agentID, toolName, inputHash, NowMs(),
	)
	return err
}

// HasToolApproval checks whether an identical tool invocation was
// previously approved with "always allow"
func HasToolApproval(agentID, toolName, inputHash string) (bool, error) {
	return Exists(
		`SELECT 1 FROM tool_approvals WHERE agent_id = ? AND tool_name = ? AND input_hash = ?`,
		agentID, toolName, inputHash,
	)
}

// ListToolApprovals returns all stored approvals for an agent
func ListToolApprovals(agentID string) ([]ToolApproval, error) {
	return Select(
		`SELECT agent_id, tool_name, input_hash, created_at
		 FROM tool_approvals WHERE agent_id = ? ORDER BY created_at DESC`,
		[]QueryParam{agentID},
		func(rows *sql.Rows) (ToolApproval, error) {
			var a ToolApproval
			err := rows.Scan(&a.AgentID, &a.ToolName, &a.InputHash, &a.CreatedAt)
			return a, err
		},
	)
}

// DeleteToolApprovals revokes all stored approvals for an agent
func DeleteToolApprovals(agentID string) (int64, error) {
	result, err := RunWithResult(`DELETE FROM tool_approvals WHERE agent_id = ?`, agentID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}

// RecordPermissionDecision appends an audit record of a permission prompt
// outcome and fills in the assigned id
func RecordPermissionDecision(d *PermissionDecision) error {
	if d.CreatedAt == 0 {
		d.CreatedAt = NowMs()
	}

	result, err := RunWithResult(`
		INSERT INTO permission_decisions (session_id, request_id, tool_name, decision, feedback, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.SessionID, d.RequestID, NullString(d.ToolName), d.Decision, NullString(d.Feedback), d.CreatedAt,
	)
	if err != nil {
		return err
	}

	d.ID = result.LastInsertID
	return nil
}

// ListPermissionDecisions returns the decision log for a session,
// newest first
func ListPermissionDecisions(sessionID string, limit int) ([]PermissionDecision, error) {
	if limit <= 0 {
		limit = 100
	}

	return Select(
		`SELECT id, session_id, request_id, tool_name, decision, feedback, created_at
		 FROM permission_decisions WHERE session_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		[]QueryParam{sessionID, limit},
		func(rows *sql.Rows) (PermissionDecision, error) {
			var d PermissionDecision
			var toolName, feedback sql.NullString
			err := rows.Scan(&d.ID, &d.SessionID, &d.RequestID, &toolName, &d.Decision, &feedback, &d.CreatedAt)
			d.ToolName = StringPtr(toolName)
			d.Feedback = StringPtr(feedback)
			return d, err
		},
	)
}
