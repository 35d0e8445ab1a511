package db

import (
	"database/sql"
	"time"
)

// Session status filter values for ListChatSessions
const (
	SessionStatusActive   = "active"
	SessionStatusArchived = "archived"
	SessionStatusAll      = "all"
)

// ChatSession represents a console conversation. The console id is stable
// for the lifetime of the conversation; the runtime session id is assigned
// by the agent runtime on the first turn and may be re-keyed if the runtime
// clears the conversation mid-stream.
type ChatSession struct {
	ID               string  `json:"id"`
	AgentID          string  `json:"agentId"`
	RuntimeSessionID *string `json:"runtimeSessionId,omitempty"`
	Title            *string `json:"title,omitempty"`
	PendingJSON      *string `json:"-"`
	TotalCostUSD     float64 `json:"totalCostUsd"`
	TotalTurns       int64   `json:"totalTurns"`
	ArchivedAt       *int64  `json:"archivedAt,omitempty"`
	CreatedAt        int64   `json:"createdAt"`
	UpdatedAt        int64   `json:"updatedAt"`
	LastMessageAt    *int64  `json:"lastMessageAt,omitempty"`
}

// Archived reports whether the session has been archived
func (s *ChatSession) Archived() bool {
	return s.ArchivedAt != nil
}

// ChatMessage represents a finalized transcript message. Content holds the
// JSON-encoded content block array exactly as the chat layer serialized it.
type ChatMessage struct {
	ID        string  `json:"id"`
	SessionID string  `json:"sessionId"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Model     *string `json:"model,omitempty"`
	CreatedAt int64   `json:"createdAt"`
}

// Setting represents a settings record
type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
}

// ToolApproval records an "always allow" decision for a tool invocation.
// Keyed by agent + tool + hash of the tool input so an identical future
// request can be approved without asking again.
type ToolApproval struct {
	AgentID   string `json:"agentId"`
	ToolName  string `json:"toolName"`
	InputHash string `json:"inputHash"`
	CreatedAt int64  `json:"createdAt"`
}

// PermissionDecision is an audit record of a permission prompt outcome
type PermissionDecision struct {
	ID        int64   `json:"id"`
	SessionID string  `json:"sessionId"`
	RequestID string  `json:"requestId"`
	ToolName  *string `json:"toolName,omitempty"`
	Decision  string  `json:"decision"`
	Feedback  *string `json:"feedback,omitempty"`
	CreatedAt int64   `json:"createdAt"`
}

// scanChatSession scans a row into a ChatSession
func scanChatSession(row interface{ Scan(...any) error }) (ChatSession, error) {
	var s ChatSession
	var runtimeID, title, pending sql.NullString
	var archivedAt, lastMessageAt sql.NullInt64
	err := row.Scan(
		&s.ID, &s.AgentID, &runtimeID, &title, &pending,
		&s.TotalCostUSD, &s.TotalTurns, &archivedAt,
		&s.CreatedAt, &s.UpdatedAt, &lastMessageAt,
	)
	s.RuntimeSessionID = StringPtr(runtimeID)
	s.Title = StringPtr(title)
	s.PendingJSON = StringPtr(pending)
	s.ArchivedAt = IntPtr(archivedAt)
	s.LastMessageAt = IntPtr(lastMessageAt)
	return s, err
}

// scanChatMessage scans a row into a ChatMessage
func scanChatMessage(row interface{ Scan(...any) error }) (ChatMessage, error) {
	var m ChatMessage
	var model sql.NullString
	err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &model, &m.CreatedAt)
	m.Model = StringPtr(model)
	return m, err
}

// NowMs returns the current time as Unix milliseconds (int64)
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// NullString converts *string to sql.NullString
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr converts sql.NullString to *string
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

// IntPtr converts sql.NullInt64 to *int64
func IntPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
