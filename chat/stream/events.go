package stream

import (
	"encoding/json"
)

// EventType identifies the type of stream event
type EventType string

const (
	EventTypeSessionStart           EventType = "session_start"
	EventTypeSessionCleared         EventType = "session_cleared"
	EventTypeAssistant              EventType = "assistant"
	EventTypeAskUserQuestion        EventType = "ask_user_question"
	EventTypePermissionRequest      EventType = "permission_request"
	EventTypePermissionAcknowledged EventType = "permission_acknowledged"
	EventTypeResult                 EventType = "result"
	EventTypeError                  EventType = "error"
	EventTypeHeartbeat              EventType = "heartbeat"
)

// Event is the interface for all decoded stream events
type Event interface {
	GetType() EventType
}

// SessionStartEvent delivers the backend-assigned session id. It may repeat
// the current id; adoption is idempotent.
type SessionStartEvent struct {
	SessionID string `json:"sessionId"`
}

func (SessionStartEvent) GetType() EventType { return EventTypeSessionStart }

// SessionClearedEvent replaces the session wholesale: the old id is dead
// and every accumulated message is discarded
type SessionClearedEvent struct {
	OldSessionID string `json:"oldSessionId"`
	NewSessionID string `json:"newSessionId"`
}

func (SessionClearedEvent) GetType() EventType { return EventTypeSessionCleared }

// AssistantEvent carries a batch of content blocks for the in-progress
// assistant message. Batches may repeat blocks already delivered.
type AssistantEvent struct {
	Content []ContentBlock `json:"content"`
	Model   string         `json:"model,omitempty"`
}

func (AssistantEvent) GetType() EventType { return EventTypeAssistant }

// AskUserQuestionEvent interrupts the turn until the user answers
type AskUserQuestionEvent struct {
	ToolUseID string     `json:"toolUseId"`
	Questions []Question `json:"questions"`
	SessionID string     `json:"sessionId,omitempty"`
}

func (AskUserQuestionEvent) GetType() EventType { return EventTypeAskUserQuestion }

// PermissionRequestEvent interrupts the turn until the user approves or
// denies a tool invocation
type PermissionRequestEvent struct {
	SessionID string         `json:"sessionId"`
	RequestID string         `json:"requestId"`
	ToolName  string         `json:"toolName"`
	ToolInput map[string]any `json:"toolInput"`
	Reason    string         `json:"reason"`
	Options   []string       `json:"options"`
}

func (PermissionRequestEvent) GetType() EventType { return EventTypePermissionRequest }

// PermissionAcknowledgedEvent confirms a permission decision was recorded.
// The turn that receives it produced no visible content.
type PermissionAcknowledgedEvent struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
}

func (PermissionAcknowledgedEvent) GetType() EventType { return EventTypePermissionAcknowledged }

// ResultEvent reports turn statistics. Informational: the physical stream
// close is the completion signal, not this event.
type ResultEvent struct {
	SessionID    string   `json:"session_id"`
	DurationMs   int      `json:"duration_ms"`
	TotalCostUSD *float64 `json:"total_cost_usd,omitempty"`
	NumTurns     int      `json:"num_turns"`
	IsError      bool     `json:"is_error,omitempty"`
}

func (ResultEvent) GetType() EventType { return EventTypeResult }

// ErrorEvent carries a server-reported application error. It is rendered as
// message content, not treated as a fault of the stream.
type ErrorEvent struct {
	// Message is the first non-empty of the wire's message/error/detail
	// fields, or a generic fallback
	Message string
	// Detail preserves the wire's detail field (often a traceback) for logs
	Detail string
}

func (ErrorEvent) GetType() EventType { return EventTypeError }

// HeartbeatEvent is a keep-alive; accepted and ignored. The timestamp may
// arrive as a number or a string depending on the runtime version.
type HeartbeatEvent struct {
	Timestamp any `json:"timestamp,omitempty"`
}

func (HeartbeatEvent) GetType() EventType { return EventTypeHeartbeat }

// RawEvent preserves events of unrecognized type for passthrough
type RawEvent struct {
	Type EventType
	Raw  json.RawMessage
}

func (e RawEvent) GetType() EventType { return e.Type }
