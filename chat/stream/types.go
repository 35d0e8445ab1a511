package stream

import (
	"time"
)

// --- Content Block Types ---

// ContentBlock is the interface for all message content blocks
type ContentBlock interface {
	BlockType() string
}

// TextBlock represents plain text content
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (TextBlock) BlockType() string { return "text" }

// NewTextBlock builds a text content block
func NewTextBlock(text string) TextBlock {
	return TextBlock{Type: "text", Text: text}
}

// ToolUseBlock represents a tool invocation
type ToolUseBlock struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func (ToolUseBlock) BlockType() string { return "tool_use" }

// ToolResultBlock represents the result of a tool execution
type ToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (ToolResultBlock) BlockType() string { return "tool_result" }

// AskUserQuestionBlock surfaces a clarifying question the agent asked
// mid-turn. These blocks are appended once by construction and never
// deduplicated.
type AskUserQuestionBlock struct {
	Type      string     `json:"type"`
	ToolUseID string     `json:"tool_use_id"`
	Questions []Question `json:"questions"`
}

func (AskUserQuestionBlock) BlockType() string { return "ask_user_question" }

// Question is one entry of an ask_user_question interruption. The shape
// follows the runtime's AskUserQuestion tool input and is passed through
// as received.
type Question struct {
	Question    string           `json:"question"`
	Header      string           `json:"header,omitempty"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`
}

// QuestionOption is one selectable answer for a Question
type QuestionOption struct {
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// --- Messages ---

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in a session transcript. Content is append-only
// while the turn that owns it is active and immutable once that turn ends.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   []ContentBlock `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Model     string         `json:"model,omitempty"`
}

// --- Runtime Collaborators ---

// Agent describes one agent configured on the runtime
type Agent struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Model            string `json:"model,omitempty"`
	PermissionMode   string `json:"permission_mode,omitempty"`
	WorkingDirectory string `json:"working_directory,omitempty"`
	Status           string `json:"status,omitempty"`
}
