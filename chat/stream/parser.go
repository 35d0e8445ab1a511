package stream

import (
	"encoding/json"
)

// ParseEvent parses one raw event payload into a typed Event
func ParseEvent(data []byte) (Event, error) {
	if len(data) == 0 {
		return nil, &EventParseError{Message: "empty event data", Data: data}
	}

	// Probe the type field first
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, &EventParseError{Message: "failed to parse event type", Data: data, Cause: err}
	}
	if base.Type == "" {
		return nil, &EventParseError{Message: "event missing 'type' field", Data: data}
	}

	switch base.Type {
	case "session_start":
		var ev SessionStartEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &EventParseError{Message: "failed to parse session_start event", Data: data, Cause: err}
		}
		return ev, nil

	case "session_cleared":
		var ev SessionClearedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &EventParseError{Message: "failed to parse session_cleared event", Data: data, Cause: err}
		}
		return ev, nil

	case "assistant":
		return parseAssistantEvent(data)

	case "ask_user_question":
		var ev AskUserQuestionEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &EventParseError{Message: "failed to parse ask_user_question event", Data: data, Cause: err}
		}
		return ev, nil

	case "permission_request":
		var ev PermissionRequestEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &EventParseError{Message: "failed to parse permission_request event", Data: data, Cause: err}
		}
		return ev, nil

	case "permission_acknowledged":
		var ev PermissionAcknowledgedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &EventParseError{Message: "failed to parse permission_acknowledged event", Data: data, Cause: err}
		}
		return ev, nil

	case "result":
		var ev ResultEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &EventParseError{Message: "failed to parse result event", Data: data, Cause: err}
		}
		return ev, nil

	case "error":
		return parseErrorEvent(data)

	case "heartbeat":
		var ev HeartbeatEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, &EventParseError{Message: "failed to parse heartbeat event", Data: data, Cause: err}
		}
		return ev, nil

	default:
		// Unknown type: preserve for passthrough, callers ignore it
		return RawEvent{Type: EventType(base.Type), Raw: data}, nil
	}
}

func parseAssistantEvent(data []byte) (Event, error) {
	var raw struct {
		Content json.RawMessage `json:"content"`
		Model   string          `json:"model,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &EventParseError{Message: "failed to parse assistant event", Data: data, Cause: err}
	}

	var blocks []ContentBlock
	if len(raw.Content) > 0 {
		var err error
		blocks, err = ParseContentBlocks(raw.Content)
		if err != nil {
			return nil, &EventParseError{Message: "failed to parse assistant content", Data: data, Cause: err}
		}
	}

	return AssistantEvent{Content: blocks, Model: raw.Model}, nil
}

func parseErrorEvent(data []byte) (Event, error) {
	var raw struct {
		Message string `json:"message,omitempty"`
		Error   string `json:"error,omitempty"`
		Detail  string `json:"detail,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &EventParseError{Message: "failed to parse error event", Data: data, Cause: err}
	}

	// First non-empty of message/error/detail, else a generic fallback
	msg := raw.Message
	if msg == "" {
		msg = raw.Error
	}
	if msg == "" {
		msg = raw.Detail
	}
	if msg == "" {
		msg = "unknown error"
	}

	return ErrorEvent{Message: msg, Detail: raw.Detail}, nil
}

// ParseContentBlocks decodes a JSON array of content blocks into typed
// blocks. Blocks of unrecognized type are dropped.
func ParseContentBlocks(data []byte) ([]ContentBlock, error) {
	var raw []struct {
		Type      string         `json:"type"`
		Text      string         `json:"text,omitempty"`
		ID        string         `json:"id,omitempty"`
		Name      string         `json:"name,omitempty"`
		Input     map[string]any `json:"input,omitempty"`
		ToolUseID string         `json:"tool_use_id,omitempty"`
		Content   string         `json:"content,omitempty"`
		IsError   bool           `json:"is_error,omitempty"`
		Questions []Question     `json:"questions,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	blocks := make([]ContentBlock, 0, len(raw))
	for _, b := range raw {
		switch b.Type {
		case "text":
			blocks = append(blocks, TextBlock{
				Type: "text",
				Text: b.Text,
			})

		case "tool_use":
			blocks = append(blocks, ToolUseBlock{
				Type:  "tool_use",
				ID:    b.ID,
				Name:  b.Name,
				Input: b.Input,
			})

		case "tool_result":
			blocks = append(blocks, ToolResultBlock{
				Type:      "tool_result",
				ToolUseID: b.ToolUseID,
				Content:   b.Content,
				IsError:   b.IsError,
			})

		case "ask_user_question":
			blocks = append(blocks, AskUserQuestionBlock{
				Type:      "ask_user_question",
				ToolUseID: b.ToolUseID,
				Questions: b.Questions,
			})
		}
	}

	return blocks, nil
}
