package chat

import (
	"encoding/json"

	"github.com/tidewell/agentdeck/chat/stream"
)

// Pending interruption kinds as serialized in pending_json and frames
const (
	PendingKindQuestion   = "question"
	PendingKindPermission = "permission"
)

// PendingView is the serialized form of a session's pending interruption.
// It is stored verbatim in the sessions table and sent to browser clients,
// so the shape is part of the console API.
type PendingView struct {
	Kind       string          `json:"kind"`
	Question   *QuestionView   `json:"question,omitempty"`
	Permission *PermissionView `json:"permission,omitempty"`
}

// QuestionView mirrors a pending ask_user_question interruption
type QuestionView struct {
	ToolUseID string            `json:"toolUseId"`
	Questions []stream.Question `json:"questions"`
}

// PermissionView mirrors a pending permission request
type PermissionView struct {
	RequestID string         `json:"requestId"`
	ToolName  string         `json:"toolName"`
	ToolInput map[string]any `json:"toolInput,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Options   []string       `json:"options,omitempty"`
}

// pendingView projects a session's pending interruption, or nil
func pendingView(p stream.PendingInterruption) *PendingView {
	switch v := p.(type) {
	case *stream.PendingQuestion:
		return &PendingView{
			Kind:     PendingKindQuestion,
			Question: &QuestionView{ToolUseID: v.ToolUseID, Questions: v.Questions},
		}
	case *stream.PendingPermission:
		return &PendingView{
			Kind: PendingKindPermission,
			Permission: &PermissionView{
				RequestID: v.RequestID,
				ToolName:  v.ToolName,
				ToolInput: v.ToolInput,
				Reason:    v.Reason,
				Options:   v.Options,
			},
		}
	}
	return nil
}

// encodePending serializes the pending interruption for the sessions
// table. nil means no interruption (stored as NULL).
func encodePending(p stream.PendingInterruption) *string {
	view := pendingView(p)
	if view == nil {
		return nil
	}
	data, err := json.Marshal(view)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode pending interruption")
		return nil
	}
	s := string(data)
	return &s
}

// DecodePendingView parses a stored pending_json value. Returns nil for
// NULL, empty, or unreadable values.
func DecodePendingView(raw *string) *PendingView {
	if raw == nil || *raw == "" {
		return nil
	}
	var view PendingView
	if err := json.Unmarshal([]byte(*raw), &view); err != nil {
		logger.Warn().Err(err).Msg("failed to decode stored pending interruption")
		return nil
	}
	return &view
}

// applyPending restores a decoded interruption onto a rebuilt session
func applyPending(session *stream.Session, view *PendingView) {
	if view == nil {
		return
	}

	switch view.Kind {
	case PendingKindQuestion:
		if view.Question != nil {
			session.SetPendingQuestion(&stream.PendingQuestion{
				ToolUseID: view.Question.ToolUseID,
				Questions: view.Question.Questions,
			})
		}
	case PendingKindPermission:
		if view.Permission != nil {
			session.SetPendingPermission(&stream.PendingPermission{
				RequestID: view.Permission.RequestID,
				ToolName:  view.Permission.ToolName,
				ToolInput: view.Permission.ToolInput,
				Reason:    view.Permission.Reason,
				Options:   view.Permission.Options,
			})
		}
	}
}
