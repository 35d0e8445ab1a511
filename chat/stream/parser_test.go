package stream

import (
	"errors"
	"testing"
)

// =============================================================================
// Event Parsing
// =============================================================================

func TestParseEvent_SessionStart(t *testing.T) {
	event, err := ParseEvent([]byte(`{"type":"session_start","sessionId":"sess-123"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start, ok := event.(SessionStartEvent)
	if !ok {
		t.Fatalf("expected SessionStartEvent, got %T", event)
	}
	if start.SessionID != "sess-123" {
		t.Errorf("expected session id sess-123, got %s", start.SessionID)
	}
	if start.GetType() != EventTypeSessionStart {
		t.Errorf("unexpected event type %s", start.GetType())
	}
}

func TestParseEvent_SessionCleared(t *testing.T) {
	event, err := ParseEvent([]byte(`{"type":"session_cleared","oldSessionId":"sess-1","newSessionId":"sess-2"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cleared, ok := event.(SessionClearedEvent)
	if !ok {
		t.Fatalf("expected SessionClearedEvent, got %T", event)
	}
	if cleared.OldSessionID != "sess-1" || cleared.NewSessionID != "sess-2" {
		t.Errorf("unexpected ids: old=%s new=%s", cleared.OldSessionID, cleared.NewSessionID)
	}
}

func TestParseEvent_Assistant(t *testing.T) {
	data := `{"type":"assistant","model":"claude-sonnet-4","content":[` +
		`{"type":"text","text":"Running it now."},` +
		`{"type":"tool_use","id":"tu-1","name":"Bash","input":{"command":"ls -la"}}]}`

	event, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assistant, ok := event.(AssistantEvent)
	if !ok {
		t.Fatalf("expected AssistantEvent, got %T", event)
	}
	if assistant.Model != "claude-sonnet-4" {
		t.Errorf("expected model claude-sonnet-4, got %s", assistant.Model)
	}
	if len(assistant.Content) != 2 {
		t.Fatalf("expected 2 content blocks, got %d", len(assistant.Content))
	}

	text, ok := assistant.Content[0].(TextBlock)
	if !ok || text.Text != "Running it now." {
		t.Errorf("unexpected first block: %#v", assistant.Content[0])
	}
	toolUse, ok := assistant.Content[1].(ToolUseBlock)
	if !ok || toolUse.ID != "tu-1" || toolUse.Name != "Bash" {
		t.Errorf("unexpected second block: %#v", assistant.Content[1])
	}
	if cmd, _ := toolUse.Input["command"].(string); cmd != "ls -la" {
		t.Errorf("expected command input preserved, got %v", toolUse.Input)
	}
}

func TestParseEvent_AssistantEmptyContent(t *testing.T) {
	event, err := ParseEvent([]byte(`{"type":"assistant","content":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assistant := event.(AssistantEvent)
	if len(assistant.Content) != 0 {
		t.Errorf("expected no content blocks, got %d", len(assistant.Content))
	}
}

func TestParseEvent_AskUserQuestion(t *testing.T) {
	data := `{"type":"ask_user_question","toolUseId":"tu-9","sessionId":"sess-1","questions":[` +
		`{"question":"Which environment?","header":"Deploy","multiSelect":false,` +
		`"options":[{"label":"staging","description":"Safe"},{"label":"production"}]}]}`

	event, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	question, ok := event.(AskUserQuestionEvent)
	if !ok {
		t.Fatalf("expected AskUserQuestionEvent, got %T", event)
	}
	if question.ToolUseID != "tu-9" {
		t.Errorf("expected tool use id tu-9, got %s", question.ToolUseID)
	}
	if question.SessionID != "sess-1" {
		t.Errorf("expected session id sess-1, got %s", question.SessionID)
	}
	if len(question.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(question.Questions))
	}
	q := question.Questions[0]
	if q.Question != "Which environment?" || q.Header != "Deploy" {
		t.Errorf("unexpected question: %#v", q)
	}
	if len(q.Options) != 2 || q.Options[0].Label != "staging" {
		t.Errorf("unexpected options: %#v", q.Options)
	}
}

func TestParseEvent_PermissionRequest(t *testing.T) {
	data := `{"type":"permission_request","sessionId":"sess-1","requestId":"req-7",` +
		`"toolName":"Bash","toolInput":{"command":"rm -rf build"},"reason":"Destructive command",` +
		`"options":["approve","deny"]}`

	event, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	perm, ok := event.(PermissionRequestEvent)
	if !ok {
		t.Fatalf("expected PermissionRequestEvent, got %T", event)
	}
	if perm.RequestID != "req-7" || perm.ToolName != "Bash" {
		t.Errorf("unexpected request: %#v", perm)
	}
	if cmd, _ := perm.ToolInput["command"].(string); cmd != "rm -rf build" {
		t.Errorf("expected tool input preserved, got %v", perm.ToolInput)
	}
	if len(perm.Options) != 2 || perm.Options[0] != "approve" {
		t.Errorf("unexpected options: %v", perm.Options)
	}
}

func TestParseEvent_PermissionAcknowledged(t *testing.T) {
	event, err := ParseEvent([]byte(`{"type":"permission_acknowledged","request_id":"req-7","decision":"approve"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ack, ok := event.(PermissionAcknowledgedEvent)
	if !ok {
		t.Fatalf("expected PermissionAcknowledgedEvent, got %T", event)
	}
	if ack.RequestID != "req-7" || ack.Decision != "approve" {
		t.Errorf("unexpected acknowledgement: %#v", ack)
	}
}

func TestParseEvent_Result(t *testing.T) {
	data := `{"type":"result","session_id":"sess-1","duration_ms":5120,"total_cost_usd":0.0421,"num_turns":3}`

	event, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, ok := event.(ResultEvent)
	if !ok {
		t.Fatalf("expected ResultEvent, got %T", event)
	}
	if result.SessionID != "sess-1" || result.DurationMs != 5120 || result.NumTurns != 3 {
		t.Errorf("unexpected result: %#v", result)
	}
	if result.TotalCostUSD == nil || *result.TotalCostUSD != 0.0421 {
		t.Errorf("expected cost 0.0421, got %v", result.TotalCostUSD)
	}
}

func TestParseEvent_Heartbeat(t *testing.T) {
	for _, data := range []string{
		`{"type":"heartbeat","timestamp":1724489000.123}`,
		`{"type":"heartbeat","timestamp":"2026-08-24T10:00:00Z"}`,
		`{"type":"heartbeat"}`,
	} {
		event, err := ParseEvent([]byte(data))
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", data, err)
		}
		if _, ok := event.(HeartbeatEvent); !ok {
			t.Errorf("expected HeartbeatEvent for %s, got %T", data, event)
		}
	}
}

func TestParseEvent_UnknownTypePassthrough(t *testing.T) {
	data := `{"type":"telemetry","cpu":0.42}`

	event, err := ParseEvent([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, ok := event.(RawEvent)
	if !ok {
		t.Fatalf("expected RawEvent, got %T", event)
	}
	if raw.Type != "telemetry" {
		t.Errorf("expected type telemetry, got %s", raw.Type)
	}
	if string(raw.Raw) != data {
		t.Errorf("expected raw payload preserved, got %s", raw.Raw)
	}
}

// =============================================================================
// Error Event Field Precedence
// =============================================================================

func TestParseEvent_ErrorFieldPrecedence(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"message wins", `{"type":"error","message":"top","error":"mid","detail":"low"}`, "top"},
		{"error next", `{"type":"error","error":"mid","detail":"low"}`, "mid"},
		{"detail last", `{"type":"error","detail":"low"}`, "low"},
		{"fallback", `{"type":"error"}`, "unknown error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event, err := ParseEvent([]byte(tc.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			errEvent, ok := event.(ErrorEvent)
			if !ok {
				t.Fatalf("expected ErrorEvent, got %T", event)
			}
			if errEvent.Message != tc.want {
				t.Errorf("expected message %q, got %q", tc.want, errEvent.Message)
			}
		})
	}
}

func TestParseEvent_ErrorKeepsDetail(t *testing.T) {
	event, err := ParseEvent([]byte(`{"type":"error","message":"boom","detail":"Traceback: ..."}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	errEvent := event.(ErrorEvent)
	if errEvent.Detail != "Traceback: ..." {
		t.Errorf("expected detail preserved, got %q", errEvent.Detail)
	}
}

// =============================================================================
// Malformed Input
// =============================================================================

func TestParseEvent_MalformedJSON(t *testing.T) {
	_, err := ParseEvent([]byte(`{"type": "assistant", "content": [`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}

	var parseErr *EventParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("expected EventParseError, got %T", err)
	}
}

func TestParseEvent_MissingType(t *testing.T) {
	_, err := ParseEvent([]byte(`{"sessionId":"sess-1"}`))
	if err == nil {
		t.Fatal("expected error for event without type")
	}
}

func TestParseEvent_Empty(t *testing.T) {
	_, err := ParseEvent(nil)
	if err == nil {
		t.Fatal("expected error for empty payload")
	}
}

// =============================================================================
// Content Blocks
// =============================================================================

func TestParseContentBlocks_DropsUnknownTypes(t *testing.T) {
	data := `[{"type":"text","text":"kept"},{"type":"thinking","thinking":"hidden"},{"type":"text","text":"also kept"}]`

	blocks, err := ParseContentBlocks([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
}

func TestParseContentBlocks_ToolResultNullContent(t *testing.T) {
	data := `[{"type":"tool_result","tool_use_id":"tu-1","content":null},` +
		`{"type":"tool_result","tool_use_id":"tu-2","content":"output text","is_error":true}]`

	blocks, err := ParseContentBlocks([]byte(data))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}

	first := blocks[0].(ToolResultBlock)
	if first.Content != "" {
		t.Errorf("expected null content to decode empty, got %q", first.Content)
	}
	second := blocks[1].(ToolResultBlock)
	if second.Content != "output text" || !second.IsError {
		t.Errorf("unexpected block: %#v", second)
	}
}
