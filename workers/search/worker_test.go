package search

import (
	"testing"
)

func TestSearchableText_FlattensBlocks(t *testing.T) {
	content := `[
		{"type":"text","text":"Let me check the logs."},
		{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"tail -n 5 app.log"}},
		{"type":"tool_result","tool_use_id":"t1","content":"error: connection refused"},
		{"type":"text","text":"The service is down."}
	]`

	got := searchableText(content)
	want := "Let me check the logs.\nerror: connection refused\nThe service is down."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSearchableText_IncludesQuestions(t *testing.T) {
	content := `[{"type":"ask_user_question","tool_use_id":"t1","questions":[{"question":"Which environment?"}]}]`

	if got := searchableText(content); got != "Which environment?" {
		t.Errorf("expected question text, got %q", got)
	}
}

func TestSearchableText_EmptyForToolOnlyMessages(t *testing.T) {
	content := `[{"type":"tool_use","id":"t1","name":"Bash","input":{"command":"ls"}}]`

	if got := searchableText(content); got != "" {
		t.Errorf("expected empty text for tool-only content, got %q", got)
	}
}

func TestSearchableText_EmptyForUnreadableContent(t *testing.T) {
	if got := searchableText(`{broken`); got != "" {
		t.Errorf("expected empty text for unreadable content, got %q", got)
	}
}
