package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidewell/agentdeck/chat/stream/transport"
)

// streamHandler replies with the given events as an SSE stream, handing the
// request body to check first
func streamHandler(t *testing.T, check func(body []byte), events ...string) http.HandlerFunc {
	t.Helper()

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("failed to read request body: %v", err)
		}
		if check != nil {
			check(body)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, event := range events {
			fmt.Fprintf(w, "data: %s\n\n", event)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// =============================================================================
// Send
// =============================================================================

func TestClient_SendStreamsAssistantReply(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", streamHandler(t, func(body []byte) {
		var req struct {
			AgentID      string `json:"agent_id"`
			Message      string `json:"message"`
			SessionID    string `json:"session_id"`
			EnableSkills bool   `json:"enable_skills"`
			EnableMCP    bool   `json:"enable_mcp"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode chat request: %v", err)
			return
		}
		if req.AgentID != "agent-1" || req.Message != "Hello!" {
			t.Errorf("unexpected chat request: %+v", req)
		}
		if req.SessionID != "" {
			t.Errorf("expected no session id on a fresh session, got %s", req.SessionID)
		}
		if !req.EnableSkills || req.EnableMCP {
			t.Errorf("unexpected feature flags: skills=%v mcp=%v", req.EnableSkills, req.EnableMCP)
		}
	},
		`{"type":"session_start","sessionId":"sess-1"}`,
		`{"type":"assistant","content":[{"type":"text","text":"Hi there."}]}`,
		`{"type":"result","session_id":"sess-1","duration_ms":900,"num_turns":1}`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, EnableSkills: true})
	session := NewSession("agent-1")

	turn, err := client.Send(context.Background(), session, SendOptions{Message: "Hello!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := waitSettle(t, turn); state != TurnCompleted {
		t.Fatalf("expected completed, got %s", state)
	}

	if session.ID() != "sess-1" {
		t.Errorf("expected session id sess-1, got %s", session.ID())
	}

	messages := session.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected user plus assistant message, got %d", len(messages))
	}
	if messages[0].Role != RoleUser {
		t.Errorf("expected user message first, got %s", messages[0].Role)
	}
	userText := messages[0].Content[0].(TextBlock)
	if userText.Text != "Hello!" {
		t.Errorf("expected user text recorded, got %q", userText.Text)
	}
	if messages[1].Role != RoleAssistant || len(messages[1].Content) != 1 {
		t.Errorf("unexpected assistant message: %#v", messages[1])
	}
}

func TestClient_SendCarriesExistingSessionID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", streamHandler(t, func(body []byte) {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode chat request: %v", err)
			return
		}
		if req.SessionID != "sess-9" {
			t.Errorf("expected session id sess-9, got %s", req.SessionID)
		}
	},
		`{"type":"assistant","content":[{"type":"text","text":"Continuing."}]}`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-9")

	turn, err := client.Send(context.Background(), session, SendOptions{Message: "And then?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSettle(t, turn)
}

func TestClient_SendStructuredContent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", streamHandler(t, func(body []byte) {
		var req struct {
			Message string `json:"message"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode chat request: %v", err)
			return
		}
		if req.Message != "" {
			t.Errorf("expected no message field with structured content, got %q", req.Message)
		}
		if len(req.Content) != 2 || req.Content[1].Text != "See attached notes.md" {
			t.Errorf("unexpected content: %+v", req.Content)
		}
	},
		`{"type":"assistant","content":[{"type":"text","text":"Got the file."}]}`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")

	turn, err := client.Send(context.Background(), session, SendOptions{
		Content: []ContentBlock{
			NewTextBlock("Summarize this."),
			NewTextBlock("See attached notes.md"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitSettle(t, turn)

	userContent := session.Messages()[0].Content
	if len(userContent) != 2 {
		t.Errorf("expected structured blocks mirrored locally, got %d", len(userContent))
	}
}

func TestClient_SendWhileTurnActive(t *testing.T) {
	client := NewClient(ClientOptions{BaseURL: "http://localhost:1"})
	session := NewSession("agent-1")
	if !session.acquireTurn() {
		t.Fatal("failed to acquire turn slot")
	}

	_, err := client.Send(context.Background(), session, SendOptions{Message: "hi"})
	if !errors.Is(err, ErrTurnActive) {
		t.Fatalf("expected ErrTurnActive, got %v", err)
	}
	if got := len(session.Messages()); got != 0 {
		t.Errorf("expected no message appended on rejection, got %d", got)
	}
}

func TestClient_SendWhileInterruptionPending(t *testing.T) {
	client := NewClient(ClientOptions{BaseURL: "http://localhost:1"})
	session := NewSession("agent-1")
	session.SetPendingQuestion(&PendingQuestion{ToolUseID: "tu-1"})

	_, err := client.Send(context.Background(), session, SendOptions{Message: "hi"})
	if !errors.Is(err, ErrInterruptionPending) {
		t.Fatalf("expected ErrInterruptionPending, got %v", err)
	}
	if session.TurnActive() {
		t.Error("expected turn slot released after rejection")
	}
	if session.PendingQuestion() == nil {
		t.Error("expected the pending question untouched")
	}
}

func TestClient_SendSurfacesHTTPFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"unknown agent"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")

	turn, err := client.Send(context.Background(), session, SendOptions{Message: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := waitSettle(t, turn); state != TurnFailed {
		t.Fatalf("expected failed, got %s", state)
	}

	messages := session.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected user message and error placeholder, got %d", len(messages))
	}
	text := messages[1].Content[0].(TextBlock)
	if text.Text != "Connection error: unknown agent" {
		t.Errorf("expected detail extracted into error block, got %q", text.Text)
	}
}

// =============================================================================
// Answering Questions
// =============================================================================

func TestClient_AnswerQuestionResumesStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/answer", streamHandler(t, func(body []byte) {
		var req struct {
			AgentID   string            `json:"agent_id"`
			SessionID string            `json:"session_id"`
			ToolUseID string            `json:"tool_use_id"`
			Answers   map[string]string `json:"answers"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode answer request: %v", err)
			return
		}
		if req.AgentID != "agent-1" || req.SessionID != "sess-1" || req.ToolUseID != "tu-q1" {
			t.Errorf("unexpected answer request: %+v", req)
		}
		if req.Answers["Which environment?"] != "staging" {
			t.Errorf("unexpected answers: %v", req.Answers)
		}
	},
		`{"type":"assistant","content":[{"type":"text","text":"Deploying to staging."}]}`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")
	session.SetPendingQuestion(&PendingQuestion{
		ToolUseID: "tu-q1",
		Questions: []Question{{Question: "Which environment?"}},
	})

	turn, err := client.AnswerQuestion(context.Background(), session, map[string]string{"Which environment?": "staging"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The pending question is resolved before any network activity
	if session.Pending() != nil {
		t.Error("expected pending question cleared on submission")
	}

	if state := waitSettle(t, turn); state != TurnCompleted {
		t.Fatalf("expected completed, got %s", state)
	}

	messages := session.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected answer message and assistant reply, got %d", len(messages))
	}
	answerText := messages[0].Content[0].(TextBlock)
	if !strings.HasPrefix(answerText.Text, "User answers:\n") {
		t.Errorf("expected mirrored answer message, got %q", answerText.Text)
	}
	if !strings.Contains(answerText.Text, `"staging"`) {
		t.Errorf("expected answers embedded in message, got %q", answerText.Text)
	}
}

func TestClient_AnswerQuestionWithoutPending(t *testing.T) {
	client := NewClient(ClientOptions{BaseURL: "http://localhost:1"})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")

	_, err := client.AnswerQuestion(context.Background(), session, map[string]string{"q": "a"})
	if !errors.Is(err, ErrNoPendingQuestion) {
		t.Fatalf("expected ErrNoPendingQuestion, got %v", err)
	}
	if session.TurnActive() {
		t.Error("expected turn slot released after rejection")
	}
}

func TestClient_AnswerQuestionWithoutSessionID(t *testing.T) {
	client := NewClient(ClientOptions{BaseURL: "http://localhost:1"})
	session := NewSession("agent-1")
	session.SetPendingQuestion(&PendingQuestion{ToolUseID: "tu-1"})

	_, err := client.AnswerQuestion(context.Background(), session, map[string]string{"q": "a"})
	if !errors.Is(err, ErrSessionNotAssigned) {
		t.Fatalf("expected ErrSessionNotAssigned, got %v", err)
	}
	if session.PendingQuestion() == nil {
		t.Error("expected the pending question kept when submission is rejected")
	}
	if session.TurnActive() {
		t.Error("expected turn slot released after rejection")
	}
}

// =============================================================================
// Permission Decisions
// =============================================================================

func TestClient_ApprovePermissionResumesStream(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/permission", streamHandler(t, func(body []byte) {
		var req struct {
			SessionID string `json:"session_id"`
			RequestID string `json:"request_id"`
			Decision  string `json:"decision"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode permission request: %v", err)
			return
		}
		if req.SessionID != "sess-1" || req.RequestID != "req-1" || req.Decision != "approve" {
			t.Errorf("unexpected permission request: %+v", req)
		}
	},
		`{"type":"permission_acknowledged","request_id":"req-1","decision":"approve"}`,
	))
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")
	session.SetPendingPermission(&PendingPermission{
		RequestID: "req-1",
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "make deploy"},
	})

	turn, err := client.ContinuePermission(context.Background(), session, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state := waitSettle(t, turn); state != TurnCompleted {
		t.Fatalf("expected completed, got %s", state)
	}

	// The acknowledgement turn leaves only the mirrored approval message
	messages := session.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected only the approval message, got %d", len(messages))
	}
	text := messages[0].Content[0].(TextBlock)
	want := "User APPROVED the command. Please proceed with executing: make deploy"
	if text.Text != want {
		t.Errorf("expected %q, got %q", want, text.Text)
	}
	if session.Pending() != nil {
		t.Error("expected pending permission cleared")
	}
}

func TestClient_DenyPermissionIsPlainRequest(t *testing.T) {
	var sawStream bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/permission", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Decision string `json:"decision"`
			Feedback string `json:"feedback"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode permission request: %v", err)
		}
		if req.Decision != "deny" || req.Feedback != "too risky" {
			t.Errorf("unexpected permission request: %+v", req)
		}
		if r.Header.Get("Accept") == "text/event-stream" {
			sawStream = true
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"acknowledged"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")
	session.SetPendingPermission(&PendingPermission{
		RequestID: "req-1",
		ToolName:  "Bash",
		ToolInput: map[string]any{"command": "make deploy"},
	})

	if err := client.DenyPermission(context.Background(), session, "too risky"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sawStream {
		t.Error("expected a plain request, not a stream subscription")
	}
	if session.Pending() != nil {
		t.Error("expected pending permission cleared")
	}
	if session.TurnActive() {
		t.Error("expected no turn opened by a denial")
	}

	messages := session.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected only the denial message, got %d", len(messages))
	}
	text := messages[0].Content[0].(TextBlock)
	want := "User DENIED the command 'make deploy'. Reason: too risky. Please acknowledge this and continue without executing that command."
	if text.Text != want {
		t.Errorf("expected %q, got %q", want, text.Text)
	}
}

func TestClient_DenyPermissionDefaultReason(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/permission", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"acknowledged"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")
	session.SetPendingPermission(&PendingPermission{RequestID: "req-1", ToolName: "Bash"})

	if err := client.DenyPermission(context.Background(), session, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text := session.Messages()[0].Content[0].(TextBlock)
	want := "User DENIED the command 'unknown command'. Reason: User denied the command. Please acknowledge this and continue without executing that command."
	if text.Text != want {
		t.Errorf("expected %q, got %q", want, text.Text)
	}
}

func TestClient_PermissionDecisionsRequirePending(t *testing.T) {
	client := NewClient(ClientOptions{BaseURL: "http://localhost:1"})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")

	if _, err := client.ContinuePermission(context.Background(), session, ""); !errors.Is(err, ErrNoPendingPermission) {
		t.Errorf("expected ErrNoPendingPermission from approve, got %v", err)
	}
	if err := client.DenyPermission(context.Background(), session, ""); !errors.Is(err, ErrNoPendingPermission) {
		t.Errorf("expected ErrNoPendingPermission from deny, got %v", err)
	}
	if session.TurnActive() {
		t.Error("expected turn slot released after rejections")
	}
}

// =============================================================================
// Stop and Agent Listing
// =============================================================================

func TestClient_StopTargetsSession(t *testing.T) {
	var stopped bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/{session}/stop", func(w http.ResponseWriter, r *http.Request) {
		if got := r.PathValue("session"); got != "sess-1" {
			t.Errorf("expected session sess-1 in path, got %s", got)
		}
		stopped = true
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")

	if err := client.Stop(context.Background(), session); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stopped {
		t.Error("expected the stop endpoint to be called")
	}

	// Without an assigned id there is nothing to stop
	fresh := NewSession("agent-1")
	if err := client.Stop(context.Background(), fresh); !errors.Is(err, ErrSessionNotAssigned) {
		t.Errorf("expected ErrSessionNotAssigned, got %v", err)
	}
}

func TestClient_StopSurfacesServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/{session}/stop", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")

	err := client.Stop(context.Background(), session)
	var statusErr *transport.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected HTTP 404 error, got %v", err)
	}
}

func TestClient_ListAgents(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/agents", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"agent-1","name":"Builder","model":"claude-sonnet-4"},{"id":"agent-2","name":"Reviewer"}]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL})

	agents, err := client.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[0].ID != "agent-1" || agents[0].Model != "claude-sonnet-4" {
		t.Errorf("unexpected first agent: %#v", agents[0])
	}
}

func TestClient_AuthorizationHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/agents", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("expected bearer token, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(ClientOptions{BaseURL: server.URL, APIKey: "sk-test"})
	if _, err := client.ListAgents(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
