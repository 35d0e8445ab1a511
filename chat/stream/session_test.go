package stream

import (
	"testing"
	"time"
)

// =============================================================================
// Session Identity
// =============================================================================

func TestSession_AdoptSessionID(t *testing.T) {
	session := NewSession("agent-1")

	if session.ID() != "" {
		t.Fatalf("expected empty id before assignment, got %s", session.ID())
	}

	if !session.AdoptSessionID("sess-1") {
		t.Error("expected first adoption to report a change")
	}
	if session.ID() != "sess-1" {
		t.Errorf("expected sess-1, got %s", session.ID())
	}

	// Repeated delivery of the same id is a no-op
	if session.AdoptSessionID("sess-1") {
		t.Error("expected repeated adoption to report no change")
	}

	// Empty ids are ignored
	if session.AdoptSessionID("") {
		t.Error("expected empty id to be ignored")
	}
	if session.ID() != "sess-1" {
		t.Errorf("expected id unchanged, got %s", session.ID())
	}
}

func TestSession_ReplaceSessionDropsMessages(t *testing.T) {
	session := NewSession("agent-1")
	session.AdoptSessionID("sess-1")
	session.AppendUserMessage([]ContentBlock{NewTextBlock("hello")})
	handle := session.StartTurn(RoleAssistant)
	session.AppendContent(handle, []ContentBlock{NewTextBlock("hi")})

	session.ReplaceSession("sess-2")

	if session.ID() != "sess-2" {
		t.Errorf("expected sess-2, got %s", session.ID())
	}
	if got := len(session.Messages()); got != 0 {
		t.Errorf("expected empty transcript after replace, got %d messages", got)
	}
}

func TestRestoreSession(t *testing.T) {
	messages := []Message{
		{ID: "m1", Role: RoleUser, Content: []ContentBlock{NewTextBlock("hi")}, Timestamp: time.Now()},
		{ID: "m2", Role: RoleAssistant, Content: []ContentBlock{NewTextBlock("hello")}, Timestamp: time.Now()},
	}

	session := RestoreSession("sess-9", "agent-1", messages)

	if session.ID() != "sess-9" || session.AgentID() != "agent-1" {
		t.Errorf("unexpected identity: id=%s agent=%s", session.ID(), session.AgentID())
	}
	restored := session.Messages()
	if len(restored) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(restored))
	}
	if restored[0].ID != "m1" || restored[1].Role != RoleAssistant {
		t.Errorf("unexpected restored messages: %#v", restored)
	}
}

// =============================================================================
// Transcript
// =============================================================================

func TestSession_StartTurnAppendsMessage(t *testing.T) {
	session := NewSession("agent-1")

	handle := session.StartTurn(RoleAssistant)

	if handle.ID == "" {
		t.Error("expected a generated message id")
	}
	if handle.Role != RoleAssistant {
		t.Errorf("expected assistant role, got %s", handle.Role)
	}
	if handle.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
	if got := len(session.Messages()); got != 1 {
		t.Errorf("expected 1 message, got %d", got)
	}
}

func TestSession_AppendContentMergesIdempotently(t *testing.T) {
	session := NewSession("agent-1")
	handle := session.StartTurn(RoleAssistant)
	batch := []ContentBlock{NewTextBlock("partial")}

	session.AppendContent(handle, batch)
	session.AppendContent(handle, batch)

	messages := session.Messages()
	if got := len(messages[0].Content); got != 1 {
		t.Errorf("expected repeated batch to merge to 1 block, got %d", got)
	}
}

func TestSession_DiscardMessage(t *testing.T) {
	session := NewSession("agent-1")
	session.AppendUserMessage([]ContentBlock{NewTextBlock("keep me")})
	handle := session.StartTurn(RoleAssistant)

	session.DiscardMessage(handle)

	messages := session.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message after discard, got %d", len(messages))
	}
	if messages[0].Role != RoleUser {
		t.Error("discard removed the wrong message")
	}

	// Discarding again is a no-op
	session.DiscardMessage(handle)
	if got := len(session.Messages()); got != 1 {
		t.Errorf("expected repeat discard to change nothing, got %d messages", got)
	}
}

func TestSession_MessagesReturnsSnapshot(t *testing.T) {
	session := NewSession("agent-1")
	session.AppendUserMessage([]ContentBlock{NewTextBlock("original")})

	snapshot := session.Messages()
	snapshot[0].ID = "mutated"

	if session.Messages()[0].ID == "mutated" {
		t.Error("mutating the snapshot leaked into the session")
	}
}

// =============================================================================
// Interruptions
// =============================================================================

func TestSession_PendingInterruptionIsExclusive(t *testing.T) {
	session := NewSession("agent-1")

	session.SetPendingQuestion(&PendingQuestion{ToolUseID: "tu-1"})
	if session.PendingQuestion() == nil {
		t.Fatal("expected pending question")
	}

	session.SetPendingPermission(&PendingPermission{RequestID: "req-1"})

	if session.PendingQuestion() != nil {
		t.Error("expected permission to displace the pending question")
	}
	perm := session.PendingPermission()
	if perm == nil || perm.RequestID != "req-1" {
		t.Errorf("expected pending permission req-1, got %#v", perm)
	}
}

func TestSession_ClearPending(t *testing.T) {
	session := NewSession("agent-1")
	session.SetPendingPermission(&PendingPermission{RequestID: "req-1"})

	session.ClearPending()

	if session.Pending() != nil {
		t.Error("expected no pending interruption after clear")
	}
	if session.PendingPermission() != nil || session.PendingQuestion() != nil {
		t.Error("typed accessors should be nil after clear")
	}
}

// =============================================================================
// Turn Discipline
// =============================================================================

func TestSession_TurnSlot(t *testing.T) {
	session := NewSession("agent-1")

	if session.TurnActive() {
		t.Fatal("expected no active turn on a fresh session")
	}
	if !session.acquireTurn() {
		t.Fatal("expected first acquire to succeed")
	}
	if session.acquireTurn() {
		t.Error("expected second acquire to fail while turn is open")
	}
	if !session.TurnActive() {
		t.Error("expected TurnActive while slot is held")
	}

	session.releaseTurn()

	if session.TurnActive() {
		t.Error("expected no active turn after release")
	}
	if !session.acquireTurn() {
		t.Error("expected acquire to succeed after release")
	}
}
