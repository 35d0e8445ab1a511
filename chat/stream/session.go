package stream

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingInterruption marks a conversation waiting for user input before it
// can continue. A session holds exactly zero or one at a time.
type PendingInterruption interface {
	pendingInterruption()
}

// PendingQuestion waits for answers to an ask_user_question interruption
type PendingQuestion struct {
	ToolUseID string
	Questions []Question
}

func (*PendingQuestion) pendingInterruption() {}

// PendingPermission waits for an approve/deny decision on a tool invocation
type PendingPermission struct {
	RequestID string
	ToolName  string
	ToolInput map[string]any
	Reason    string
	Options   []string
}

func (*PendingPermission) pendingInterruption() {}

// Session is the authoritative record of one conversation: its identity,
// its ordered messages, and at most one pending interruption.
//
// The session id is assigned by the backend, never by the client: it is
// empty until a session_start event delivers it, and it may be replaced
// wholesale mid-conversation by a session_cleared event. All requests for
// the conversation must carry the current id, never a stale one.
type Session struct {
	mu sync.RWMutex

	id       string
	agentID  string
	messages []*Message
	pending  PendingInterruption

	// One-turn-per-session discipline
	turnOpen bool
}

// NewSession creates a session for an agent. The id stays empty until the
// backend assigns one.
func NewSession(agentID string) *Session {
	return &Session{agentID: agentID}
}

// RestoreSession rebuilds a session from persisted state
func RestoreSession(id, agentID string, messages []Message) *Session {
	s := &Session{id: id, agentID: agentID}
	for i := range messages {
		m := messages[i]
		s.messages = append(s.messages, &m)
	}
	return s
}

// ID returns the current backend-assigned session id, or "" before
// assignment
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// AgentID returns the agent this conversation belongs to
func (s *Session) AgentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentID
}

// Messages returns a snapshot of the transcript. Content slices are shared
// with live messages but are never mutated in place: merges always install
// a freshly-built slice.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = *m
	}
	return out
}

// StartTurn appends a new empty message and returns its handle. The handle
// stays valid for AppendContent and SetModel until the owning turn ends.
func (s *Session) StartTurn(role Role) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Timestamp: time.Now().UTC(),
	}
	s.messages = append(s.messages, m)
	return m
}

// AppendUserMessage records an outbound user message in the transcript
func (s *Session) AppendUserMessage(content []ContentBlock) *Message {
	m := s.StartTurn(RoleUser)
	s.AppendContent(m, content)
	return m
}

// AppendContent merges blocks into the handle's content
func (s *Session) AppendContent(handle *Message, blocks []ContentBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle.Content = MergeContent(handle.Content, blocks)
}

// SetModel records the model that produced the handle's content
func (s *Session) SetModel(handle *Message, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle.Model = model
}

// Snapshot returns a copy of the handle safe to read without holding the
// session lock
func (s *Session) Snapshot(handle *Message) Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *handle
}

// DiscardMessage removes the handle from the transcript. Used when a turn
// produced no visible message (a permission acknowledgement placeholder).
func (s *Session) DiscardMessage(handle *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m == handle {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// AdoptSessionID sets the current session id and reports whether it
// changed. Idempotent: events may repeat the id they already delivered.
// Empty ids are ignored.
func (s *Session) AdoptSessionID(id string) bool {
	if id == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == id {
		return false
	}
	s.id = id
	return true
}

// ReplaceSession discards every message and re-keys the session. Used only
// for session_cleared, which invalidates the old id entirely.
func (s *Session) ReplaceSession(newID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.id = newID
	s.messages = nil
}

// SetPendingQuestion records a question interruption, displacing any other
// pending interruption
func (s *Session) SetPendingQuestion(q *PendingQuestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = q
}

// SetPendingPermission records a permission interruption, displacing any
// other pending interruption
func (s *Session) SetPendingPermission(p *PendingPermission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = p
}

// ClearPending removes any pending interruption
func (s *Session) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Pending returns whichever interruption is set, or nil
func (s *Session) Pending() PendingInterruption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// PendingQuestion returns the pending question, or nil
func (s *Session) PendingQuestion() *PendingQuestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, _ := s.pending.(*PendingQuestion)
	return q
}

// PendingPermission returns the pending permission request, or nil
func (s *Session) PendingPermission() *PendingPermission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.pending.(*PendingPermission)
	return p
}

// TurnActive reports whether a turn is currently open on this session
func (s *Session) TurnActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnOpen
}

// acquireTurn claims the session's single turn slot
func (s *Session) acquireTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.turnOpen {
		return false
	}
	s.turnOpen = true
	return true
}

// releaseTurn frees the turn slot when a turn settles
func (s *Session) releaseTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turnOpen = false
}
