package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewell/agentdeck/chat/stream"
)

// Frame types sent to subscribed browser clients
const (
	FrameSnapshot     = "snapshot"
	FrameState        = "state"
	FrameContent      = "content"
	FrameSession      = "session"
	FrameInterruption = "interruption"
)

// Frame is one JSON message on the subscribe socket. Snapshot frames carry
// the full transcript; live frames carry only what changed.
type Frame struct {
	Type       string           `json:"type"`
	State      string           `json:"state,omitempty"`
	SessionID  string           `json:"sessionId,omitempty"`
	Message    *stream.Message  `json:"message,omitempty"`
	Messages   []stream.Message `json:"messages,omitempty"`
	Pending    *PendingView     `json:"pending,omitempty"`
	TurnActive bool             `json:"turnActive,omitempty"`
}

// Subscriber is one browser client mirroring a console session. Send is
// drained by the WebSocket writer; a subscriber whose buffer is full drops
// frames rather than stalling the turn.
type Subscriber struct {
	ID   string
	Send chan []byte
}

// Console binds one conversation's live state to its console identity: the
// stable console id, the runtime session underneath, the in-flight turn,
// and the browser clients mirroring it.
type Console struct {
	id      string
	agentID string
	session *stream.Session

	mu            sync.RWMutex
	turn          *stream.Turn
	lastRuntimeID string
	subscribers   map[*Subscriber]bool
	lastActivity  time.Time
}

func newConsole(id, agentID string, session *stream.Session, runtimeID string) *Console {
	return &Console{
		id:            id,
		agentID:       agentID,
		session:       session,
		lastRuntimeID: runtimeID,
		subscribers:   make(map[*Subscriber]bool),
		lastActivity:  time.Now(),
	}
}

// ID returns the stable console id (the chat_sessions primary key)
func (c *Console) ID() string { return c.id }

// AgentID returns the agent this console talks to
func (c *Console) AgentID() string { return c.agentID }

// Session returns the underlying stream session
func (c *Console) Session() *stream.Session { return c.session }

// ActiveTurn returns the in-flight turn, or nil
func (c *Console) ActiveTurn() *stream.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turn
}

// TurnActive reports whether a turn is currently streaming
func (c *Console) TurnActive() bool {
	return c.session.TurnActive()
}

// setTurn records the in-flight turn (nil once it settles)
func (c *Console) setTurn(t *stream.Turn) {
	c.mu.Lock()
	c.turn = t
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// swapRuntimeID records a newly adopted runtime session id and returns
// the previous one
func (c *Console) swapRuntimeID(id string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.lastRuntimeID
	c.lastRuntimeID = id
	return prev
}

func (c *Console) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// idleFor reports how long the console has gone without activity
func (c *Console) idleFor() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.lastActivity)
}

// Subscribe registers a browser client. The caller owns the read side of
// Send and must Unsubscribe when done.
func (c *Console) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:   uuid.NewString(),
		Send: make(chan []byte, 256),
	}

	c.mu.Lock()
	c.subscribers[sub] = true
	c.lastActivity = time.Now()
	c.mu.Unlock()
	return sub
}

// Unsubscribe removes a client and closes its channel. Safe to call twice.
func (c *Console) Unsubscribe(sub *Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[sub]; ok {
		delete(c.subscribers, sub)
		close(sub.Send)
	}
}

// SubscriberCount returns the number of connected clients
func (c *Console) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

// closeSubscribers disconnects every client (console deleted or evicted)
func (c *Console) closeSubscribers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.subscribers {
		delete(c.subscribers, sub)
		close(sub.Send)
	}
}

// Broadcast sends a frame to all connected clients. Non-blocking: a client
// whose send buffer is full skips the frame and catches up from its next
// snapshot.
func (c *Console) Broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Warn().Err(err).Str("sessionId", c.id).Msg("failed to marshal frame")
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for sub := range c.subscribers {
		select {
		case sub.Send <- data:
		default:
			// Client's send buffer is full, skip
		}
	}
}

// SnapshotFrame builds the catch-up frame sent to a newly connected
// client: the full transcript, pending interruption, and turn activity.
func (c *Console) SnapshotFrame() ([]byte, error) {
	return json.Marshal(Frame{
		Type:       FrameSnapshot,
		SessionID:  c.session.ID(),
		Messages:   c.session.Messages(),
		Pending:    pendingView(c.session.Pending()),
		TurnActive: c.session.TurnActive(),
	})
}

// PendingView projects the console's pending interruption, or nil
func (c *Console) PendingView() *PendingView {
	return pendingView(c.session.Pending())
}
