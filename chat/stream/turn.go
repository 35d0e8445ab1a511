package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tidewell/agentdeck/chat/stream/transport"
)

// TurnState tracks a turn through its lifecycle
type TurnState string

const (
	TurnIdle        TurnState = "idle"
	TurnOpening     TurnState = "opening"
	TurnStreaming   TurnState = "streaming"
	TurnCompleted   TurnState = "completed"
	TurnInterrupted TurnState = "interrupted"
	TurnFailed      TurnState = "failed"
	TurnCancelled   TurnState = "cancelled"
)

// Terminal reports whether the state is final
func (s TurnState) Terminal() bool {
	switch s {
	case TurnCompleted, TurnInterrupted, TurnFailed, TurnCancelled:
		return true
	}
	return false
}

// UpdateKind classifies one observable change during a turn
type UpdateKind string

const (
	// UpdateContent signals that the assistant message changed
	UpdateContent UpdateKind = "content"
	// UpdateSession signals that the session id was assigned or replaced
	UpdateSession UpdateKind = "session"
	// UpdateInterruption signals that the session now waits on user input
	UpdateInterruption UpdateKind = "interruption"
	// UpdateState signals a turn state transition
	UpdateState UpdateKind = "state"
)

// Update is one observable change during a turn. Message is a snapshot and
// safe to retain.
type Update struct {
	Kind      UpdateKind
	State     TurnState
	SessionID string
	Message   *Message
}

// Turn drives one streamed exchange with the runtime. It owns its transport
// for the duration of the stream and settles into exactly one terminal
// state. Consumers read Updates until it closes, then State for the
// terminal state.
type Turn struct {
	session   *Session
	transport transport.Transport

	mu      sync.Mutex
	state   TurnState
	err     error
	result  *ResultEvent
	message *Message

	interrupted  bool
	acknowledged bool

	updates    chan Update
	done       chan struct{}
	cancelCh   chan struct{}
	cancelOnce sync.Once
}

func newTurn(session *Session, tr transport.Transport) *Turn {
	return &Turn{
		session:   session,
		transport: tr,
		state:     TurnIdle,
		updates:   make(chan Update, 64),
		done:      make(chan struct{}),
		cancelCh:  make(chan struct{}),
	}
}

// State returns the turn's current state
func (t *Turn) State() TurnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the transport error that failed the turn, or nil
func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Result returns the runtime's turn summary if one arrived, or nil
func (t *Turn) Result() *ResultEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Message returns a snapshot of the assistant message, or nil before the
// turn opened or after the message was discarded
func (t *Turn) Message() *Message {
	t.mu.Lock()
	handle := t.message
	t.mu.Unlock()

	if handle == nil {
		return nil
	}
	snap := t.session.Snapshot(handle)
	return &snap
}

// Updates returns the turn's update stream. It closes when the turn
// settles.
func (t *Turn) Updates() <-chan Update {
	return t.updates
}

// Done closes when the turn settles
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Cancel aborts the turn. Safe to call from any goroutine, any number of
// times. Cancelling a settled turn is a no-op, and a cancelled turn never
// gains an error block.
func (t *Turn) Cancel() {
	t.cancelOnce.Do(func() {
		close(t.cancelCh)
	})
}

func (t *Turn) cancelRequested() bool {
	select {
	case <-t.cancelCh:
		return true
	default:
		return false
	}
}

// run executes the turn to a terminal state. Called exactly once, on its
// own goroutine.
func (t *Turn) run(ctx context.Context) {
	handle := t.session.StartTurn(RoleAssistant)
	t.mu.Lock()
	t.message = handle
	t.mu.Unlock()

	t.setState(TurnOpening)

	if err := t.transport.Connect(ctx); err != nil {
		if t.cancelRequested() || ctx.Err() != nil {
			t.settle(TurnCancelled)
			return
		}
		t.failTransport(err)
		return
	}
	defer func() {
		_ = t.transport.Close()
	}()

	t.setState(TurnStreaming)

	for {
		select {
		case <-ctx.Done():
			t.settle(TurnCancelled)
			return

		case <-t.cancelCh:
			t.settle(TurnCancelled)
			return

		case err := <-t.transport.Errors():
			if err != nil {
				t.failTransport(err)
				return
			}

		case payload, ok := <-t.transport.ReadMessages():
			if !ok {
				// The transport reports read errors before closing its
				// message channel, so a non-blocking drain sees them.
				select {
				case err := <-t.transport.Errors():
					if err != nil {
						t.failTransport(err)
						return
					}
				default:
				}
				t.settleClose()
				return
			}
			t.handlePayload(payload)
		}
	}
}

func (t *Turn) handlePayload(payload []byte) {
	event, err := ParseEvent(payload)
	if err != nil {
		logger.Debug().Err(err).Msg("dropping malformed event")
		return
	}
	t.handleEvent(event)
}

func (t *Turn) handleEvent(event Event) {
	switch e := event.(type) {
	case SessionStartEvent:
		t.adoptSession(e.SessionID)

	case SessionClearedEvent:
		t.session.ReplaceSession(e.NewSessionID)
		handle := t.session.StartTurn(RoleAssistant)
		t.mu.Lock()
		t.message = handle
		t.mu.Unlock()
		logger.Info().
			Str("old_session_id", e.OldSessionID).
			Str("new_session_id", e.NewSessionID).
			Msg("session cleared by runtime")
		t.emit(Update{Kind: UpdateSession, SessionID: e.NewSessionID})
		t.emitContent(handle)

	case AssistantEvent:
		handle := t.handle()
		t.session.AppendContent(handle, e.Content)
		if e.Model != "" {
			t.session.SetModel(handle, e.Model)
		}
		t.emitContent(handle)

	case AskUserQuestionEvent:
		t.adoptSession(e.SessionID)
		handle := t.handle()
		t.session.AppendContent(handle, []ContentBlock{AskUserQuestionBlock{
			Type:      "ask_user_question",
			ToolUseID: e.ToolUseID,
			Questions: e.Questions,
		}})
		t.session.SetPendingQuestion(&PendingQuestion{
			ToolUseID: e.ToolUseID,
			Questions: e.Questions,
		})
		t.markInterrupted()
		t.emitContent(handle)
		t.emit(Update{Kind: UpdateInterruption})

	case PermissionRequestEvent:
		t.adoptSession(e.SessionID)
		t.session.SetPendingPermission(&PendingPermission{
			RequestID: e.RequestID,
			ToolName:  e.ToolName,
			ToolInput: e.ToolInput,
			Reason:    e.Reason,
			Options:   e.Options,
		})
		t.markInterrupted()
		t.emit(Update{Kind: UpdateInterruption})

	case PermissionAcknowledgedEvent:
		t.session.ClearPending()
		t.mu.Lock()
		t.acknowledged = true
		t.mu.Unlock()

	case ResultEvent:
		t.adoptSession(e.SessionID)
		t.mu.Lock()
		t.result = &e
		t.mu.Unlock()

	case ErrorEvent:
		logger.Warn().Str("detail", e.Detail).Msg("runtime reported error")
		handle := t.handle()
		t.session.AppendContent(handle, []ContentBlock{
			NewTextBlock("Error: " + e.Message),
		})
		t.emitContent(handle)

	case HeartbeatEvent:
		// keep-alive only

	case RawEvent:
		logger.Debug().Str("type", string(e.Type)).Msg("ignoring unrecognized event")
	}
}

func (t *Turn) handle() *Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

func (t *Turn) adoptSession(id string) {
	if t.session.AdoptSessionID(id) {
		t.emit(Update{Kind: UpdateSession, SessionID: id})
	}
}

func (t *Turn) markInterrupted() {
	t.mu.Lock()
	t.interrupted = true
	t.mu.Unlock()
}

func (t *Turn) emitContent(handle *Message) {
	snap := t.session.Snapshot(handle)
	t.emit(Update{Kind: UpdateContent, Message: &snap})
}

// emit never blocks: slow consumers lose intermediate updates but always
// observe the channel close and can read final state afterwards.
func (t *Turn) emit(update Update) {
	select {
	case t.updates <- update:
	default:
		logger.Debug().Str("kind", string(update.Kind)).Msg("dropping turn update, consumer too slow")
	}
}

// setState advances a non-terminal state and announces it
func (t *Turn) setState(state TurnState) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.mu.Unlock()

	t.emit(Update{Kind: UpdateState, State: state})
}

// settleClose picks the terminal state for a stream that ended without a
// transport fault
func (t *Turn) settleClose() {
	if t.cancelRequested() {
		t.settle(TurnCancelled)
		return
	}

	t.mu.Lock()
	interrupted := t.interrupted
	acknowledged := t.acknowledged
	handle := t.message
	t.mu.Unlock()

	if acknowledged && handle != nil {
		if snap := t.session.Snapshot(handle); len(snap.Content) == 0 {
			t.session.DiscardMessage(handle)
			t.mu.Lock()
			t.message = nil
			t.mu.Unlock()
		}
	}

	if interrupted {
		t.settle(TurnInterrupted)
		return
	}
	t.settle(TurnCompleted)
}

// failTransport records a stream fault as a visible error block, unless the
// turn was being cancelled anyway
func (t *Turn) failTransport(err error) {
	if t.cancelRequested() {
		t.settle(TurnCancelled)
		return
	}

	logger.Warn().Err(err).Msg("turn stream failed")

	t.mu.Lock()
	t.err = err
	handle := t.message
	t.mu.Unlock()

	if handle != nil {
		t.session.AppendContent(handle, []ContentBlock{
			NewTextBlock(connectionErrorText(err)),
		})
		t.emitContent(handle)
	}
	t.settle(TurnFailed)
}

// settle moves the turn to a terminal state exactly once and releases the
// session's turn slot
func (t *Turn) settle(state TurnState) {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.state = state
	t.mu.Unlock()

	t.session.releaseTurn()
	t.emit(Update{Kind: UpdateState, State: state})
	close(t.updates)
	close(t.done)
}

// connectionErrorText renders a transport fault the way the transcript
// shows it
func connectionErrorText(err error) string {
	var statusErr *transport.HTTPStatusError
	if errors.As(err, &statusErr) {
		if detail := extractErrorDetail(statusErr.Body); detail != "" {
			return "Connection error: " + detail
		}
		return fmt.Sprintf("Connection error: runtime returned HTTP %d", statusErr.StatusCode)
	}
	return "Connection error: " + err.Error()
}

// extractErrorDetail pulls a human-readable message out of a JSON error
// body, trying the runtime's field names in order
func extractErrorDetail(body string) string {
	var raw struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return ""
	}

	switch {
	case raw.Detail != "":
		return raw.Detail
	case raw.Error != "":
		return raw.Error
	default:
		return raw.Message
	}
}
