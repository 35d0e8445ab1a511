package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidewell/agentdeck/chat/stream"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
	"github.com/tidewell/agentdeck/vendors"
)

var logger = log.GetLogger("Chat")

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoActiveTurn    = errors.New("no active turn")
)

// consoleIdleTimeout is how long a console with no turn and no subscribers
// stays in memory before eviction. Evicted consoles are rebuilt from the
// store on the next request.
const consoleIdleTimeout = 30 * time.Minute

// stopRequestTimeout bounds the best-effort stop call to the runtime
const stopRequestTimeout = 5 * time.Second

// PermissionInput carries a user's decision on a pending permission request
type PermissionInput struct {
	Approve     bool
	AlwaysAllow bool
	Feedback    string
}

// Manager owns all console sessions: it creates and restores them, runs
// their turns against the runtime, persists settled transcripts, and fans
// live updates out to subscribed browser clients.
//
// Turns run on the manager's lifetime, not the caller's request: they keep
// streaming after the HTTP handler that started them returns.
type Manager struct {
	client *stream.Client

	consoles map[string]*Console
	mu       sync.RWMutex

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates the console session manager
func NewManager(client *stream.Client) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		client:   client,
		consoles: make(map[string]*Console),
		ctx:      ctx,
		cancel:   cancel,
	}

	// Start background cleanup worker
	m.wg.Add(1)
	go m.cleanupWorker()

	return m
}

// Shutdown cancels in-flight turns and waits for their pumps to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	logger.Info().Msg("shutting down chat manager")

	// Cancelling the manager context aborts every in-flight transport
	m.cancel()

	m.mu.Lock()
	for id, console := range m.consoles {
		if turn := console.ActiveTurn(); turn != nil {
			logger.Info().Str("sessionId", id).Msg("cancelling turn during shutdown")
			turn.Cancel()
		}
		console.closeSubscribers()
	}
	m.mu.Unlock()

	// Wait for pumps with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("chat manager shutdown complete")
		return nil
	case <-ctx.Done():
		logger.Warn().Msg("chat manager shutdown timed out")
		return ctx.Err()
	}
}

// CreateSession creates a new console session for an agent. The runtime
// session id stays unassigned until the first turn streams back.
func (m *Manager) CreateSession(agentID string) (*Console, error) {
	row := &db.ChatSession{
		ID:      uuid.NewString(),
		AgentID: agentID,
	}
	if err := db.CreateChatSession(row); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	console := newConsole(row.ID, agentID, stream.NewSession(agentID), "")

	m.mu.Lock()
	m.consoles[row.ID] = console
	m.mu.Unlock()

	logger.Info().Str("sessionId", row.ID).Str("agentId", agentID).Msg("created console session")
	notifications.GetService().NotifySessionUpdated(row.ID, "created")

	return console, nil
}

// GetConsole retrieves a console by id, restoring it from the store when
// it is not in memory
func (m *Manager) GetConsole(id string) (*Console, error) {
	m.mu.RLock()
	console, ok := m.consoles[id]
	m.mu.RUnlock()

	if ok {
		console.touch()
		return console, nil
	}

	return m.restoreConsole(id)
}

// restoreConsole rebuilds a console from its persisted row and transcript
func (m *Manager) restoreConsole(id string) (*Console, error) {
	row, err := db.GetChatSession(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if row == nil {
		return nil, ErrSessionNotFound
	}

	rows, err := db.ListChatMessages(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}

	runtimeID := ""
	if row.RuntimeSessionID != nil {
		runtimeID = *row.RuntimeSessionID
	}

	session := stream.RestoreSession(runtimeID, row.AgentID, decodeMessages(rows))
	applyPending(session, DecodePendingView(row.PendingJSON))

	console := newConsole(id, row.AgentID, session, runtimeID)

	m.mu.Lock()
	// Another caller may have restored it concurrently; keep the first
	if existing, ok := m.consoles[id]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.consoles[id] = console
	m.mu.Unlock()

	logger.Debug().Str("sessionId", id).Int("messages", len(rows)).Msg("restored console session")
	return console, nil
}

// TurnActive reports whether a console currently has a streaming turn.
// Consoles not in memory cannot have one.
func (m *Manager) TurnActive(consoleID string) bool {
	m.mu.RLock()
	console, ok := m.consoles[consoleID]
	m.mu.RUnlock()
	return ok && console.TurnActive()
}

// ActiveTurns counts consoles with a streaming turn
func (m *Manager) ActiveTurns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, console := range m.consoles {
		if console.TurnActive() {
			n++
		}
	}
	return n
}

// ListAgents proxies the runtime's agent listing
func (m *Manager) ListAgents(ctx context.Context) ([]stream.Agent, error) {
	return m.client.ListAgents(ctx)
}

// Send opens a new user turn on a console
func (m *Manager) Send(consoleID string, options stream.SendOptions) (*stream.Turn, error) {
	console, err := m.GetConsole(consoleID)
	if err != nil {
		return nil, err
	}

	turn, err := m.client.Send(m.ctx, console.session, options)
	if err != nil {
		return nil, err
	}

	m.trackTurn(console, turn)
	return turn, nil
}

// Answer resolves a pending question and resumes streaming
func (m *Manager) Answer(consoleID string, answers map[string]string) (*stream.Turn, error) {
	console, err := m.GetConsole(consoleID)
	if err != nil {
		return nil, err
	}

	turn, err := m.client.AnswerQuestion(m.ctx, console.session, answers)
	if err != nil {
		return nil, err
	}

	// The interruption cleared locally the moment the answer was accepted
	m.clearStoredPending(consoleID)

	m.trackTurn(console, turn)
	return turn, nil
}

// DecidePermission resolves a pending permission request. Approval resumes
// streaming and returns the continuation turn; denial acknowledges without
// opening a turn and returns nil.
func (m *Manager) DecidePermission(consoleID string, input PermissionInput) (*stream.Turn, error) {
	console, err := m.GetConsole(consoleID)
	if err != nil {
		return nil, err
	}

	permission := console.session.PendingPermission()
	if permission == nil {
		return nil, stream.ErrNoPendingPermission
	}

	if input.Approve && input.AlwaysAllow {
		if hash, err := hashPermissionInput(permission); err == nil {
			if err := db.SaveToolApproval(console.agentID, permission.ToolName, hash); err != nil {
				logger.Warn().Err(err).Str("tool", permission.ToolName).Msg("failed to store tool approval")
			}
		}
	}

	m.recordDecision(consoleID, permission, decisionString(input), input.Feedback)

	if !input.Approve {
		if err := m.client.DenyPermission(m.ctx, console.session, input.Feedback); err != nil {
			return nil, err
		}
		// Denial never opens a turn: persist the mirrored user message and
		// the cleared interruption right away
		m.persistConsole(console)
		notifications.GetService().NotifySessionUpdated(consoleID, "permission_denied")
		return nil, nil
	}

	turn, err := m.client.ContinuePermission(m.ctx, console.session, input.Feedback)
	if err != nil {
		return nil, err
	}

	m.clearStoredPending(consoleID)
	m.trackTurn(console, turn)
	return turn, nil
}

// StopTurn halts a console's in-flight turn: a best-effort stop request to
// the runtime, then a local cancel
func (m *Manager) StopTurn(consoleID string) error {
	console, err := m.GetConsole(consoleID)
	if err != nil {
		return err
	}

	turn := console.ActiveTurn()
	if turn == nil {
		return ErrNoActiveTurn
	}

	if console.session.ID() != "" {
		ctx, cancel := context.WithTimeout(m.ctx, stopRequestTimeout)
		defer cancel()
		_ = m.client.Stop(ctx, console.session) // best effort, failures logged by the client
	}

	turn.Cancel()
	logger.Info().Str("sessionId", consoleID).Msg("stopped turn")
	return nil
}

// DeleteSession cancels any in-flight turn, drops the console from memory,
// and removes its row, transcript, and search documents
func (m *Manager) DeleteSession(consoleID string) error {
	m.mu.Lock()
	console, ok := m.consoles[consoleID]
	if ok {
		delete(m.consoles, consoleID)
	}
	m.mu.Unlock()

	if console != nil {
		if turn := console.ActiveTurn(); turn != nil {
			turn.Cancel()
		}
		console.closeSubscribers()
	}

	exists, err := db.ChatSessionExists(consoleID)
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if !exists {
		return ErrSessionNotFound
	}

	staleIDs := messageIDs(consoleID)
	if err := db.DeleteChatSession(consoleID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	dropSearchDocuments(staleIDs)

	logger.Info().Str("sessionId", consoleID).Msg("deleted console session")
	notifications.GetService().NotifySessionUpdated(consoleID, "deleted")
	return nil
}

// trackTurn records the in-flight turn and starts its pump
func (m *Manager) trackTurn(console *Console, turn *stream.Turn) {
	console.setTurn(turn)
	m.persistUserTail(console)
	m.wg.Add(1)
	go m.pump(console, turn)
}

// persistUserTail saves the newest user message so an opening prompt
// survives a crash mid-turn. The settle-time batch re-saves it; upserts
// make the double save harmless.
func (m *Manager) persistUserTail(console *Console) {
	msgs := console.session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != stream.RoleUser {
			continue
		}
		rows := encodeMessages(console.id, msgs[i:i+1])
		if len(rows) == 1 {
			if err := db.SaveChatMessage(&rows[0]); err != nil {
				logger.Warn().Err(err).Str("sessionId", console.id).Msg("failed to persist user message")
			}
		}
		return
	}
}

// pump relays one turn's updates to subscribers and persists the outcome.
// When a turn settles on a permission request the user already marked
// "always allow", the pump approves it and keeps going with the
// continuation turn.
func (m *Manager) pump(console *Console, turn *stream.Turn) {
	defer m.wg.Done()

	for {
		for update := range turn.Updates() {
			m.relay(console, update)
		}
		m.finalizeTurn(console, turn)

		next := m.autoApprove(console)
		if next == nil {
			return
		}
		turn = next
	}
}

// relay translates one stream update into a subscriber frame, handling
// runtime session re-keys on the way through
func (m *Manager) relay(console *Console, update stream.Update) {
	switch update.Kind {
	case stream.UpdateSession:
		m.adoptRuntimeID(console, update.SessionID)
		console.Broadcast(Frame{Type: FrameSession, SessionID: update.SessionID})

	case stream.UpdateContent:
		console.Broadcast(Frame{Type: FrameContent, Message: update.Message})

	case stream.UpdateInterruption:
		console.Broadcast(Frame{Type: FrameInterruption, Pending: console.PendingView()})

	case stream.UpdateState:
		console.Broadcast(Frame{Type: FrameState, State: string(update.State)})
	}
}

// adoptRuntimeID persists a newly assigned runtime session id. A changed
// id on a console that already had one means the runtime cleared the
// conversation: the transcript rows and their search documents are dropped
// along with the re-key.
func (m *Manager) adoptRuntimeID(console *Console, runtimeID string) {
	if runtimeID == "" {
		return
	}

	prev := console.swapRuntimeID(runtimeID)
	if prev == runtimeID {
		return
	}

	// The store enforces one console per runtime id; surface the conflicting
	// session instead of a bare constraint error
	if other, err := db.GetChatSessionByRuntimeID(runtimeID); err == nil && other != nil && other.ID != console.id {
		logger.Error().
			Str("sessionId", console.id).
			Str("claimedBy", other.ID).
			Str("runtimeId", runtimeID).
			Msg("runtime session id already claimed by another console")
		return
	}

	if prev == "" {
		if err := db.SetChatSessionRuntimeID(console.id, runtimeID); err != nil {
			logger.Error().Err(err).Str("sessionId", console.id).Msg("failed to store runtime session id")
		}
		return
	}

	staleIDs := messageIDs(console.id)
	if err := db.ResetChatSessionRuntime(console.id, runtimeID); err != nil {
		logger.Error().Err(err).Str("sessionId", console.id).Msg("failed to re-key session")
		return
	}
	dropSearchDocuments(staleIDs)

	logger.Info().
		Str("sessionId", console.id).
		Str("oldRuntimeId", prev).
		Str("newRuntimeId", runtimeID).
		Msg("runtime cleared conversation, session re-keyed")
}

// finalizeTurn persists a settled turn's outcome: the transcript, the
// stored interruption, and usage counters
func (m *Manager) finalizeTurn(console *Console, turn *stream.Turn) {
	console.setTurn(nil)

	state := turn.State()
	m.persistConsole(console)

	cost := 0.0
	if result := turn.Result(); result != nil && result.TotalCostUSD != nil {
		cost = *result.TotalCostUSD
	}
	if err := db.AddChatSessionUsage(console.id, cost, 1, db.NowMs()); err != nil {
		logger.Warn().Err(err).Str("sessionId", console.id).Msg("failed to record usage")
	}

	logger.Info().
		Str("sessionId", console.id).
		Str("state", string(state)).
		Msg("turn settled")

	notifications.GetService().NotifySessionUpdated(console.id, "turn_"+string(state))
}

// persistConsole writes the console's current transcript and interruption
// state to the store. Message saves are idempotent upserts, so persisting
// after every settle cannot duplicate rows.
func (m *Manager) persistConsole(console *Console) {
	rows := encodeMessages(console.id, console.session.Messages())
	if err := db.SaveChatMessages(rows); err != nil {
		logger.Error().Err(err).Str("sessionId", console.id).Msg("failed to persist transcript")
	}
	if err := db.SetChatSessionPending(console.id, encodePending(console.session.Pending())); err != nil {
		logger.Warn().Err(err).Str("sessionId", console.id).Msg("failed to persist interruption")
	}
}

// autoApprove resumes a turn that settled on a permission request covered
// by a stored "always allow" approval. Returns the continuation turn, or
// nil when there is nothing to approve.
func (m *Manager) autoApprove(console *Console) *stream.Turn {
	permission := console.session.PendingPermission()
	if permission == nil {
		return nil
	}

	hash, err := hashPermissionInput(permission)
	if err != nil {
		return nil
	}
	approved, err := db.HasToolApproval(console.agentID, permission.ToolName, hash)
	if err != nil || !approved {
		return nil
	}

	logger.Info().
		Str("sessionId", console.id).
		Str("tool", permission.ToolName).
		Msg("auto-approving tool from stored approval")

	m.recordDecision(console.id, permission, "auto_approve", "")

	turn, err := m.client.ContinuePermission(m.ctx, console.session, "")
	if err != nil {
		logger.Warn().Err(err).Str("sessionId", console.id).Msg("auto-approval failed to resume turn")
		return nil
	}

	console.setTurn(turn)
	m.clearStoredPending(console.id)
	return turn
}

// recordDecision appends the audit row for a permission outcome
func (m *Manager) recordDecision(consoleID string, permission *stream.PendingPermission, decision, feedback string) {
	record := &db.PermissionDecision{
		SessionID: consoleID,
		RequestID: permission.RequestID,
		Decision:  decision,
	}
	if permission.ToolName != "" {
		record.ToolName = &permission.ToolName
	}
	if feedback != "" {
		record.Feedback = &feedback
	}
	if err := db.RecordPermissionDecision(record); err != nil {
		logger.Warn().Err(err).Str("sessionId", consoleID).Msg("failed to record permission decision")
	}
}

func (m *Manager) clearStoredPending(consoleID string) {
	if err := db.SetChatSessionPending(consoleID, nil); err != nil {
		logger.Warn().Err(err).Str("sessionId", consoleID).Msg("failed to clear stored interruption")
	}
}

// cleanupWorker evicts idle consoles. A console with no streaming turn and
// no subscribers is safe to drop: it is rebuilt from the store on the next
// request.
func (m *Manager) cleanupWorker() {
	defer m.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			logger.Debug().Msg("cleanup worker stopping")
			return
		case <-ticker.C:
			m.mu.Lock()
			for id, console := range m.consoles {
				if console.TurnActive() || console.SubscriberCount() > 0 {
					continue
				}
				if console.idleFor() < consoleIdleTimeout {
					continue
				}
				delete(m.consoles, id)
				logger.Debug().Str("sessionId", id).Msg("evicted idle console")
			}
			m.mu.Unlock()
		}
	}
}

// --- Helpers ---

func decisionString(input PermissionInput) string {
	switch {
	case !input.Approve:
		return "deny"
	case input.AlwaysAllow:
		return "always_allow"
	default:
		return "approve"
	}
}

// hashPermissionInput keys a permission request for the approvals table.
// json.Marshal sorts map keys, so identical inputs hash identically.
func hashPermissionInput(p *stream.PendingPermission) (string, error) {
	data, err := json.Marshal(p.ToolInput)
	if err != nil {
		return "", err
	}
	return db.HashToolInput(data), nil
}

// messageIDs lists the persisted message ids for a console
func messageIDs(consoleID string) []string {
	rows, err := db.ListChatMessages(consoleID)
	if err != nil {
		logger.Warn().Err(err).Str("sessionId", consoleID).Msg("failed to list messages for cleanup")
		return nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	return ids
}

// dropSearchDocuments removes deleted messages from the search index
func dropSearchDocuments(ids []string) {
	if len(ids) == 0 {
		return
	}
	meili := vendors.GetMeiliClient()
	if meili == nil {
		return
	}

	go func() {
		if err := meili.DeleteDocuments(ids); err != nil {
			logger.Warn().Err(err).Int("count", len(ids)).Msg("failed to drop search documents")
		}
	}()
}

// encodeMessages converts a transcript snapshot into persistable rows
func encodeMessages(consoleID string, messages []stream.Message) []db.ChatMessage {
	rows := make([]db.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		content := []byte("[]")
		if len(msg.Content) > 0 {
			data, err := json.Marshal(msg.Content)
			if err != nil {
				logger.Warn().Err(err).Str("messageId", msg.ID).Msg("failed to encode message content")
				continue
			}
			content = data
		}

		row := db.ChatMessage{
			ID:        msg.ID,
			SessionID: consoleID,
			Role:      string(msg.Role),
			Content:   string(content),
			CreatedAt: msg.Timestamp.UnixMilli(),
		}
		if msg.Model != "" {
			model := msg.Model
			row.Model = &model
		}
		rows = append(rows, row)
	}
	return rows
}

// decodeMessages rebuilds stream messages from persisted rows
func decodeMessages(rows []db.ChatMessage) []stream.Message {
	messages := make([]stream.Message, 0, len(rows))
	for _, row := range rows {
		blocks, err := stream.ParseContentBlocks([]byte(row.Content))
		if err != nil {
			logger.Warn().Err(err).Str("messageId", row.ID).Msg("skipping unreadable stored message")
			continue
		}

		msg := stream.Message{
			ID:        row.ID,
			Role:      stream.Role(row.Role),
			Content:   blocks,
			Timestamp: time.UnixMilli(row.CreatedAt).UTC(),
		}
		if row.Model != nil {
			msg.Model = *row.Model
		}
		messages = append(messages, msg)
	}
	return messages
}
