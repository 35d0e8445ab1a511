package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidewell/agentdeck/chat/stream/transport"
	"github.com/tidewell/agentdeck/log"
)

var logger = log.GetLogger("ChatStream")

const (
	chatPath       = "/api/chat"
	answerPath     = "/api/chat/answer"
	permissionPath = "/api/chat/permission"
	agentsPath     = "/api/agents"
)

// ClientOptions configures a Client
type ClientOptions struct {
	// BaseURL is the runtime's root URL, e.g. "http://localhost:8000"
	BaseURL string

	// APIKey, when set, is sent as a bearer token on every request
	APIKey string

	// HTTPClient overrides the default client. Streaming turns hold the
	// connection open, so the client must not carry a global timeout.
	HTTPClient *http.Client

	// EnableSkills and EnableMCP toggle the runtime's optional skill and
	// MCP integrations on every outbound turn
	EnableSkills bool
	EnableMCP    bool
}

// SendOptions configures one outbound user turn
type SendOptions struct {
	// Message is the user's text
	Message string

	// Content carries structured blocks instead of plain text, for turns
	// with attachments. When set it takes precedence over Message in the
	// local transcript.
	Content []ContentBlock

	// AddDirs requests extra directories be made visible to the agent for
	// this turn
	AddDirs []string
}

// Client talks to the agent runtime: it opens streamed turns and issues
// the non-streaming control calls. A Client is safe for concurrent use
// across sessions; per-session turn discipline is enforced by Session.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	enableSkills bool
	enableMCP    bool
}

// NewClient creates a runtime client
func NewClient(options ClientOptions) *Client {
	baseURL := strings.TrimRight(options.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:      baseURL,
		apiKey:       options.APIKey,
		httpClient:   httpClient,
		enableSkills: options.EnableSkills,
		enableMCP:    options.EnableMCP,
	}
}

// Send opens a new streamed turn carrying a user message. The user message
// is appended to the session before any network activity; the returned
// turn streams the assistant's reply.
func (c *Client) Send(ctx context.Context, session *Session, options SendOptions) (*Turn, error) {
	if !session.acquireTurn() {
		return nil, ErrTurnActive
	}
	if session.Pending() != nil {
		session.releaseTurn()
		return nil, ErrInterruptionPending
	}

	blocks := options.Content
	if len(blocks) == 0 {
		blocks = []ContentBlock{NewTextBlock(options.Message)}
	}
	session.AppendUserMessage(blocks)

	body := chatRequest{
		AgentID:      session.AgentID(),
		Message:      options.Message,
		Content:      options.Content,
		SessionID:    session.ID(),
		EnableSkills: c.enableSkills,
		EnableMCP:    c.enableMCP,
		AddDirs:      options.AddDirs,
	}
	return c.streamTurn(ctx, session, chatPath, body)
}

// AnswerQuestion resolves a pending question and re-enters the stream. The
// answers map is keyed by question text. A user message mirroring the
// submission is appended before any network activity.
func (c *Client) AnswerQuestion(ctx context.Context, session *Session, answers map[string]string) (*Turn, error) {
	if !session.acquireTurn() {
		return nil, ErrTurnActive
	}

	question := session.PendingQuestion()
	if question == nil {
		session.releaseTurn()
		return nil, ErrNoPendingQuestion
	}
	sessionID := session.ID()
	if sessionID == "" {
		session.releaseTurn()
		return nil, ErrSessionNotAssigned
	}

	session.ClearPending()
	session.AppendUserMessage([]ContentBlock{NewTextBlock(answersText(answers))})

	body := answerRequest{
		AgentID:      session.AgentID(),
		SessionID:    sessionID,
		ToolUseID:    question.ToolUseID,
		Answers:      answers,
		EnableSkills: c.enableSkills,
		EnableMCP:    c.enableMCP,
	}
	return c.streamTurn(ctx, session, answerPath, body)
}

// ContinuePermission approves a pending permission request and re-enters
// the stream. Feedback is optional commentary forwarded to the runtime. A
// user message mirroring the approval is appended before any network
// activity.
func (c *Client) ContinuePermission(ctx context.Context, session *Session, feedback string) (*Turn, error) {
	if !session.acquireTurn() {
		return nil, ErrTurnActive
	}

	permission := session.PendingPermission()
	if permission == nil {
		session.releaseTurn()
		return nil, ErrNoPendingPermission
	}
	sessionID := session.ID()
	if sessionID == "" {
		session.releaseTurn()
		return nil, ErrSessionNotAssigned
	}

	session.ClearPending()
	session.AppendUserMessage([]ContentBlock{NewTextBlock(approvalText(permission))})

	body := permissionDecisionRequest{
		SessionID:    sessionID,
		RequestID:    permission.RequestID,
		Decision:     "approve",
		Feedback:     feedback,
		EnableSkills: c.enableSkills,
		EnableMCP:    c.enableMCP,
	}
	return c.streamTurn(ctx, session, permissionPath, body)
}

// DenyPermission rejects a pending permission request. Unlike approval this
// does not open a turn: the runtime acknowledges with a plain response and
// the conversation stays idle. The pending request and the mirrored user
// message are recorded before any network activity.
func (c *Client) DenyPermission(ctx context.Context, session *Session, feedback string) error {
	if session.TurnActive() {
		return ErrTurnActive
	}

	permission := session.PendingPermission()
	if permission == nil {
		return ErrNoPendingPermission
	}
	sessionID := session.ID()
	if sessionID == "" {
		return ErrSessionNotAssigned
	}

	session.ClearPending()
	session.AppendUserMessage([]ContentBlock{NewTextBlock(denialText(permission, feedback))})

	body := permissionDecisionRequest{
		SessionID:    sessionID,
		RequestID:    permission.RequestID,
		Decision:     "deny",
		Feedback:     feedback,
		EnableSkills: c.enableSkills,
		EnableMCP:    c.enableMCP,
	}
	return c.doJSON(ctx, http.MethodPost, permissionPath, body, nil)
}

// Stop asks the runtime to halt the session's in-flight work. Best effort:
// local state is never touched, and callers usually pair it with Turn.Cancel.
func (c *Client) Stop(ctx context.Context, session *Session) error {
	sessionID := session.ID()
	if sessionID == "" {
		return ErrSessionNotAssigned
	}

	path := fmt.Sprintf("/api/chat/%s/stop", url.PathEscape(sessionID))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		logger.Warn().Err(err).Str("session_id", sessionID).Msg("stop request failed")
		return err
	}
	return nil
}

// ListAgents fetches the agents configured on the runtime
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.doJSON(ctx, http.MethodGet, agentsPath, nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// streamTurn builds the streaming request and launches the turn. The turn
// slot is already held; the turn releases it when it settles.
func (c *Client) streamTurn(ctx context.Context, session *Session, path string, payload any) (*Turn, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		session.releaseTurn()
		return nil, err
	}

	turn := newTurn(session, transport.NewSSETransport(c.httpClient, req))
	go turn.run(ctx)
	return turn, nil
}

// --- Request Bodies ---

type chatRequest struct {
	AgentID      string         `json:"agent_id"`
	Message      string         `json:"message,omitempty"`
	Content      []ContentBlock `json:"content,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	EnableSkills bool           `json:"enable_skills"`
	EnableMCP    bool           `json:"enable_mcp"`
	AddDirs      []string       `json:"add_dirs,omitempty"`
}

type answerRequest struct {
	AgentID      string            `json:"agent_id"`
	SessionID    string            `json:"session_id"`
	ToolUseID    string            `json:"tool_use_id"`
	Answers      map[string]string `json:"answers"`
	EnableSkills bool              `json:"enable_skills"`
	EnableMCP    bool              `json:"enable_mcp"`
}

type permissionDecisionRequest struct {
	SessionID    string `json:"session_id"`
	RequestID    string `json:"request_id"`
	Decision     string `json:"decision"`
	Feedback     string `json:"feedback,omitempty"`
	EnableSkills bool   `json:"enable_skills"`
	EnableMCP    bool   `json:"enable_mcp"`
}

// --- HTTP Plumbing ---

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &transport.HTTPStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// --- Mirrored User Messages ---
//
// The runtime persists a user message for each resumption; these builders
// reproduce its exact wording so local transcripts match server history.

func answersText(answers map[string]string) string {
	data, err := json.MarshalIndent(map[string]any{"answers": answers}, "", "  ")
	if err != nil {
		return "User answers:"
	}
	return "User answers:\n" + string(data)
}

func approvalText(p *PendingPermission) string {
	return "User APPROVED the command. Please proceed with executing: " + permissionCommand(p)
}

func denialText(p *PendingPermission, feedback string) string {
	reason := feedback
	if reason == "" {
		reason = "User denied the command"
	}
	return fmt.Sprintf(
		"User DENIED the command '%s'. Reason: %s. Please acknowledge this and continue without executing that command.",
		permissionCommand(p), reason,
	)
}

func permissionCommand(p *PendingPermission) string {
	if cmd, ok := p.ToolInput["command"].(string); ok && cmd != "" {
		return cmd
	}
	return "unknown command"
}
