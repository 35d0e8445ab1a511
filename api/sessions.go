package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/chat"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
)

var sessionsLogger = log.GetLogger("ApiSessions")

// SessionView is a session row annotated with live console state
type SessionView struct {
	db.ChatSession
	TurnActive bool              `json:"turnActive"`
	Pending    *chat.PendingView `json:"pending,omitempty"`
}

func sessionView(row db.ChatSession) SessionView {
	return SessionView{
		ChatSession: row,
		TurnActive:  chatManager.TurnActive(row.ID),
		Pending:     chat.DecodePendingView(row.PendingJSON),
	}
}

// ListSessions handles GET /api/sessions
// Cursor pagination: ?cursor is the updatedAt of the last row from the
// previous page; rows come back newest first.
func ListSessions(c *gin.Context) {
	filter := db.SessionListFilter{
		Status:  c.DefaultQuery("status", "active"),
		AgentID: c.Query("agentId"),
	}

	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 200 {
		filter.Limit = l
	}
	if cur, err := strconv.ParseInt(c.Query("cursor"), 10, 64); err == nil && cur > 0 {
		filter.Cursor = cur
	}

	rows, err := db.ListChatSessions(filter)
	if err != nil {
		sessionsLogger.Error().Err(err).Msg("failed to list sessions")
		RespondInternalError(c, "Failed to list sessions")
		return
	}

	views := make([]SessionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, sessionView(row))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	pagination := &Pagination{HasMore: len(rows) == limit}
	if pagination.HasMore {
		cursor := strconv.FormatInt(rows[len(rows)-1].UpdatedAt, 10)
		pagination.NextCursor = &cursor
	}

	RespondList(c, views, pagination)
}

// CreateSession handles POST /api/sessions
func CreateSession(c *gin.Context) {
	var body struct {
		AgentID string `json:"agentId"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	if body.AgentID == "" {
		RespondValidationError(c, "Validation failed", []ErrorDetail{
			{Field: "agentId", Message: "agentId is required"},
		})
		return
	}

	console, err := chatManager.CreateSession(body.AgentID)
	if err != nil {
		sessionsLogger.Error().Err(err).Str("agentId", body.AgentID).Msg("failed to create session")
		RespondInternalError(c, "Failed to create session")
		return
	}

	row, err := db.GetChatSession(console.ID())
	if err != nil || row == nil {
		RespondInternalError(c, "Failed to load created session")
		return
	}

	RespondCreated(c, sessionView(*row), "/api/sessions/"+console.ID())
}

// SessionDetail is the single-session view; it also carries the persisted
// transcript length, which the list view skips to stay one query
type SessionDetail struct {
	SessionView
	MessageCount int64 `json:"messageCount"`
}

// GetSession handles GET /api/sessions/:id
func GetSession(c *gin.Context) {
	id := c.Param("id")

	row, err := db.GetChatSession(id)
	if err != nil {
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to get session")
		RespondInternalError(c, "Failed to get session")
		return
	}
	if row == nil {
		RespondNotFound(c, "Session not found")
		return
	}

	count, err := db.CountChatMessages(id)
	if err != nil {
		sessionsLogger.Warn().Err(err).Str("sessionId", id).Msg("failed to count messages")
	}

	RespondData(c, SessionDetail{SessionView: sessionView(*row), MessageCount: count})
}

// GetSessionHistory handles GET /api/sessions/:id/history
// Returns the settled transcript from the local store. Live in-progress
// content arrives over the subscribe WebSocket, not here.
func GetSessionHistory(c *gin.Context) {
	id := c.Param("id")

	exists, err := db.ChatSessionExists(id)
	if err != nil {
		RespondInternalError(c, "Failed to get session")
		return
	}
	if !exists {
		RespondNotFound(c, "Session not found")
		return
	}

	rows, err := db.ListChatMessages(id)
	if err != nil {
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to list messages")
		RespondInternalError(c, "Failed to load history")
		return
	}

	RespondList(c, historyMessages(rows), nil)
}

// HistoryMessage is a stored message with its content blocks passed through
// as raw JSON
type HistoryMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Model     *string         `json:"model,omitempty"`
	CreatedAt int64           `json:"createdAt"`
}

func historyMessages(rows []db.ChatMessage) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(rows))
	for _, row := range rows {
		content := json.RawMessage(row.Content)
		if !json.Valid(content) {
			content = json.RawMessage("[]")
		}
		out = append(out, HistoryMessage{
			ID:        row.ID,
			Role:      row.Role,
			Content:   content,
			Model:     row.Model,
			CreatedAt: row.CreatedAt,
		})
	}
	return out
}

// ArchiveSession handles POST /api/sessions/:id/archive
func ArchiveSession(c *gin.Context) {
	id := c.Param("id")

	if chatManager.TurnActive(id) {
		RespondConflict(c, "Cannot archive a session with an active turn")
		return
	}

	row, err := db.GetChatSession(id)
	if err != nil {
		RespondInternalError(c, "Failed to get session")
		return
	}
	if row == nil {
		RespondNotFound(c, "Session not found")
		return
	}
	if row.Archived() {
		RespondConflict(c, "Session is already archived")
		return
	}

	if err := db.ArchiveChatSession(id); err != nil {
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to archive session")
		RespondInternalError(c, "Failed to archive session")
		return
	}

	notifications.GetService().NotifySessionUpdated(id, "archived")

	// Auto-backup ships the archive bundle to OSS in the background
	if config.Get().BackupEnabled() && autoBackupEnabled() {
		go func() {
			if err := chat.BackupSession(context.Background(), id); err != nil {
				sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("archive backup failed")
			}
		}()
	}

	RespondData(c, gin.H{"status": "archived"})
}

// UnarchiveSession handles POST /api/sessions/:id/unarchive
func UnarchiveSession(c *gin.Context) {
	id := c.Param("id")

	exists, err := db.ChatSessionExists(id)
	if err != nil {
		RespondInternalError(c, "Failed to get session")
		return
	}
	if !exists {
		RespondNotFound(c, "Session not found")
		return
	}

	if err := db.UnarchiveChatSession(id); err != nil {
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to unarchive session")
		RespondInternalError(c, "Failed to unarchive session")
		return
	}

	notifications.GetService().NotifySessionUpdated(id, "unarchived")
	RespondData(c, gin.H{"status": "active"})
}

// DeleteSession handles DELETE /api/sessions/:id
// An in-flight turn is cancelled, not protected: delete always wins.
func DeleteSession(c *gin.Context) {
	id := c.Param("id")

	if err := chatManager.DeleteSession(id); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			RespondNotFound(c, "Session not found")
			return
		}
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to delete session")
		RespondInternalError(c, "Failed to delete session")
		return
	}

	RespondNoContent(c)
}

// ExportSession handles GET /api/sessions/:id/export
// Streams a tar.gz bundle of the session metadata and transcript.
func ExportSession(c *gin.Context) {
	id := c.Param("id")

	row, err := db.GetChatSession(id)
	if err != nil {
		RespondInternalError(c, "Failed to get session")
		return
	}
	if row == nil {
		RespondNotFound(c, "Session not found")
		return
	}

	c.Header("Content-Type", "application/gzip")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", chat.ExportFilename(row)))

	if err := chat.WriteExport(c.Request.Context(), id, c.Writer); err != nil {
		// Headers are already on the wire; all we can do is log
		sessionsLogger.Error().Err(err).Str("sessionId", id).Msg("export failed mid-stream")
	}
}

// autoBackupEnabled reads the storage_auto_backup user setting
func autoBackupEnabled() bool {
	value, err := db.GetSetting("storage_auto_backup")
	return err == nil && value == "true"
}
