package api

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/chat"
	"github.com/tidewell/agentdeck/chat/stream"
	"github.com/tidewell/agentdeck/chat/stream/transport"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
)

var turnsLogger = log.GetLogger("ApiTurns")

// SendMessage handles POST /api/sessions/:id/messages
// Opens a user turn. The turn streams in the background; updates arrive on
// the subscribe WebSocket.
func SendMessage(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Message string   `json:"message"`
		AddDirs []string `json:"addDirs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	if body.Message == "" {
		RespondValidationError(c, "Validation failed", []ErrorDetail{
			{Field: "message", Message: "message is required"},
		})
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
		RespondConflict(c, "Session is archived; unarchive it to continue")
		return
	}

	// One turn per session
	if chatManager.TurnActive(id) {
		RespondConflict(c, "A turn is already streaming on this session")
		return
	}

	_, err = chatManager.Send(id, stream.SendOptions{
		Message: body.Message,
		AddDirs: resolveAddDirs(body.AddDirs),
	})
	if err != nil {
		respondTurnError(c, err)
		return
	}

	RespondAccepted(c, gin.H{"status": "streaming"})
}

// AnswerQuestion handles POST /api/sessions/:id/answer
// Resolves a pending question interruption and resumes the turn.
func AnswerQuestion(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Answers map[string]string `json:"answers"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	if len(body.Answers) == 0 {
		RespondValidationError(c, "Validation failed", []ErrorDetail{
			{Field: "answers", Message: "at least one answer is required"},
		})
		return
	}

	if _, err := chatManager.Answer(id, body.Answers); err != nil {
		respondTurnError(c, err)
		return
	}

	RespondAccepted(c, gin.H{"status": "streaming"})
}

// DecidePermission handles POST /api/sessions/:id/permission
// Approval resumes the turn; denial acknowledges without opening one.
func DecidePermission(c *gin.Context) {
	id := c.Param("id")

	var body struct {
		Approve     bool   `json:"approve"`
		AlwaysAllow bool   `json:"alwaysAllow"`
		Feedback    string `json:"feedback"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	turn, err := chatManager.DecidePermission(id, chat.PermissionInput{
		Approve:     body.Approve,
		AlwaysAllow: body.AlwaysAllow,
		Feedback:    body.Feedback,
	})
	if err != nil {
		respondTurnError(c, err)
		return
	}

	if turn == nil {
		RespondData(c, gin.H{"status": "denied"})
		return
	}
	RespondAccepted(c, gin.H{"status": "streaming"})
}

// ListSessionPermissions handles GET /api/sessions/:id/permissions
// Audit log of permission decisions made on this session, newest first.
func ListSessionPermissions(c *gin.Context) {
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

	limit := 100
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	decisions, err := db.ListPermissionDecisions(id, limit)
	if err != nil {
		turnsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to list permission decisions")
		RespondInternalError(c, "Failed to list permission decisions")
		return
	}

	RespondList(c, decisions, nil)
}

// StopTurn handles POST /api/sessions/:id/stop
func StopTurn(c *gin.Context) {
	id := c.Param("id")

	if err := chatManager.StopTurn(id); err != nil {
		switch {
		case errors.Is(err, chat.ErrSessionNotFound):
			RespondNotFound(c, "Session not found")
		case errors.Is(err, chat.ErrNoActiveTurn):
			RespondConflict(c, "No active turn to stop")
		default:
			turnsLogger.Error().Err(err).Str("sessionId", id).Msg("failed to stop turn")
			RespondInternalError(c, "Failed to stop turn")
		}
		return
	}

	RespondData(c, gin.H{"status": "stopped"})
}

// respondTurnError maps driver errors onto HTTP statuses
func respondTurnError(c *gin.Context, err error) {
	var connErr *transport.ConnectionError

	switch {
	case errors.Is(err, chat.ErrSessionNotFound):
		RespondNotFound(c, "Session not found")
	case errors.Is(err, stream.ErrTurnActive):
		RespondConflict(c, "A turn is already streaming on this session")
	case errors.Is(err, stream.ErrInterruptionPending):
		RespondConflict(c, "An interruption is pending; resolve it first")
	case errors.Is(err, stream.ErrNoPendingQuestion):
		RespondConflict(c, "No pending question to answer")
	case errors.Is(err, stream.ErrNoPendingPermission):
		RespondConflict(c, "No pending permission request")
	case errors.As(err, &connErr):
		turnsLogger.Warn().Err(err).Msg("runtime unreachable")
		RespondServiceUnavailable(c, "Agent runtime is unreachable")
	default:
		turnsLogger.Error().Err(err).Msg("turn request failed")
		RespondInternalError(c, "Turn request failed")
	}
}

// resolveAddDirs maps workspace-relative add_dirs onto absolute paths the
// runtime can open. Unknown entries pass through untouched so absolute
// paths keep working.
func resolveAddDirs(dirs []string) []string {
	if len(dirs) == 0 || workspaceSvc == nil {
		return dirs
	}

	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir == "workspace" || dir == "workspace/" {
			out = append(out, workspaceSvc.Root())
			continue
		}
		out = append(out, dir)
	}
	return out
}
