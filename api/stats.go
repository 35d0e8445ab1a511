package api

import (
	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
)

// SessionStats summarizes the session store
type SessionStats struct {
	Active   int64 `json:"active"`
	Archived int64 `json:"archived"`
	Messages int64 `json:"messages"`
}

// LiveStats summarizes in-memory activity
type LiveStats struct {
	ActiveTurns int `json:"activeTurns"`
	Subscribers int `json:"subscribers"`
}

// SearchStats summarizes the transcript index sync state
type SearchStats struct {
	Enabled bool  `json:"enabled"`
	Backlog int64 `json:"backlog"`
}

// StoreStats describes the backing database
type StoreStats struct {
	SchemaVersion int `json:"schemaVersion"`
}

// StatsResponse is the GET /api/stats payload
type StatsResponse struct {
	Sessions SessionStats `json:"sessions"`
	Live     LiveStats    `json:"live"`
	Search   SearchStats  `json:"search"`
	Store    StoreStats   `json:"store"`
}

// Health handles GET /api/health
func Health(c *gin.Context) {
	RespondData(c, gin.H{"status": "ok"})
}

// GetStats handles GET /api/stats
func GetStats(c *gin.Context) {
	var stats StatsResponse

	active, err := db.CountChatSessions(db.SessionStatusActive)
	if err != nil {
		log.Error().Err(err).Msg("failed to count active sessions")
	}
	stats.Sessions.Active = active

	archived, err := db.CountChatSessions(db.SessionStatusArchived)
	if err != nil {
		log.Error().Err(err).Msg("failed to count archived sessions")
	}
	stats.Sessions.Archived = archived

	messages, err := db.Count(`SELECT COUNT(*) FROM chat_messages`)
	if err != nil {
		log.Error().Err(err).Msg("failed to count messages")
	}
	stats.Sessions.Messages = messages

	stats.Live.ActiveTurns = chatManager.ActiveTurns()
	stats.Live.Subscribers = notifications.GetService().SubscriberCount()

	stats.Search.Enabled = config.Get().SearchEnabled()
	if stats.Search.Enabled {
		backlog, err := db.CountUnindexedChatMessages()
		if err != nil {
			log.Error().Err(err).Msg("failed to count search backlog")
		}
		stats.Search.Backlog = backlog
	}

	version, err := db.GetCurrentVersion()
	if err != nil {
		log.Error().Err(err).Msg("failed to read schema version")
	}
	stats.Store.SchemaVersion = version

	RespondData(c, stats)
}
