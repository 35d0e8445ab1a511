package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/chat/stream/transport"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
)

var agentsLogger = log.GetLogger("ApiAgents")

// ListAgents handles GET /api/agents
// Passthrough to the runtime's agent listing.
func ListAgents(c *gin.Context) {
	agents, err := chatManager.ListAgents(c.Request.Context())
	if err != nil {
		var connErr *transport.ConnectionError
		if errors.As(err, &connErr) {
			RespondServiceUnavailable(c, "Agent runtime is unreachable")
			return
		}
		agentsLogger.Error().Err(err).Msg("failed to list agents")
		RespondInternalError(c, "Failed to list agents")
		return
	}

	RespondList(c, agents, nil)
}

// ListAgentApprovals handles GET /api/agents/:id/approvals
// Returns the stored "always allow" grants for an agent.
func ListAgentApprovals(c *gin.Context) {
	approvals, err := db.ListToolApprovals(c.Param("id"))
	if err != nil {
		agentsLogger.Error().Err(err).Str("agentId", c.Param("id")).Msg("failed to list approvals")
		RespondInternalError(c, "Failed to list approvals")
		return
	}

	RespondList(c, approvals, nil)
}

// RevokeAgentApprovals handles DELETE /api/agents/:id/approvals
// Drops every stored grant for the agent; future matching tool requests
// prompt again.
func RevokeAgentApprovals(c *gin.Context) {
	revoked, err := db.DeleteToolApprovals(c.Param("id"))
	if err != nil {
		agentsLogger.Error().Err(err).Str("agentId", c.Param("id")).Msg("failed to revoke approvals")
		RespondInternalError(c, "Failed to revoke approvals")
		return
	}

	RespondData(c, gin.H{"revoked": revoked})
}
