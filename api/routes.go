package api

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine) {
	// Health stays outside the auth group for load-balancer probes
	r.GET("/api/health", Health)

	// OAuth routes sit outside the auth group: the login flow must be
	// reachable without a token
	oauth := r.Group("/api/oauth")
	oauth.GET("/authorize", OAuthAuthorize)
	oauth.GET("/callback", OAuthCallback)
	oauth.POST("/refresh", OAuthRefresh) // POST per OAuth 2.0 spec
	oauth.GET("/token", OAuthToken)
	oauth.POST("/logout", OAuthLogout)

	// API group
	api := r.Group("/api")
	api.Use(AuthMiddleware())

	// Sessions
	api.GET("/sessions", ListSessions)
	api.POST("/sessions", CreateSession)
	api.GET("/sessions/:id", GetSession)
	api.GET("/sessions/:id/history", GetSessionHistory)
	api.GET("/sessions/:id/export", ExportSession)
	api.POST("/sessions/:id/archive", ArchiveSession)
	api.POST("/sessions/:id/unarchive", UnarchiveSession)
	api.DELETE("/sessions/:id", DeleteSession)

	// Turn entry points
	api.POST("/sessions/:id/messages", SendMessage)
	api.POST("/sessions/:id/answer", AnswerQuestion)
	api.POST("/sessions/:id/permission", DecidePermission)
	api.GET("/sessions/:id/permissions", ListSessionPermissions)
	api.POST("/sessions/:id/stop", StopTurn)

	// Live updates (WebSocket)
	api.GET("/sessions/:id/subscribe", SubscribeSession)

	// Agents passthrough, plus stored "always allow" grants
	api.GET("/agents", ListAgents)
	api.GET("/agents/:id/approvals", ListAgentApprovals)
	api.DELETE("/agents/:id/approvals", RevokeAgentApprovals)

	// Notifications (SSE)
	api.GET("/notifications/stream", NotificationStream)

	// Search
	api.GET("/search", Search)

	// Settings
	api.GET("/settings", GetSettings)
	api.PUT("/settings", UpdateSettings)
	api.POST("/settings", ResetSettings)

	// Stats
	api.GET("/stats", GetStats)

	// Workspace files
	api.GET("/workspace/files", ListWorkspaceFiles)
	api.DELETE("/workspace/files/*path", DeleteWorkspaceFile)

	// Upload (TUS)
	api.POST("/upload/finalize", FinalizeUpload)
	api.PUT("/upload/simple/:filename", SimpleUpload)
	api.Any("/upload/tus/*path", TUSHandler)
}
