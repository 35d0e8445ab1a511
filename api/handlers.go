package api

import (
	"context"

	"github.com/tidewell/agentdeck/chat"
	"github.com/tidewell/agentdeck/chat/stream"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/workspace"
)

// Package-level components wired from main.go before routes are served.
var (
	chatManager  *chat.Manager
	workspaceSvc *workspace.Service
)

// InitChatManager builds the runtime client from config and starts the
// console session manager
func InitChatManager() {
	cfg := config.Get()
	client := stream.NewClient(stream.ClientOptions{
		BaseURL:      cfg.RuntimeBaseURL,
		APIKey:       cfg.RuntimeAPIKey,
		EnableSkills: cfg.EnableSkills,
		EnableMCP:    cfg.EnableMCP,
	})
	chatManager = chat.NewManager(client)
	log.Info().Str("runtime", cfg.RuntimeBaseURL).Msg("chat manager initialized")
}

// ShutdownChatManager drains in-flight turns and stops the manager
func ShutdownChatManager(ctx context.Context) error {
	if chatManager == nil {
		return nil
	}
	return chatManager.Shutdown(ctx)
}

// SetWorkspace wires the workspace service used by the upload handlers
func SetWorkspace(ws *workspace.Service) {
	workspaceSvc = ws
}
