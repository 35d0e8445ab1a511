package api

import (
	"errors"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
	"github.com/tidewell/agentdeck/workspace"
)

var workspaceLogger = log.GetLogger("ApiWorkspace")

// ListWorkspaceFiles handles GET /api/workspace/files
// Lists files in the workspace directory, optionally under ?dir=
func ListWorkspaceFiles(c *gin.Context) {
	if workspaceSvc == nil {
		RespondServiceUnavailable(c, "Workspace is not available")
		return
	}

	dir := c.Query("dir")
	files, err := workspaceSvc.ListFiles(dir)
	if err != nil {
		if errors.Is(err, workspace.ErrInvalidPath) {
			RespondBadRequest(c, "Invalid directory path")
			return
		}
		if os.IsNotExist(err) {
			RespondNotFound(c, "Directory not found")
			return
		}
		workspaceLogger.Error().Err(err).Str("dir", dir).Msg("failed to list workspace files")
		RespondInternalError(c, "Failed to list files")
		return
	}

	RespondList(c, files, nil)
}

// DeleteWorkspaceFile handles DELETE /api/workspace/files/*path
func DeleteWorkspaceFile(c *gin.Context) {
	if workspaceSvc == nil {
		RespondServiceUnavailable(c, "Workspace is not available")
		return
	}

	// Gin wildcard params carry a leading slash
	relPath := strings.TrimPrefix(c.Param("path"), "/")
	if relPath == "" {
		RespondBadRequest(c, "File path is required")
		return
	}

	if err := workspaceSvc.DeleteFile(relPath); err != nil {
		if errors.Is(err, workspace.ErrInvalidPath) {
			RespondBadRequest(c, "Invalid file path")
			return
		}
		if os.IsNotExist(err) {
			RespondNotFound(c, "File not found")
			return
		}
		workspaceLogger.Error().Err(err).Str("path", relPath).Msg("failed to delete workspace file")
		RespondInternalError(c, "Failed to delete file")
		return
	}

	notifications.GetService().NotifyWorkspaceChanged(relPath, "delete")
	RespondNoContent(c)
}
