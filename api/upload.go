package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/tus/tusd/v2/pkg/filestore"
	tusd "github.com/tus/tusd/v2/pkg/handler"

	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
	"github.com/tidewell/agentdeck/workspace"
)

var uploadLogger = log.GetLogger("ApiUpload")

var (
	tusHandler     http.Handler
	tusHandlerOnce sync.Once
	uploadDir      string
)

// maxTusUploadSize bounds resumable uploads. Attachments can be large
// (datasets, archives an agent should work on), so this is generous.
const maxTusUploadSize = 10 * 1024 * 1024 * 1024 // 10GB

// InitTUSHandler initializes the TUS upload handler
func InitTUSHandler() (http.Handler, error) {
	var initErr error
	tusHandlerOnce.Do(func() {
		cfg := config.Get()
		uploadDir = filepath.Join(cfg.DataDir, "uploads")

		// Ensure upload directory exists
		if err := os.MkdirAll(uploadDir, 0755); err != nil {
			initErr = err
			return
		}

		// Create file store
		store := filestore.New(uploadDir)

		// Create TUS handler
		composer := tusd.NewStoreComposer()
		store.UseIn(composer)

		handler, err := tusd.NewHandler(tusd.Config{
			BasePath:                "/api/upload/tus/",
			StoreComposer:           composer,
			RespectForwardedHeaders: true,
			MaxSize:                 maxTusUploadSize,
		})
		if err != nil {
			initErr = err
			return
		}

		tusHandler = handler
		uploadLogger.Info().Str("dir", uploadDir).Msg("TUS handler initialized")
	})
	return tusHandler, initErr
}

// TUSHandler handles all TUS protocol requests
func TUSHandler(c *gin.Context) {
	handler, err := InitTUSHandler()
	if err != nil {
		uploadLogger.Error().Err(err).Msg("failed to initialize TUS handler")
		RespondInternalError(c, "Failed to initialize upload handler")
		return
	}

	// Manually strip the /api/upload/tus prefix from the request URL.
	// The TUS handler expects paths without the base path prefix, and
	// http.StripPrefix doesn't play well with Gin's wildcard routes.
	originalPath := c.Request.URL.Path
	c.Request.URL.Path = strings.TrimPrefix(originalPath, "/api/upload/tus")

	handler.ServeHTTP(c.Writer, c.Request)

	c.Request.URL.Path = originalPath
}

// FinalizeUpload handles POST /api/upload/finalize
// Moves completed TUS uploads into the workspace under their original
// filenames. Accepts an array to support batch finalization.
func FinalizeUpload(c *gin.Context) {
	var body struct {
		Uploads []struct {
			UploadID string `json:"uploadId"`
			Filename string `json:"filename"`
		} `json:"uploads"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}
	if len(body.Uploads) == 0 {
		RespondBadRequest(c, "No uploads provided")
		return
	}
	if workspaceSvc == nil {
		RespondServiceUnavailable(c, "Workspace is not available")
		return
	}

	// Make sure the TUS store and uploadDir exist even if no TUS request
	// hit this process yet
	if _, err := InitTUSHandler(); err != nil {
		RespondInternalError(c, "Failed to initialize upload handler")
		return
	}

	var files []workspace.FileInfo
	for _, upload := range body.Uploads {
		if upload.UploadID == "" || upload.Filename == "" {
			uploadLogger.Warn().
				Str("uploadId", upload.UploadID).
				Str("filename", upload.Filename).
				Msg("skipping upload with missing uploadId or filename")
			continue
		}

		// Source file from TUS uploads
		srcPath := filepath.Join(uploadDir, upload.UploadID)
		if _, err := os.Stat(srcPath); err != nil {
			// Fallback: some stores write with a .bin extension
			srcPath += ".bin"
			if _, err := os.Stat(srcPath); err != nil {
				uploadLogger.Error().Str("uploadId", upload.UploadID).Err(err).Msg("upload file not found")
				continue
			}
		}

		src, err := os.Open(srcPath)
		if err != nil {
			uploadLogger.Error().Err(err).Str("uploadId", upload.UploadID).Msg("failed to open uploaded file")
			continue
		}

		info, err := workspaceSvc.SaveFile(upload.Filename, src)
		src.Close()
		if err != nil {
			uploadLogger.Error().Err(err).Str("filename", upload.Filename).Msg("failed to move upload into workspace")
			continue
		}

		// Clean up TUS upload files
		os.Remove(srcPath)
		os.Remove(srcPath + ".info")

		uploadLogger.Info().
			Str("name", info.Name).
			Int64("size", info.Size).
			Msg("upload finalized")

		files = append(files, info)
	}

	if len(files) == 0 {
		RespondBadRequest(c, "No valid files to finalize")
		return
	}

	notifications.GetService().NotifyWorkspaceChanged(files[0].Path, "upload")
	RespondData(c, gin.H{"files": files})
}

// SimpleUpload handles PUT /api/upload/simple/:filename
// Single-request upload for small files, bypassing TUS protocol overhead.
// The request body is the raw file content.
func SimpleUpload(c *gin.Context) {
	filename := c.Param("filename")
	if filename == "" {
		RespondBadRequest(c, "Filename is required")
		return
	}
	if workspaceSvc == nil {
		RespondServiceUnavailable(c, "Workspace is not available")
		return
	}

	limit := maxSimpleUploadBytes()
	if c.Request.ContentLength > limit {
		RespondBadRequest(c, "File exceeds the upload size limit")
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	defer body.Close()

	info, err := workspaceSvc.SaveFile(filename, body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			RespondBadRequest(c, "File exceeds the upload size limit")
			return
		}
		if errors.Is(err, workspace.ErrInvalidPath) {
			RespondBadRequest(c, "Invalid filename")
			return
		}
		uploadLogger.Error().Err(err).Str("filename", filename).Msg("simple upload failed")
		RespondInternalError(c, "Failed to write file")
		return
	}

	notifications.GetService().NotifyWorkspaceChanged(info.Path, "upload")
	RespondCreated(c, info, "")
}

// maxSimpleUploadBytes reads the storage_max_upload_size setting (MB)
func maxSimpleUploadBytes() int64 {
	mb := 50
	if raw, err := db.GetSetting("storage_max_upload_size"); err == nil && raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			mb = v
		}
	}
	return int64(mb) * 1024 * 1024
}
