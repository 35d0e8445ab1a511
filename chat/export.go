package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mholt/archives"

	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/notifications"
	"github.com/tidewell/agentdeck/utils"
	"github.com/tidewell/agentdeck/vendors"
)

// exportMetadata is the metadata.json document inside a session bundle
type exportMetadata struct {
	SessionID        string  `json:"sessionId"`
	AgentID          string  `json:"agentId"`
	RuntimeSessionID *string `json:"runtimeSessionId,omitempty"`
	Title            *string `json:"title,omitempty"`
	TotalCostUSD     float64 `json:"totalCostUsd"`
	TotalTurns       int64   `json:"totalTurns"`
	CreatedAt        int64   `json:"createdAt"`
	UpdatedAt        int64   `json:"updatedAt"`
	ExportedAt       int64   `json:"exportedAt"`
	MessageCount     int     `json:"messageCount"`
}

// exportMessage is one transcript entry in transcript.json. Content is the
// stored content block array, embedded as-is.
type exportMessage struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	Model     *string         `json:"model,omitempty"`
	CreatedAt int64           `json:"createdAt"`
}

// ExportFilename returns the download name for a session bundle
func ExportFilename(row *db.ChatSession) string {
	name := row.ID
	if row.Title != nil && *row.Title != "" {
		name = utils.SanitizeFilename(*row.Title)
	}
	return fmt.Sprintf("%s-%s.tar.gz", name, time.Now().UTC().Format("20060102"))
}

// WriteExport streams a session bundle to w: metadata.json plus
// transcript.json, packed as tar.gz
func WriteExport(ctx context.Context, consoleID string, w io.Writer) error {
	row, err := db.GetChatSession(consoleID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if row == nil {
		return ErrSessionNotFound
	}

	messages, err := db.ListChatMessages(consoleID)
	if err != nil {
		return fmt.Errorf("failed to load transcript: %w", err)
	}

	metadata := exportMetadata{
		SessionID:        row.ID,
		AgentID:          row.AgentID,
		RuntimeSessionID: row.RuntimeSessionID,
		Title:            row.Title,
		TotalCostUSD:     row.TotalCostUSD,
		TotalTurns:       row.TotalTurns,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
		ExportedAt:       db.NowMs(),
		MessageCount:     len(messages),
	}

	transcript := make([]exportMessage, 0, len(messages))
	for _, m := range messages {
		transcript = append(transcript, exportMessage{
			ID:        m.ID,
			Role:      m.Role,
			Content:   json.RawMessage(m.Content),
			Model:     m.Model,
			CreatedAt: m.CreatedAt,
		})
	}

	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	transcriptJSON, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	// archives reads source files from disk, so stage the bundle contents
	// in a temp dir
	tmpDir, err := os.MkdirTemp("", "agentdeck-export-*")
	if err != nil {
		return fmt.Errorf("failed to create export staging dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	metadataPath := filepath.Join(tmpDir, "metadata.json")
	transcriptPath := filepath.Join(tmpDir, "transcript.json")
	if err := os.WriteFile(metadataPath, metadataJSON, 0644); err != nil {
		return fmt.Errorf("failed to stage metadata: %w", err)
	}
	if err := os.WriteFile(transcriptPath, transcriptJSON, 0644); err != nil {
		return fmt.Errorf("failed to stage transcript: %w", err)
	}

	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{
		metadataPath:   "metadata.json",
		transcriptPath: "transcript.json",
	})
	if err != nil {
		return fmt.Errorf("failed to collect bundle files: %w", err)
	}

	format := archives.CompressedArchive{
		Compression: archives.Gz{},
		Archival:    archives.Tar{},
	}
	if err := format.Archive(ctx, w, files); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	logger.Debug().Str("sessionId", consoleID).Int("messages", len(messages)).Msg("exported session bundle")
	return nil
}

// BackupSession uploads a session bundle to the configured OSS bucket.
// No-op when backup is not configured.
func BackupSession(ctx context.Context, consoleID string) error {
	oss := vendors.GetOSSClient()
	if oss == nil {
		return nil
	}

	tmp, err := os.CreateTemp("", "agentdeck-backup-*.tar.gz")
	if err != nil {
		return fmt.Errorf("failed to create backup staging file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := WriteExport(ctx, consoleID, tmp); err != nil {
		return err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind backup file: %w", err)
	}

	objectKey := fmt.Sprintf("agentdeck/sessions/%s/%d.tar.gz", consoleID, db.NowMs())
	if err := oss.Upload(ctx, objectKey, tmp); err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}

	// Presigned link lets the UI offer the bundle without OSS credentials
	downloadURL, err := oss.PresignDownload(ctx, objectKey, 24*time.Hour)
	if err != nil {
		logger.Warn().Err(err).Str("objectKey", objectKey).Msg("failed to presign backup download")
		downloadURL = ""
	}

	logger.Info().Str("sessionId", consoleID).Str("objectKey", objectKey).Msg("session bundle backed up")
	notifications.GetService().NotifyBackupCompleted(consoleID, objectKey, downloadURL)
	return nil
}
