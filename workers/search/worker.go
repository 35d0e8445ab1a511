package search

import (
	"strings"
	"sync"
	"time"

	"github.com/tidewell/agentdeck/chat/stream"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
	"github.com/tidewell/agentdeck/vendors"
)

const (
	// syncBatchSize is the max number of messages to index per batch
	syncBatchSize = 50

	// syncInterval is how often we poll for unindexed messages
	syncInterval = 10 * time.Second

	// initialDelay before the first poll (let the server finish booting)
	initialDelay = 5 * time.Second
)

// SyncWorker pushes unindexed transcript messages to Meilisearch.
type SyncWorker struct {
	stopChan chan struct{}
	wg       sync.WaitGroup

	// nudgeChan allows immediate sync after a turn settles
	nudgeChan chan struct{}
}

// NewSyncWorker creates a new search sync worker.
func NewSyncWorker() *SyncWorker {
	return &SyncWorker{
		stopChan:  make(chan struct{}),
		nudgeChan: make(chan struct{}, 1), // buffered so nudge never blocks
	}
}

// Start begins the sync loop and watches session updates for nudges.
func (w *SyncWorker) Start() {
	w.wg.Add(1)
	go w.loop()

	w.wg.Add(1)
	go w.watchSessions()

	log.Info().Msg("search sync worker started")
}

// Stop signals the worker to exit and waits for it to finish.
func (w *SyncWorker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	log.Info().Msg("search sync worker stopped")
}

// Nudge asks the worker to run a sync cycle as soon as possible.
// Non-blocking; if a nudge is already pending it is a no-op.
func (w *SyncWorker) Nudge() {
	select {
	case w.nudgeChan <- struct{}{}:
	default:
		// already nudged
	}
}

// watchSessions nudges the sync loop whenever a session changes, so
// settled turns reach the index without waiting for the next poll
func (w *SyncWorker) watchSessions() {
	defer w.wg.Done()

	events, unsubscribe := notifications.GetService().Subscribe()
	defer unsubscribe()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type == notifications.EventSessionUpdated {
				w.Nudge()
			}
		case <-w.stopChan:
			return
		}
	}
}

// loop is the main goroutine.
func (w *SyncWorker) loop() {
	defer w.wg.Done()

	// Wait a bit before first sync to let other services initialize
	select {
	case <-time.After(initialDelay):
	case <-w.stopChan:
		return
	}

	// Run an initial full sync on startup
	w.syncPending()

	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.syncPending()
		case <-w.nudgeChan:
			w.syncPending()
		case <-w.stopChan:
			return
		}
	}
}

// syncPending drains the unindexed message queue in batches and pushes
// each batch to Meilisearch.
func (w *SyncWorker) syncPending() {
	meili := vendors.GetMeiliClient()
	if meili == nil {
		// Meilisearch not configured, nothing to do
		return
	}

	totalIndexed := 0

	for {
		// Check for shutdown between batches
		select {
		case <-w.stopChan:
			log.Info().Int("indexed", totalIndexed).Msg("search sync: interrupted by shutdown")
			return
		default:
		}

		items, err := db.ListUnindexedChatMessages(syncBatchSize)
		if err != nil {
			log.Error().Err(err).Msg("search sync: failed to list unindexed messages")
			return
		}

		if len(items) == 0 {
			break
		}

		docs := make([]vendors.TranscriptDocument, 0, len(items))
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.MessageID)

			text := searchableText(item.Content)
			if text == "" {
				// Tool-only messages carry nothing worth searching;
				// mark them indexed without a document
				continue
			}

			title := ""
			if item.Title != nil {
				title = *item.Title
			}
			docs = append(docs, vendors.TranscriptDocument{
				DocumentID: item.MessageID,
				SessionID:  item.SessionID,
				AgentID:    item.AgentID,
				Role:       item.Role,
				Content:    text,
				Title:      title,
				CreatedAt:  item.CreatedAt,
			})
		}

		if len(docs) > 0 {
			if err := meili.IndexDocuments(docs); err != nil {
				// Leave the batch queued and retry next cycle
				log.Warn().Err(err).Int("count", len(docs)).Msg("search sync: failed to index batch")
				return
			}
		}

		if err := db.MarkChatMessagesIndexed(ids); err != nil {
			log.Error().Err(err).Msg("search sync: failed to mark messages indexed")
			return
		}

		totalIndexed += len(docs)

		// A short batch means the queue is drained
		if len(items) < syncBatchSize {
			break
		}
	}

	if totalIndexed > 0 {
		log.Info().Int("indexed", totalIndexed).Msg("search sync: cycle complete")
		notifications.GetService().NotifySearchSynced(totalIndexed)
	}
}

// searchableText flattens a stored content block array into plain text for
// indexing. Tool invocations are skipped; their results are kept.
func searchableText(contentJSON string) string {
	blocks, err := stream.ParseContentBlocks([]byte(contentJSON))
	if err != nil {
		return ""
	}

	var parts []string
	for _, block := range blocks {
		switch b := block.(type) {
		case stream.TextBlock:
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case stream.ToolResultBlock:
			if b.Content != "" {
				parts = append(parts, b.Content)
			}
		case stream.AskUserQuestionBlock:
			for _, q := range b.Questions {
				if q.Question != "" {
					parts = append(parts, q.Question)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}
