package title

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/tidewell/agentdeck/chat/stream"
	"github.com/tidewell/agentdeck/config"
	"github.com/tidewell/agentdeck/db"
	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/notifications"
	"github.com/tidewell/agentdeck/vendors"
)

const (
	// titleBatchSize caps how many sessions get titled per cycle
	titleBatchSize = 10

	// titleInterval is how often we poll for untitled sessions
	titleInterval = 30 * time.Second

	// initialDelay before the first poll
	initialDelay = 10 * time.Second

	// requestTimeout bounds one titling completion call
	requestTimeout = 30 * time.Second

	// excerptLimit caps how much transcript text goes to the titling model
	excerptLimit = 2000
)

// Worker names untitled sessions from their opening exchange.
type Worker struct {
	stopChan chan struct{}
	wg       sync.WaitGroup

	// nudgeChan allows immediate titling after a turn settles
	nudgeChan chan struct{}
}

// NewWorker creates a new session titling worker.
func NewWorker() *Worker {
	return &Worker{
		stopChan:  make(chan struct{}),
		nudgeChan: make(chan struct{}, 1), // buffered so nudge never blocks
	}
}

// Start begins the titling loop and watches for settled turns.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()

	w.wg.Add(1)
	go w.watchSessions()

	log.Info().Msg("session title worker started")
}

// Stop signals the worker to exit and waits for it to finish.
func (w *Worker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
	log.Info().Msg("session title worker stopped")
}

// Nudge asks the worker to run a titling cycle as soon as possible.
func (w *Worker) Nudge() {
	select {
	case w.nudgeChan <- struct{}{}:
	default:
		// already nudged
	}
}

// watchSessions nudges the loop when a turn settles, so fresh sessions get
// their title right after the first exchange
func (w *Worker) watchSessions() {
	defer w.wg.Done()

	events, unsubscribe := notifications.GetService().Subscribe()
	defer unsubscribe()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Type != notifications.EventSessionUpdated {
				continue
			}
			data, ok := event.Data.(map[string]interface{})
			if !ok {
				continue
			}
			if op, _ := data["operation"].(string); strings.HasPrefix(op, "turn_") {
				w.Nudge()
			}
		case <-w.stopChan:
			return
		}
	}
}

// loop is the main goroutine.
func (w *Worker) loop() {
	defer w.wg.Done()

	select {
	case <-time.After(initialDelay):
	case <-w.stopChan:
		return
	}

	w.titlePending()

	ticker := time.NewTicker(titleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.titlePending()
		case <-w.nudgeChan:
			w.titlePending()
		case <-w.stopChan:
			return
		}
	}
}

// titlePending names untitled sessions that have completed a turn.
func (w *Worker) titlePending() {
	if !config.Get().TitlingEnabled() {
		return
	}
	if !autoTitleEnabled() {
		return
	}

	openai := vendors.GetOpenAIClient()
	if openai == nil {
		return
	}

	sessions, err := db.ListUntitledChatSessions(titleBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("title worker: failed to list untitled sessions")
		return
	}

	for _, session := range sessions {
		select {
		case <-w.stopChan:
			return
		default:
		}

		w.titleSession(openai, session.ID)
	}
}

// titleSession derives and stores one session's title
func (w *Worker) titleSession(openai *vendors.OpenAIClient, sessionID string) {
	excerpt, err := sessionExcerpt(sessionID)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("title worker: failed to load transcript")
		return
	}
	if excerpt == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	title, err := openai.GenerateSessionTitle(ctx, excerpt)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("title worker: completion failed")
		return
	}
	if title == "" {
		return
	}

	if err := db.UpdateChatSessionTitle(sessionID, title); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("title worker: failed to store title")
		return
	}

	// Titles are denormalized into search documents
	if err := db.RequeueSessionSearchIndex(sessionID); err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("title worker: failed to requeue search index")
	}

	log.Info().Str("sessionId", sessionID).Str("title", title).Msg("titled session")
	notifications.GetService().NotifySessionUpdated(sessionID, "titled")
}

// autoTitleEnabled reads the chat_auto_title setting (on by default)
func autoTitleEnabled() bool {
	value, err := db.GetSetting("chat_auto_title")
	if err != nil {
		log.Warn().Err(err).Msg("title worker: failed to read auto title setting")
		return false
	}
	return value != "false"
}

// sessionExcerpt builds the titling prompt input from the opening messages
func sessionExcerpt(sessionID string) (string, error) {
	messages, err := db.ListChatMessages(sessionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, m := range messages {
		text := messageText(m.Content)
		if text == "" {
			continue
		}

		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")

		if b.Len() >= excerptLimit {
			break
		}
	}

	excerpt := b.String()
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit]
	}
	return strings.TrimSpace(excerpt), nil
}

// messageText extracts the plain text from a stored content block array
func messageText(contentJSON string) string {
	blocks, err := stream.ParseContentBlocks([]byte(contentJSON))
	if err != nil {
		return ""
	}

	var parts []string
	for _, block := range blocks {
		if text, ok := block.(stream.TextBlock); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, " ")
}
