package notifications

import (
	"sync"
	"time"
)

// EventType represents the type of notification event
type EventType string

const (
	EventConnected        EventType = "connected"
	EventSessionUpdated   EventType = "session-updated"
	EventWorkspaceChanged EventType = "workspace-changed"
	EventSearchSynced     EventType = "search-synced"
	EventBackupCompleted  EventType = "backup-completed"
)

// Event represents a notification event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Service manages SSE subscriptions and event broadcasting
type Service struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	done        chan struct{}
}

var (
	service     *Service
	serviceOnce sync.Once
)

// GetService returns the process-wide notification service
func GetService() *Service {
	serviceOnce.Do(func() {
		service = NewService()
	})
	return service
}

// NewService creates a new notification service
func NewService() *Service {
	return &Service{
		subscribers: make(map[chan Event]struct{}),
		done:        make(chan struct{}),
	}
}

// Subscribe creates a new subscription channel
// Returns the event channel and an unsubscribe function
func (s *Service) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 10)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		// Only close if the channel is still in subscribers map
		if _, exists := s.subscribers[ch]; exists {
			delete(s.subscribers, ch)
			close(ch)
		}
	}

	return ch, unsubscribe
}

// Notify broadcasts an event to all subscribers
func (s *Service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// NotifySessionUpdated sends a session-updated event
// Used when chat session metadata changes (title, message count, archive state)
func (s *Service) NotifySessionUpdated(sessionID string, operation string) {
	s.Notify(Event{
		Type:      EventSessionUpdated,
		Timestamp: time.Now().UnixMilli(),
		Data: map[string]interface{}{
			"sessionId": sessionID,
			"operation": operation,
		},
	})
}

// NotifyWorkspaceChanged sends a workspace-changed event
// Used when files are created, deleted, renamed, or moved in the workspace
func (s *Service) NotifyWorkspaceChanged(path string, operation string) {
	s.Notify(Event{
		Type:      EventWorkspaceChanged,
		Timestamp: time.Now().UnixMilli(),
		Path:      path,
		Data: map[string]interface{}{
			"operation": operation,
		},
	})
}

// NotifySearchSynced sends a search-synced event after an index sync cycle
func (s *Service) NotifySearchSynced(count int) {
	s.Notify(Event{
		Type:      EventSearchSynced,
		Timestamp: time.Now().UnixMilli(),
		Data: map[string]interface{}{
			"count": count,
		},
	})
}

// NotifyBackupCompleted sends a backup-completed event. DownloadURL is a
// time-limited link to the uploaded bundle, empty when presigning failed.
func (s *Service) NotifyBackupCompleted(sessionID string, objectKey string, downloadURL string) {
	data := map[string]interface{}{
		"sessionId": sessionID,
		"objectKey": objectKey,
	}
	if downloadURL != "" {
		data["downloadUrl"] = downloadURL
	}
	s.Notify(Event{
		Type:      EventBackupCompleted,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
}

// Shutdown closes the notification service
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.done)

	// Close all subscriber channels
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = make(map[chan Event]struct{})
}

// SubscriberCount returns the number of active subscribers
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
