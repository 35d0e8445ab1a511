package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// watcher handles filesystem watching using fsnotify
type watcher struct {
	service   *Service
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	stopChan  chan struct{}
}

// newWatcher creates a new filesystem watcher
func newWatcher(service *Service) *watcher {
	w := &watcher{
		service:  service,
		stopChan: make(chan struct{}),
	}
	// Coalesce rapid events; copies into the workspace arrive in bursts
	w.debouncer = newDebouncer(DefaultDebounceDelay, w.processDebounced)
	return w
}

// Start begins watching the workspace
func (w *watcher) Start() error {
	var err error
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	logger.Info().Str("root", w.service.root).Msg("starting workspace watcher")

	// Watch the workspace root recursively
	if err := w.watchRecursive(w.service.root); err != nil {
		logger.Error().Err(err).Msg("failed to watch workspace directory")
		return err
	}

	w.service.wg.Add(1)
	go w.eventLoop()

	logger.Info().Msg("workspace watcher started")
	return nil
}

// Stop stops the filesystem watcher gracefully
func (w *watcher) Stop() {
	// Stop debouncer before closing stopChan to prevent race
	// where events try to queue after debouncer is stopped
	if w.debouncer != nil {
		w.debouncer.Stop()
	}

	close(w.stopChan)

	if w.watcher != nil {
		w.watcher.Close()
	}
}

// processDebounced is called by the debouncer when an event is ready
func (w *watcher) processDebounced(path string, eventType EventType) {
	logger.Debug().Str("path", path).Str("op", eventType.String()).Msg("workspace change")
	w.service.notifyChange(ChangeEvent{Path: path, Op: eventType})
}

// watchRecursive adds all directories under root to the watcher
func (w *watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		relPath, _ := filepath.Rel(w.service.root, path)
		if isExcluded(relPath) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
			}
		}

		return nil
	})
}

// eventLoop processes filesystem events
func (w *watcher) eventLoop() {
	defer w.service.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("watcher error")

		case <-w.stopChan:
			return
		}
	}
}

// handleEvent processes a single filesystem event
func (w *watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.service.root, event.Name)
	if err != nil {
		return
	}

	if isExcluded(relPath) {
		return
	}

	relPath = filepath.ToSlash(relPath)

	info, err := os.Stat(event.Name)
	if err != nil {
		// File gone from this path; Remove and Rename both mean delete here
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			w.debouncer.Queue(relPath, EventDelete)
		}
		return
	}

	isCreate := event.Op&fsnotify.Create != 0
	isWrite := event.Op&fsnotify.Write != 0

	// New subdirectories join the watch set
	if info.IsDir() {
		if isCreate {
			w.watcher.Add(event.Name)
			w.debouncer.Queue(relPath, EventCreate)
		}
		return
	}

	if isCreate {
		w.debouncer.Queue(relPath, EventCreate)
	} else if isWrite {
		w.debouncer.Queue(relPath, EventWrite)
	}
}

// isExcluded hides dotfiles and partial-upload artifacts from watching
func isExcluded(relPath string) bool {
	if relPath == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
