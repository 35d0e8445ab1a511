package workspace

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidewell/agentdeck/log"
	"github.com/tidewell/agentdeck/utils"
)

// Size of the buffered channel for change notifications.
// Bounds goroutine creation during batch copies into the workspace.
const changeNotificationBufferSize = 100

var logger = log.GetLogger("Workspace")

// ErrInvalidPath is returned for paths that escape or leave the workspace root
var ErrInvalidPath = errors.New("workspace: invalid path")

// ChangeEvent describes a file change observed in the workspace
type ChangeEvent struct {
	Path string
	Op   EventType
}

// ChangeHandler receives workspace change events
type ChangeHandler func(event ChangeEvent)

// FileInfo describes a workspace entry for API listings
type FileInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	ModTime  int64  `json:"modTime"`
	IsDir    bool   `json:"isDir"`
	MimeType string `json:"mimeType,omitempty"`
}

// Service manages the shared workspace directory. Files placed here are
// attachable to turns; external edits are watched and surfaced to the UI.
type Service struct {
	root    string
	watcher *watcher

	changeHandler ChangeHandler
	handlerMu     sync.RWMutex
	changeChan    chan ChangeEvent

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewService creates a workspace service rooted at the given directory,
// creating it if needed
func NewService(root string) (*Service, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, err
	}

	s := &Service{
		root:       absRoot,
		stopChan:   make(chan struct{}),
		changeChan: make(chan ChangeEvent, changeNotificationBufferSize),
	}
	s.watcher = newWatcher(s)
	return s, nil
}

// Root returns the absolute workspace root directory
func (s *Service) Root() string {
	return s.root
}

// Start begins watching the workspace
func (s *Service) Start() error {
	logger.Info().Str("root", s.root).Msg("starting workspace service")

	s.wg.Add(1)
	go s.changeNotificationWorker()

	if err := s.watcher.Start(); err != nil {
		return err
	}

	logger.Info().Msg("workspace service started")
	return nil
}

// Stop gracefully shuts down the service
func (s *Service) Stop() error {
	logger.Info().Msg("stopping workspace service")

	close(s.stopChan)
	s.watcher.Stop()
	s.wg.Wait()

	logger.Info().Msg("workspace service stopped")
	return nil
}

// SetChangeHandler registers the callback invoked for debounced changes
func (s *Service) SetChangeHandler(handler ChangeHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.changeHandler = handler
}

// notifyChange queues a change event. Events are processed by a single
// worker goroutine; when the buffer is full the event is dropped.
func (s *Service) notifyChange(event ChangeEvent) {
	select {
	case s.changeChan <- event:
	case <-s.stopChan:
	default:
		logger.Warn().Str("path", event.Path).Msg("change notification buffer full, dropping event")
	}
}

func (s *Service) changeNotificationWorker() {
	defer s.wg.Done()

	for {
		select {
		case event := <-s.changeChan:
			s.handlerMu.RLock()
			handler := s.changeHandler
			s.handlerMu.RUnlock()
			if handler != nil {
				handler(event)
			}
		case <-s.stopChan:
			return
		}
	}
}

// resolvePath turns a client-supplied relative path into an absolute path
// inside the workspace, rejecting traversal attempts
func (s *Service) resolvePath(relPath string) (string, error) {
	cleaned := filepath.Clean("/" + relPath)
	full := filepath.Join(s.root, cleaned)
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

// ListFiles returns the entries of a workspace directory, directories first
func (s *Service) ListFiles(relDir string) ([]FileInfo, error) {
	dir, err := s.resolvePath(relDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		// Hidden files stay out of listings
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		rel, err := filepath.Rel(s.root, filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}

		fi := FileInfo{
			Name:    entry.Name(),
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime().UnixMilli(),
			IsDir:   entry.IsDir(),
		}
		if !entry.IsDir() {
			fi.MimeType = utils.DetectMimeType(entry.Name())
		}
		files = append(files, fi)
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].IsDir != files[j].IsDir {
			return files[i].IsDir
		}
		return files[i].Name < files[j].Name
	})

	return files, nil
}

// SaveFile writes an uploaded file into the workspace root. Name collisions
// are resolved with numbered suffixes rather than overwriting.
func (s *Service) SaveFile(filename string, r io.Reader) (FileInfo, error) {
	name := utils.SanitizeFilename(filename)
	if name == "" || name == "." {
		return FileInfo{}, ErrInvalidPath
	}
	name = utils.DeduplicateFilename(s.root, name)

	full := filepath.Join(s.root, name)
	f, err := os.Create(full)
	if err != nil {
		return FileInfo{}, err
	}

	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(full)
		return FileInfo{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return FileInfo{}, err
	}

	logger.Info().Str("name", name).Int64("size", size).Msg("saved workspace file")

	return FileInfo{
		Name:     name,
		Path:     name,
		Size:     size,
		ModTime:  info.ModTime().UnixMilli(),
		MimeType: utils.DetectMimeType(name),
	}, nil
}

// DeleteFile removes a file from the workspace
func (s *Service) DeleteFile(relPath string) error {
	full, err := s.resolvePath(relPath)
	if err != nil {
		return err
	}
	if full == s.root {
		return ErrInvalidPath
	}

	info, err := os.Stat(full)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return os.RemoveAll(full)
	}
	return os.Remove(full)
}
