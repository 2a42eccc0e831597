// Package credentials persists the desktop client's login with file watching.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codepaste/typer/internal/logger"
	"github.com/codepaste/typer/internal/models"
)

// SessionFile is the JSON layout of the session file.
type SessionFile struct {
	Session *models.SavedSession `json:"session,omitempty"`
	Version int                  `json:"version,omitempty"`
}

// Event represents a credentials service event.
type Event struct {
	Type    EventType
	Error   error
	Session *models.SavedSession
}

// EventType defines the type of credentials event.
type EventType int

const (
	EventSessionLoaded EventType = iota
	EventSessionSaved
	EventSessionCleared
	// EventSessionChanged is sent when another process rewrote the file.
	EventSessionChanged
	EventError
)

// Service keeps the saved session in memory and on disk.
type Service struct {
	mu            sync.RWMutex
	session       *models.SavedSession
	filePath      string
	watcher       *fsnotify.Watcher
	eventChan     chan Event
	stopChan      chan struct{}
	debounceTimer *time.Timer
	// lastWrite is the content this process wrote last, used to ignore
	// watcher events caused by our own saves.
	lastWrite []byte
	now       func() time.Time
}

func defaultSessionPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "codepaste", "session.json")
}

// New creates the service, loads any saved session and starts watching.
func New(filePath string) (*Service, error) {
	if filePath == "" {
		filePath = defaultSessionPath()
	}

	s := &Service{
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
		now:       time.Now,
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := s.load(); err != nil {
		if !os.IsNotExist(err) {
			// A corrupt session file only costs a login
			logger.Warn("discarding unreadable session file", "path", filePath, "error", err)
		}
		if err := s.write(nil); err != nil {
			return nil, fmt.Errorf("failed to create session file: %w", err)
		}
	}

	if err := s.startWatcher(); err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}

	s.sendEvent(Event{Type: EventSessionLoaded, Session: s.Get()})
	return s, nil
}

// Path returns the session file path.
func (s *Service) Path() string {
	return s.filePath
}

// Events returns the event channel.
func (s *Service) Events() <-chan Event {
	return s.eventChan
}

// Get returns a copy of the saved session, or nil when logged out.
func (s *Service) Get() *models.SavedSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil
	}
	saved := *s.session
	return &saved
}

// Save persists a login.
func (s *Service) Save(token, email string, credits int64) error {
	saved := &models.SavedSession{
		SavedAt: s.now().UTC(),
		Token:   token,
		Email:   email,
		Credits: credits,
	}
	if !saved.Valid() {
		return errors.New("session needs a token and an email")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(saved); err != nil {
		return err
	}
	s.session = saved

	copied := *saved
	s.sendEvent(Event{Type: EventSessionSaved, Session: &copied})
	return nil
}

// UpdateCredits refreshes the cached balance without touching the token.
func (s *Service) UpdateCredits(credits int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.Credits == credits {
		return nil
	}
	updated := *s.session
	updated.Credits = credits
	if err := s.write(&updated); err != nil {
		return err
	}
	s.session = &updated
	return nil
}

// Clear forgets the saved login.
func (s *Service) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(nil); err != nil {
		return err
	}
	s.session = nil

	s.sendEvent(Event{Type: EventSessionCleared})
	return nil
}

func parseSession(data []byte) (*models.SavedSession, error) {
	var file SessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if !file.Session.Valid() {
		return nil, nil
	}
	return file.Session, nil
}

func (s *Service) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	saved, err := parseSession(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session = saved
	s.lastWrite = data
	s.mu.Unlock()
	return nil
}

// write saves the session file atomically (must hold lock).
func (s *Service) write(saved *models.SavedSession) error {
	data, err := json.MarshalIndent(SessionFile{Session: saved, Version: 1}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Write to temp file first, then rename
	tmpFile := s.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpFile, s.filePath); err != nil {
		if removeErr := os.Remove(tmpFile); removeErr != nil {
			logger.Error("failed to remove temp file", "error", removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.lastWrite = data
	return nil
}

func (s *Service) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	// Watch the directory (to catch file creation/deletion)
	if err := watcher.Add(filepath.Dir(s.filePath)); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			logger.Error("failed to close watcher", "error", closeErr)
		}
		return err
	}

	go s.watchLoop()
	return nil
}

func (s *Service) watchLoop() {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.filePath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
				s.mu.Lock()
				if s.debounceTimer != nil {
					s.debounceTimer.Stop()
				}
				s.debounceTimer = time.AfterFunc(debounceInterval, s.handleFileChange)
				s.mu.Unlock()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.sendEvent(Event{Type: EventError, Error: err})

		case <-s.stopChan:
			return
		}
	}
}

// handleFileChange picks up a login or logout made by another process.
func (s *Service) handleFileChange() {
	data, err := os.ReadFile(s.filePath)
	if err != nil && !os.IsNotExist(err) {
		s.sendEvent(Event{Type: EventError, Error: err})
		return
	}

	var saved *models.SavedSession
	if err == nil {
		saved, err = parseSession(data)
		if err != nil {
			s.sendEvent(Event{Type: EventError, Error: err})
			return
		}
	}

	s.mu.Lock()
	if data != nil && string(data) == string(s.lastWrite) {
		s.mu.Unlock()
		return
	}
	s.session = saved
	s.lastWrite = data
	s.mu.Unlock()

	s.sendEvent(Event{Type: EventSessionChanged, Session: s.Get()})
}

// sendEvent sends an event to the event channel non-blocking.
func (s *Service) sendEvent(event Event) {
	select {
	case s.eventChan <- event:
	default:
		// Channel full, drop oldest event
		select {
		case <-s.eventChan:
		default:
		}
		select {
		case s.eventChan <- event:
		default:
		}
	}
}

// Close stops the file watcher.
func (s *Service) Close() error {
	close(s.stopChan)

	s.mu.Lock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.mu.Unlock()

	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
