package synctoken

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Store persists per-calendar sync cursors in a single JSON file. The file is
// rewritten atomically (temp file + rename) on every change so that concurrent
// tasks cannot leave a half-written cursor map behind. The format stays a plain
// JSON object so operators can inspect or clear cursors by hand.
type Store struct {
	mu     sync.Mutex
	path   string
	tokens map[string]string
}

func NewStore(path string) *Store {
	s := &Store{
		path:   path,
		tokens: map[string]string{},
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("Sync tokens file %s does not exist, starting fresh", s.path)
		} else {
			log.Warnf("failed to load sync tokens: %v", err)
		}
		return
	}
	if err := json.Unmarshal(data, &s.tokens); err != nil {
		log.Warnf("failed to parse sync tokens file %s: %v", s.path, err)
		s.tokens = map[string]string{}
		return
	}
	log.Infof("Loaded %d sync tokens from %s", len(s.tokens), s.path)
}

// Get returns the stored cursor for the calendar, or "" when none exists.
func (s *Store) Get(calendarId string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[calendarId]
}

// Set stores a new cursor for the calendar and flushes the file.
func (s *Store) Set(calendarId, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.tokens[calendarId]
	s.tokens[calendarId] = token
	if err := s.save(); err != nil {
		s.tokens[calendarId] = old
		return err
	}
	log.Infof("Updated sync token for calendar %q", calendarId)
	return nil
}

// Clear removes the cursor for the calendar, forcing a full sync on the next
// run.
func (s *Store) Clear(calendarId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tokens[calendarId]
	if !ok {
		return nil
	}
	delete(s.tokens, calendarId)
	if err := s.save(); err != nil {
		s.tokens[calendarId] = old
		return err
	}
	log.Infof("Cleared sync token for calendar %q", calendarId)
	return nil
}

// save writes the token map to a temp file in the target directory and renames
// it over the final path. Caller must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("could not marshal sync tokens: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".sync_tokens-*")
	if err != nil {
		return fmt.Errorf("could not create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("could not write sync tokens: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("could not replace sync tokens file: %w", err)
	}
	return nil
}
