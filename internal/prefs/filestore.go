package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore persists the preference record as one JSON document on disk.
// Reads and writes within this process are serialised by a mutex; across
// processes the design accepts last-writer-wins.
type FileStore struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewFileStore builds a store backed by the given path.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "prefs_store").Logger(),
	}
}

// Read returns the current record. An absent, empty, or corrupt file is
// rewritten with defaults and the defaults are returned.
func (s *FileStore) Read(ctx context.Context) (UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Update merges the patch over the current record and replaces it on disk.
// A *ValidationError leaves the stored record untouched.
func (s *FileStore) Update(ctx context.Context, patch Patch) (UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readLocked()
	if err != nil {
		return UserPreferences{}, err
	}

	merged := patch.apply(current)
	if patch.touchesBand() {
		// A fresh band gets a fresh notification on the next cycle.
		merged.LastNotifiedState = nil
	}

	if err := merged.Validate(); err != nil {
		return UserPreferences{}, err
	}

	if err := s.writeLocked(merged); err != nil {
		return UserPreferences{}, err
	}
	return merged, nil
}

func (s *FileStore) readLocked() (UserPreferences, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return UserPreferences{}, fmt.Errorf("read preferences: %w", err)
		}
		return s.resetLocked("file absent")
	}

	if len(data) == 0 {
		return s.resetLocked("file empty")
	}

	var prefs UserPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return s.resetLocked("file corrupt")
	}
	if err := prefs.Validate(); err != nil {
		return s.resetLocked("record invalid")
	}

	return prefs, nil
}

func (s *FileStore) resetLocked(reason string) (UserPreferences, error) {
	defaults := Defaults()
	if err := s.writeLocked(defaults); err != nil {
		return UserPreferences{}, err
	}
	s.logger.Warn().Str("reason", reason).Str("path", s.path).Msg("preferences reset to defaults")
	return defaults, nil
}

func (s *FileStore) writeLocked(prefs UserPreferences) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
