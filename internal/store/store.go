// Package store provides crash-safe portfolio persistence using a JSON
// file. Writes use atomic file replacement (write to .tmp, then rename)
// to prevent corruption from partial writes or crashes mid-save. The
// engine saves after each tick that changed state and loads on startup
// so a restart resumes with its open positions and equity intact.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"polymarket-meanrev/internal/portfolio"
)

const stateFile = "portfolio.json"

// Store persists portfolio state under a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// Save atomically persists the portfolio state. It writes to a .tmp
// file first, then renames over the target so the file is never left in
// a partial state.
func (s *Store) Save(st portfolio.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	path := filepath.Join(s.dir, stateFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores the saved portfolio state from disk.
// Returns nil, nil if no saved state exists (fresh start).
func (s *Store) Load() (*portfolio.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, stateFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var st portfolio.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &st, nil
}
