// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// PersistedState is what survives restarts: the times of the last successful runs.
type PersistedState struct {
	LastMap          time.Time `json:"lastMap,omitempty"`
	LastImport       time.Time `json:"lastImport,omitempty"`
	LastImportEvents int       `json:"lastImportEvents,omitempty"`
}

// StateFile guards a JSON state file.
type StateFile struct {
	mu   sync.Mutex
	path string
}

// NewStateFile does not touch the file system.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the file location.
func (f *StateFile) Path() string { return f.path }

// Load returns the zero state when the file does not exist.
func (f *StateFile) Load() (PersistedState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadLocked()
}

func (f *StateFile) loadLocked() (PersistedState, error) {
	var st PersistedState
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("decode state %s: %w", f.path, err)
	}
	return st, nil
}

// Update applies fn to the stored state and writes it back atomically. An
// unreadable file is replaced.
func (f *StateFile) Update(fn func(*PersistedState)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.loadLocked()
	if err != nil {
		st = PersistedState{}
	}
	fn(&st)
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := renameio.WriteFile(f.path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}
