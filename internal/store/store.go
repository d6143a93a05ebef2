// Package store is the console's settings persistence: one JSON document
// per namespace (fx presets, MIDI mappings, beat kits) under a state
// directory. Reads are best-effort, corrupt data falls back to defaults,
// and write failures are logged but never block playback.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store persists namespaced JSON documents.
type Store struct {
	mu  sync.Mutex
	dir string
	log *zap.Logger
}

// Open creates the state directory if needed and returns a store over it.
func Open(dir string, log *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, log: log.Named("store")}, nil
}

func (s *Store) path(namespace string) string {
	return filepath.Join(s.dir, filepath.Base(namespace)+".json")
}

// Load reads a namespace into v. A missing file (first run) or corrupt data
// leaves v untouched and returns false.
func (s *Store) Load(namespace string, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path(namespace))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("read failed", zap.String("namespace", namespace), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn("corrupt data, using defaults", zap.String("namespace", namespace), zap.Error(err))
		return false
	}
	return true
}

// Save writes a namespace. The document lands via a temp file and rename so
// a crash mid-write cannot corrupt the previous copy.
func (s *Store) Save(namespace string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.log.Warn("encode failed", zap.String("namespace", namespace), zap.Error(err))
		return
	}
	target := s.path(namespace)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.log.Warn("write failed", zap.String("namespace", namespace), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, target); err != nil {
		s.log.Warn("rename failed", zap.String("namespace", namespace), zap.Error(err))
	}
}

// Delete removes a namespace; missing files are not an error.
func (s *Store) Delete(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(namespace)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("delete failed", zap.String("namespace", namespace), zap.Error(err))
	}
}
