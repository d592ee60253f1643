// Package state keeps the little the device remembers across sleep cycles.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// State is persisted as YAML.
type State struct {
	LastClip  string    `yaml:"last_clip,omitempty"`
	Cycles    int       `yaml:"cycles"`
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// Store reads and writes State at a fixed path. An empty path keeps state
// in memory only.
type Store struct {
	path string

	mu      sync.Mutex
	current State
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the state file. A missing file yields the zero State.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return s.current, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return s.current, nil
	}
	if err != nil {
		return s.current, err
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return s.current, fmt.Errorf("state: parse %s: %w", s.path, err)
	}
	s.current = st
	return st, nil
}

// Save writes st atomically so that a power cut never leaves a torn file.
func (s *Store) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = st
	if s.path == "" {
		return nil
	}

	data, err := yaml.Marshal(&st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
