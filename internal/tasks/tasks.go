// internal/tasks/tasks.go
//
// Package tasks stores named research tasks in a JSON file. A task couples a
// query with an optional cron schedule and the session key whose history it
// extends; the same key doubles as the delivery route for results.
package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Task is a named query that can run on a schedule or via webhook.
type Task struct {
	Name       string `json:"name"`
	Query      string `json:"query"`
	Schedule   string `json:"schedule,omitempty"`
	SessionKey string `json:"session_key"`
	Enabled    bool   `json:"enabled"`
}

// Store is a JSON-file-backed task collection.
type Store struct {
	path string
	mu   sync.RWMutex
}

// NewStore creates a Store backed by the given file path. The file is
// created on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// List returns all tasks, or an empty slice when the file does not exist.
func (s *Store) List() ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.load()
	if err != nil {
		return nil, err
	}
	if list == nil {
		return []*Task{}, nil
	}
	return list, nil
}

// Get finds a task by name.
func (s *Store) Get(name string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, task := range list {
		if task.Name == name {
			return task, nil
		}
	}
	return nil, fmt.Errorf("task not found: %s", name)
}

// Add appends a task, rejecting duplicate names.
func (s *Store) Add(task *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing.Name == task.Name {
			return fmt.Errorf("task already exists: %s", task.Name)
		}
	}
	return s.save(append(list, task))
}

// Remove deletes a task by name.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return err
	}
	for i, task := range list {
		if task.Name == name {
			return s.save(append(list[:i], list[i+1:]...))
		}
	}
	return fmt.Errorf("task not found: %s", name)
}

// SetEnabled toggles the enabled flag for a task.
func (s *Store) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return err
	}
	for _, task := range list {
		if task.Name == name {
			task.Enabled = enabled
			return s.save(list)
		}
	}
	return fmt.Errorf("task not found: %s", name)
}

func (s *Store) load() ([]*Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read tasks file: %w", err)
	}

	var list []*Task
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	return list, nil
}

// save writes the list atomically via a temp file and rename.
func (s *Store) save(list []*Task) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create tasks dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp tasks file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp tasks file: %w", err)
	}
	return nil
}
