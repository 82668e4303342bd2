package store

import (
	"context"
	"sync"

	"github.com/aviaryhq/aviary-go/internal/task"
)

// MemoryStore is the default, in-process task store.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[string]*task.Task),
	}
}

func (s *MemoryStore) Create(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return task.ErrTaskAlreadyExists
	}
	s.tasks[t.ID] = clone(t)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrTaskNotFound
	}
	return clone(t), nil
}

func (s *MemoryStore) Update(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return task.ErrTaskNotFound
	}
	s.tasks[t.ID] = clone(t)
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status task.Status) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*task.Task
	for _, t := range s.tasks {
		if t.Status == status {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return task.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// clone copies a task so callers never share mutable state with the store.
func clone(t *task.Task) *task.Task {
	c := *t
	if t.RuntimeConfig != nil {
		rc := *t.RuntimeConfig
		c.RuntimeConfig = &rc
	}
	if t.Result != nil {
		c.Result = append([]byte(nil), t.Result...)
	}
	return &c
}
