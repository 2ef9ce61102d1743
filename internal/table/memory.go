package table

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Memory is the in-memory backend, used by default and in tests.
type Memory struct {
	mu sync.RWMutex
	m  map[string]map[string]Entity
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]map[string]Entity)}
}

func (s *Memory) Insert(_ context.Context, e Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	part, ok := s.m[e.PartitionKey]
	if !ok {
		part = make(map[string]Entity)
		s.m[e.PartitionKey] = part
	}
	if _, dup := part[e.RowKey]; dup {
		return Entity{}, ErrEntityExists
	}
	e.ETag = uuid.NewString()
	part[e.RowKey] = e
	return e, nil
}

func (s *Memory) Get(_ context.Context, partition, row string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[partition][row]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

func (s *Memory) Update(_ context.Context, e Entity) (Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[e.PartitionKey][e.RowKey]
	if !ok {
		return Entity{}, ErrNotFound
	}
	if cur.ETag != e.ETag {
		return Entity{}, ErrPreconditionFailed
	}
	e.ETag = uuid.NewString()
	s.m[e.PartitionKey][e.RowKey] = e
	return e, nil
}

func (s *Memory) Delete(_ context.Context, partition, row string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m[partition], row)
	return nil
}

func (s *Memory) List(_ context.Context, partition string) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entity, 0, len(s.m[partition]))
	for _, e := range s.m[partition] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowKey < out[j].RowKey })
	return out, nil
}

func (s *Memory) Close() error { return nil }
