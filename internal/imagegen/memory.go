package imagegen

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for tests and single-binary runs.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[j.ToolCallID]; ok {
		return ErrDuplicateRequest
	}
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = now
	}
	s.jobs[j.ToolCallID] = *j
	return nil
}

func (s *MemoryStore) Get(_ context.Context, toolCallID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[toolCallID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return &j, nil
}

func (s *MemoryStore) Transition(_ context.Context, toolCallID string, from, to Status, out Outcome, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[toolCallID]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = to
	j.UpdatedAt = at
	if out.ImageData != nil {
		v := *out.ImageData
		j.ImageData = &v
	}
	if out.Error != nil {
		v := *out.Error
		j.Error = &v
	}
	s.jobs[toolCallID] = j
	return true, nil
}

func (s *MemoryStore) ListStale(_ context.Context, status Status, before time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Status == status && j.UpdatedAt.Before(before) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.Before(out[b].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
