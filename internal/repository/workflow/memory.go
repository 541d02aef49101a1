package workflow

import (
	"context"
	"sort"
	"sync"

	"github.com/Additional-Code/fulfillment/internal/entity"
)

// MemoryStore keeps workflows in process memory. Every value crossing its
// boundary is a deep copy.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*entity.Workflow
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]*entity.Workflow)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, orderNumber string) (*entity.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[orderNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return wf.Clone(), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]*entity.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		if filter.matches(wf) {
			out = append(out, wf.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Series != out[j].Series {
			return out[i].Series < out[j].Series
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

// Create implements Store.
func (s *MemoryStore) Create(ctx context.Context, wf *entity.Workflow) (*entity.Workflow, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.workflows[wf.OrderNumber]; ok {
		return existing.Clone(), false, nil
	}
	stored := wf.Clone()
	stored.SortLines()
	s.workflows[wf.OrderNumber] = stored
	return stored.Clone(), true, nil
}

// Mutate implements Store.
func (s *MemoryStore) Mutate(ctx context.Context, orderNumber string, fn func(*entity.Workflow) error) (*entity.Workflow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.workflows[orderNumber]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.SortLines()
	s.workflows[orderNumber] = working
	return working.Clone(), nil
}
