// Package storage persists programs (cell declarations) and the runtime
// event log — never the execution graph itself, which is an explicit
// non-goal and lives only in process memory (see internal/execgraph).
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/lucid-cells/cellrun/internal/domain"
)

// Store is the persistence contract both the in-memory and bun-backed
// implementations satisfy, narrowed to this kernel's two persisted
// aggregates: programs and the event log.
type Store interface {
	SaveProgram(ctx context.Context, p domain.ProgramDecl) error
	GetProgram(ctx context.Context, id string) (domain.ProgramDecl, error)
	ListPrograms(ctx context.Context) ([]domain.ProgramDecl, error)

	AppendEvent(ctx context.Context, ev domain.Event) error
	ListEventsByInstance(ctx context.Context, instanceID string) ([]domain.Event, error)
}

// MemoryStore is the default store for tests and for cmd/server when no DSN
// is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	programs map[string]domain.ProgramDecl
	events   []domain.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{programs: make(map[string]domain.ProgramDecl)}
}

func (s *MemoryStore) SaveProgram(ctx context.Context, p domain.ProgramDecl) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[p.ID] = p
	return nil
}

func (s *MemoryStore) GetProgram(ctx context.Context, id string) (domain.ProgramDecl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return domain.ProgramDecl{}, fmt.Errorf("storage: program %q not found", id)
	}
	return p, nil
}

func (s *MemoryStore) ListPrograms(ctx context.Context) ([]domain.ProgramDecl, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProgramDecl, 0, len(s.programs))
	for _, p := range s.programs {
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryStore) AppendEvent(ctx context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *MemoryStore) ListEventsByInstance(ctx context.Context, instanceID string) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Event
	for _, ev := range s.events {
		if ev.InstanceID().String() == instanceID {
			out = append(out, ev)
		}
	}
	return out, nil
}
