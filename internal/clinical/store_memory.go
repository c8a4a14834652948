package clinical

import (
	"context"
	"sync"

	"clinauth/internal/access"
	"clinauth/pkg/domain"
)

// MemoryStore keeps patients and events in process; used by tests and the
// demo server when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	patients map[domain.PatientID]access.Patient
	events   map[domain.EventID]access.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients: make(map[domain.PatientID]access.Patient),
		events:   make(map[domain.EventID]access.Event),
	}
}

func (s *MemoryStore) PutPatient(p access.Patient) {
	s.mu.Lock()
	s.patients[p.ID] = p
	s.mu.Unlock()
}

func (s *MemoryStore) PutEvent(e access.Event) {
	s.mu.Lock()
	s.events[e.ID] = e
	s.mu.Unlock()
}

func (s *MemoryStore) GetPatient(ctx context.Context, id domain.PatientID) (*access.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id domain.PatientID, status access.PatientStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = status
	s.patients[id] = p
	return nil
}

func (s *MemoryStore) GetEvent(ctx context.Context, id domain.EventID) (*access.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) DeleteEvent(ctx context.Context, id domain.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}
