package storage

import (
	"context"
	"fmt"
	"sync"

	"CCNLMonitor/internal/domain"
	"CCNLMonitor/internal/ports"
)

// MemoryStore keeps events, versions, change logs and metrics in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	versions   map[string]domain.AgreementVersion
	events     map[string]domain.UpdateEvent
	changeLogs []domain.ChangeLog
	metrics    []domain.CycleMetrics
}

var (
	_ ports.VersionStore    = (*MemoryStore)(nil)
	_ ports.EventRepository = (*MemoryStore)(nil)
)

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: map[string]domain.AgreementVersion{},
		events:   map[string]domain.UpdateEvent{},
	}
}

// CreateCurrent demotes the agreement's current version and inserts the new one as current.
func (s *MemoryStore) CreateCurrent(_ context.Context, version domain.AgreementVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.versions[version.ID]; exists {
		return fmt.Errorf("version %s already exists", version.ID)
	}
	s.demoteLocked(version.AgreementID)
	version = version.Clone()
	version.IsCurrent = true
	s.versions[version.ID] = version
	return nil
}

// SetCurrent promotes an existing version and demotes every other version of the agreement.
func (s *MemoryStore) SetCurrent(_ context.Context, agreementID, versionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.versions[versionID]
	if !ok || target.AgreementID != agreementID {
		return fmt.Errorf("version %s of %s: %w", versionID, agreementID, domain.ErrNotFound)
	}
	s.demoteLocked(agreementID)
	target.IsCurrent = true
	s.versions[versionID] = target
	return nil
}

// Get returns a copy of one version.
func (s *MemoryStore) Get(_ context.Context, versionID string) (domain.AgreementVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[versionID]
	if !ok {
		return domain.AgreementVersion{}, fmt.Errorf("version %s: %w", versionID, domain.ErrNotFound)
	}
	return v.Clone(), nil
}

// List returns copies of every version of an agreement in no particular order.
func (s *MemoryStore) List(_ context.Context, agreementID string) ([]domain.AgreementVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AgreementVersion
	for _, v := range s.versions {
		if v.AgreementID == agreementID {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// SaveEvent upserts an event by ID.
func (s *MemoryStore) SaveEvent(_ context.Context, event domain.UpdateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
	return nil
}

// SaveChangeLog appends a change log.
func (s *MemoryStore) SaveChangeLog(_ context.Context, log domain.ChangeLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeLogs = append(s.changeLogs, log)
	return nil
}

// SaveMetrics appends a cycle metrics snapshot.
func (s *MemoryStore) SaveMetrics(_ context.Context, metrics domain.CycleMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, metrics)
	return nil
}

// Event returns a stored event.
func (s *MemoryStore) Event(id string) (domain.UpdateEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	return ev, ok
}

// Events returns every stored event.
func (s *MemoryStore) Events() []domain.UpdateEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UpdateEvent, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	return out
}

// ChangeLogs returns every stored change log in insertion order.
func (s *MemoryStore) ChangeLogs() []domain.ChangeLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChangeLog(nil), s.changeLogs...)
}

// Metrics returns every stored metrics snapshot in insertion order.
func (s *MemoryStore) Metrics() []domain.CycleMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CycleMetrics(nil), s.metrics...)
}

func (s *MemoryStore) demoteLocked(agreementID string) {
	for id, v := range s.versions {
		if v.AgreementID == agreementID && v.IsCurrent {
			v.IsCurrent = false
			s.versions[id] = v
		}
	}
}
