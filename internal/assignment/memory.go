package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fciannella/ace-versioning/pkg/models"
)

// MemoryStore provides an in-memory Store. The whole Put runs under the
// write lock, so create races resolve to a single record.
type MemoryStore struct {
	mu          sync.RWMutex
	assignments map[string]*models.Assignment
}

// NewMemoryStore creates an in-memory assignment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assignments: make(map[string]*models.Assignment)}
}

func (s *MemoryStore) Get(ctx context.Context, userID, characterID string) (*models.Assignment, error) {
	if userID == "" || characterID == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[userID+"|"+characterID]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, a *models.Assignment) (*models.Assignment, bool, error) {
	if a == nil || a.UserID == "" || a.CharacterID == "" {
		return nil, false, fmt.Errorf("assignment user and character are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.assignments[a.Key()]; ok {
		return existing.Clone(), false, nil
	}
	s.assignments[a.Key()] = a.Clone()
	return a.Clone(), true, nil
}

func (s *MemoryStore) Overwrite(ctx context.Context, a *models.Assignment) error {
	if a == nil || a.UserID == "" || a.CharacterID == "" {
		return fmt.Errorf("assignment user and character are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[a.Key()] = a.Clone()
	return nil
}

func (s *MemoryStore) ListByCharacter(ctx context.Context, characterID string) ([]*models.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Assignment, 0)
	for _, a := range s.assignments {
		if a.CharacterID == characterID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// MemoryEventStore provides an in-memory append-only EventStore with an
// optional per-character retention cap.
type MemoryEventStore struct {
	mu              sync.RWMutex
	events          map[string][]*models.AssignmentEvent
	maxPerCharacter int
}

// NewMemoryEventStore creates an in-memory event store. A positive
// maxPerCharacter caps retained events per character, dropping the oldest
// on append; zero keeps everything.
func NewMemoryEventStore(maxPerCharacter int) *MemoryEventStore {
	return &MemoryEventStore{
		events:          make(map[string][]*models.AssignmentEvent),
		maxPerCharacter: maxPerCharacter,
	}
}

func (s *MemoryEventStore) Append(ctx context.Context, ev *models.AssignmentEvent) error {
	if ev == nil || ev.ID == "" {
		return fmt.Errorf("event id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := append(s.events[ev.CharacterID], ev.Clone())
	if s.maxPerCharacter > 0 && len(log) > s.maxPerCharacter {
		log = log[len(log)-s.maxPerCharacter:]
	}
	s.events[ev.CharacterID] = log
	return nil
}

func (s *MemoryEventStore) ListByCharacter(ctx context.Context, characterID string) ([]*models.AssignmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.events[characterID]
	out := make([]*models.AssignmentEvent, 0, len(log))
	for _, ev := range log {
		out = append(out, ev.Clone())
	}
	return out, nil
}

func (s *MemoryEventStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for character, log := range s.events {
		kept := log[:0]
		for _, ev := range log {
			if ev.Timestamp.Before(olderThan) {
				dropped++
				continue
			}
			kept = append(kept, ev)
		}
		s.events[character] = kept
	}
	return dropped, nil
}

// NewMemoryStores constructs a StoreSet backed by memory with unbounded
// event retention.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Assignments: NewMemoryStore(),
		Events:      NewMemoryEventStore(0),
	}
}
