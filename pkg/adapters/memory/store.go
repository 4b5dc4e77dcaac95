package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/voicesurvey/pkg/domain"
)

// Store implements ports.ParticipantStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Participant
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Participant),
	}
}

// Find retrieves a copy of the participant so callers cannot mutate store state.
func (s *Store) Find(ctx context.Context, callID string) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[callID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	return p.Snapshot(), nil
}

// Create inserts a participant unless one already exists.
func (s *Store) Create(ctx context.Context, callID, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[callID]; ok {
		return nil
	}
	s.data[callID] = domain.NewParticipant(callID, destination)
	return nil
}

// AppendAnswer appends under the write lock, which makes check-and-append atomic.
func (s *Store) AppendAnswer(ctx context.Context, callID string, answer domain.Answer, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.data[callID]
	if !ok {
		return 0, domain.ErrParticipantNotFound
	}
	if len(p.Answers) >= limit || p.HasRecording(answer.RecordingRef) {
		return len(p.Answers), nil
	}
	p.Answers = append(p.Answers, answer)
	return len(p.Answers), nil
}

// List returns copies of all participants, oldest first.
func (s *Store) List(ctx context.Context) ([]*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participants := make([]*domain.Participant, 0, len(s.data))
	for _, p := range s.data {
		participants = append(participants, p.Snapshot())
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].CreatedAt.Equal(participants[j].CreatedAt) {
			return participants[i].CallID < participants[j].CallID
		}
		return participants[i].CreatedAt.Before(participants[j].CreatedAt)
	})
	return participants, nil
}
