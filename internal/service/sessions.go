package service

import (
	"context"
	"sync"

	"quizduel/internal/cache"
	"quizduel/internal/repository"
)

// Sessions hands out one Matchmaker per participant, created on demand and
// dropped when the participant's connection goes away.
type Sessions struct {
	matches   repository.MatchRepo
	questions repository.QuestionRepo
	pool      cache.PoolCache
	presenter Presenter
	clock     Clock

	mu   sync.Mutex
	byID map[string]*Matchmaker
}

func NewSessions(
	matches repository.MatchRepo,
	questions repository.QuestionRepo,
	pool cache.PoolCache,
	presenter Presenter,
	clock Clock,
) *Sessions {
	return &Sessions{
		matches:   matches,
		questions: questions,
		pool:      pool,
		presenter: presenter,
		clock:     clock,
		byID:      make(map[string]*Matchmaker),
	}
}

// Get returns the participant's matchmaker, creating it if needed.
func (s *Sessions) Get(participantID string) *Matchmaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.byID[participantID]
	if !ok {
		mm = NewMatchmaker(s.matches, s.questions, s.pool, s.presenter, s.clock)
		s.byID[participantID] = mm
	}
	return mm
}

// Drop cancels any search in progress and forgets the participant.
func (s *Sessions) Drop(ctx context.Context, participantID string) {
	s.mu.Lock()
	mm, ok := s.byID[participantID]
	delete(s.byID, participantID)
	s.mu.Unlock()
	if ok {
		mm.CancelSearch(ctx)
	}
}
