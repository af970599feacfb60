package memory

import (
	"context"
	"sync"

	"quiz-result-service/internal/domain"
)

// ScoreStore is an in-memory implementation of app.ScoreRepository.
// Each test code gets its own board so submissions to different codes do not contend.
type ScoreStore struct {
	mu     sync.RWMutex
	boards map[string]*board
}

type board struct {
	mu      sync.Mutex
	records map[string]domain.ScoreRecord
}

func NewScoreStore() *ScoreStore {
	return &ScoreStore{
		boards: make(map[string]*board),
	}
}

func (s *ScoreStore) getOrCreate(testCode string) *board {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.boards[testCode]; ok {
		return b
	}
	b := &board{records: make(map[string]domain.ScoreRecord)}
	s.boards[testCode] = b
	return b
}

func (s *ScoreStore) get(testCode string) (*board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[testCode]
	return b, ok
}

func (s *ScoreStore) UpsertBest(_ context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	b := s.getOrCreate(rec.TestCode)
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.records[rec.UserID]
	if ok && !rec.Improves(current) {
		return current, nil
	}
	// Rank belongs to the ranker; keep whatever it last wrote.
	rec.Rank = current.Rank
	b.records[rec.UserID] = rec
	return rec, nil
}

func (s *ScoreStore) Get(_ context.Context, testCode, userID string) (domain.ScoreRecord, error) {
	b, ok := s.get(testCode)
	if !ok {
		return domain.ScoreRecord{}, domain.ErrScoreNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[userID]
	if !ok {
		return domain.ScoreRecord{}, domain.ErrScoreNotFound
	}
	return rec, nil
}

func (s *ScoreStore) ListByTestCode(_ context.Context, testCode string) ([]domain.ScoreRecord, error) {
	b, ok := s.get(testCode)
	if !ok {
		return nil, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.ScoreRecord, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec)
	}
	return out, nil
}

func (s *ScoreStore) SaveRanks(_ context.Context, testCode string, ranks map[string]int) error {
	b, ok := s.get(testCode)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for userID, rank := range ranks {
		if rec, ok := b.records[userID]; ok {
			rec.Rank = rank
			b.records[userID] = rec
		}
	}
	return nil
}

func (s *ScoreStore) Count(_ context.Context, testCode string) (int, error) {
	b, ok := s.get(testCode)
	if !ok {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records), nil
}
