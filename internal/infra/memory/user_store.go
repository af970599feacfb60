package memory

import (
	"context"
	"sync"

	"quiz-result-service/internal/domain"
)

// UserStore keeps users and their quiz history in memory.
type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewUserStore(users ...domain.User) *UserStore {
	s := &UserStore{users: make(map[string]*domain.User, len(users))}
	for _, u := range users {
		_ = s.Create(context.Background(), u)
	}
	return s
}

// Create adds or replaces a user.
func (s *UserStore) Create(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	u.QuizHistory = cloneHistory(user.QuizHistory)
	s.users[user.ID] = &u
	return nil
}

func (s *UserStore) FindByID(_ context.Context, userID string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	out := *u
	out.QuizHistory = cloneHistory(u.QuizHistory)
	return out, nil
}

func (s *UserStore) Exists(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *UserStore) PrependHistory(_ context.Context, userID string, entry domain.QuizHistoryEntry) ([]domain.QuizHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	history := make([]domain.QuizHistoryEntry, 0, len(u.QuizHistory)+1)
	history = append(history, entry)
	history = append(history, u.QuizHistory...)
	u.QuizHistory = history
	return cloneHistory(history), nil
}

func cloneHistory(in []domain.QuizHistoryEntry) []domain.QuizHistoryEntry {
	if in == nil {
		return []domain.QuizHistoryEntry{}
	}
	out := make([]domain.QuizHistoryEntry, len(in))
	copy(out, in)
	return out
}
