package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"quiz-result-service/internal/domain"
)

// UserRepository abstracts the user document store and its quiz history log.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	// Exists reports whether the user is registered without loading history.
	Exists(ctx context.Context, userID string) (bool, error)
	// PrependHistory stores entry at the front of the user's history and
	// returns the full history, most recent first.
	PrependHistory(ctx context.Context, userID string, entry domain.QuizHistoryEntry) ([]domain.QuizHistoryEntry, error)
}

// TestCodeRegistry resolves shared test codes.
type TestCodeRegistry interface {
	FindByCode(ctx context.Context, code string) (domain.TestCode, error)
}

// ScoreRepository stores one best-attempt record per (testCode, user).
type ScoreRepository interface {
	// UpsertBest creates the record or replaces it when rec improves on it.
	// It must be atomic per (testCode, user) and returns the stored record.
	UpsertBest(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error)
	Get(ctx context.Context, testCode, userID string) (domain.ScoreRecord, error)
	ListByTestCode(ctx context.Context, testCode string) ([]domain.ScoreRecord, error)
	// SaveRanks writes rank values keyed by user ID.
	SaveRanks(ctx context.Context, testCode string, ranks map[string]int) error
	Count(ctx context.Context, testCode string) (int, error)
}

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	Entry   domain.QuizHistoryEntry
	History []domain.QuizHistoryEntry
}

// SubmissionService records quiz attempts and keeps test-code leaderboards ranked.
type SubmissionService struct {
	users     UserRepository
	testCodes TestCodeRegistry
	scores    ScoreRepository
	ranker    *Ranker

	ids              IDGenerator
	now              func() time.Time
	log              logrus.FieldLogger
	defaultTimeTaken int
	rankingTimeout   time.Duration
}

// Option customizes a SubmissionService.
type Option func(*SubmissionService)

// WithIDGenerator replaces the UUID generator used for history entry ids.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *SubmissionService) { s.ids = ids }
}

// WithClock is mostly useful for deterministic timestamps in tests.
func WithClock(now func() time.Time) Option {
	return func(s *SubmissionService) { s.now = now }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *SubmissionService) { s.log = log }
}

// WithDefaultTimeTaken sets the duration assumed for test-code attempts without one.
func WithDefaultTimeTaken(seconds int) Option {
	return func(s *SubmissionService) {
		if seconds > 0 {
			s.defaultTimeTaken = seconds
		}
	}
}

// WithRankingTimeout bounds the best-effort ranking phase. Zero disables the bound.
func WithRankingTimeout(d time.Duration) Option {
	return func(s *SubmissionService) { s.rankingTimeout = d }
}

func NewSubmissionService(users UserRepository, testCodes TestCodeRegistry, scores ScoreRepository, opts ...Option) *SubmissionService {
	s := &SubmissionService{
		users:            users,
		testCodes:        testCodes,
		scores:           scores,
		ranker:           NewRanker(scores),
		ids:              NewUUIDGenerator(),
		now:              time.Now,
		log:              logrus.StandardLogger(),
		defaultTimeTaken: domain.DefaultTimeTaken,
		rankingTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the attempt, updates the test-code leaderboard when a known
// test code is attached, and prepends exactly one entry to the user's history.
// Only validation, an unknown user or a failed history append are reported.
func (s *SubmissionService) Submit(ctx context.Context, userID string, attempt domain.Attempt) (SubmitResult, error) {
	attempt.Normalize()
	if err := ValidateAttempt(attempt); err != nil {
		return SubmitResult{}, err
	}

	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return SubmitResult{}, err
	}
	if !exists {
		return SubmitResult{}, domain.ErrUserNotFound
	}

	entry := domain.QuizHistoryEntry{
		ID:             s.ids.NewID(),
		Subject:        attempt.Subject,
		Topic:          attempt.Topic,
		Score:          *attempt.Score,
		TotalQuestions: attempt.TotalQuestions,
	}

	if attempt.TestCode != "" {
		logger := s.log.WithFields(logrus.Fields{"testCode": attempt.TestCode, "userId": userID})
		st, err := s.rankAttempt(ctx, userID, attempt)
		switch {
		case errors.Is(err, domain.ErrTestCodeNotFound):
			logger.Warn("test code not found, recording quiz history only")
		case err != nil:
			logger.WithError(err).Warn("leaderboard update failed, recording quiz history only")
		default:
			entry.TestCode = attempt.TestCode
			entry.TimeTaken = st.timeTaken
			entry.Rank = st.record.Rank
			entry.TotalParticipants = st.participants
		}
	}

	entry.Date = s.now()
	history, err := s.users.PrependHistory(ctx, userID, entry)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return SubmitResult{}, err
		}
		return SubmitResult{}, fmt.Errorf("append quiz history: %w: %w", domain.ErrPersistence, err)
	}
	return SubmitResult{Entry: entry, History: history}, nil
}

// History returns the user's quiz history, most recent first.
func (s *SubmissionService) History(ctx context.Context, userID string) ([]domain.QuizHistoryEntry, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.QuizHistory, nil
}

// Leaderboard returns the ranked records of a registered test code.
func (s *SubmissionService) Leaderboard(ctx context.Context, testCode string) (domain.Leaderboard, error) {
	if _, err := s.testCodes.FindByCode(ctx, testCode); err != nil {
		return domain.Leaderboard{}, err
	}
	return s.ranker.Standings(ctx, testCode)
}

// Rerank recomputes and persists the ranks of a test code.
func (s *SubmissionService) Rerank(ctx context.Context, testCode string) ([]domain.ScoreRecord, error) {
	if _, err := s.testCodes.FindByCode(ctx, testCode); err != nil {
		return nil, err
	}
	return s.ranker.Rerank(ctx, testCode)
}

type standing struct {
	record       domain.ScoreRecord
	timeTaken    int
	participants int
}

// rankAttempt is the best-effort phase of a submission. Errors and panics
// stay inside it; the caller degrades to a history-only entry.
func (s *SubmissionService) rankAttempt(ctx context.Context, userID string, attempt domain.Attempt) (st standing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("leaderboard update panicked: %v", r)
		}
	}()

	if s.rankingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.rankingTimeout)
		defer cancel()
	}

	if _, err := s.testCodes.FindByCode(ctx, attempt.TestCode); err != nil {
		return standing{}, err
	}

	timeTaken := s.defaultTimeTaken
	if attempt.TimeTaken != nil {
		timeTaken = *attempt.TimeTaken
	}

	if _, err := s.scores.UpsertBest(ctx, domain.ScoreRecord{
		TestCode:       attempt.TestCode,
		UserID:         userID,
		Score:          *attempt.Score,
		TotalQuestions: attempt.TotalQuestions,
		TimeTaken:      timeTaken,
	}); err != nil {
		return standing{}, fmt.Errorf("upsert best score: %w", err)
	}

	if _, err := s.ranker.Rerank(ctx, attempt.TestCode); err != nil {
		return standing{}, err
	}

	// Read our own rank only after the rerank has been persisted.
	own, err := s.scores.Get(ctx, attempt.TestCode, userID)
	if err != nil {
		return standing{}, fmt.Errorf("reload score: %w", err)
	}
	count, err := s.scores.Count(ctx, attempt.TestCode)
	if err != nil {
		return standing{}, fmt.Errorf("count participants: %w", err)
	}
	return standing{record: own, timeTaken: timeTaken, participants: count}, nil
}
