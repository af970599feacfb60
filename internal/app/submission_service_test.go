package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"quiz-result-service/internal/app"
	"quiz-result-service/internal/domain"
	"quiz-result-service/internal/infra/memory"
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	service *app.SubmissionService
	users   *memory.UserStore
	scores  *memory.ScoreStore
	logs    *logtest.Hook
}

func newFixture(t *testing.T, scores app.ScoreRepository, opts ...app.Option) fixture {
	t.Helper()
	users := memory.NewUserStore(
		domain.User{ID: "u1", Username: "alice"},
		domain.User{ID: "u2", Username: "bob"},
		domain.User{ID: "u3", Username: "carol"},
	)
	registry := memory.NewTestCodeRegistry(memory.NewStaticTestCodeLoader(domain.TestCode{
		Code:    "MATH-101",
		Subject: "Mathematics",
	}), time.Minute)
	memScores := memory.NewScoreStore()
	if scores == nil {
		scores = memScores
	}
	logger, hook := logtest.NewNullLogger()

	var mu sync.Mutex
	seq := 0
	ids := app.IDGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("quiz-%d", seq)
	})

	base := []app.Option{
		app.WithLogger(logger),
		app.WithClock(func() time.Time { return fixedNow }),
		app.WithIDGenerator(ids),
	}
	service := app.NewSubmissionService(users, registry, scores, append(base, opts...)...)
	return fixture{service: service, users: users, scores: memScores, logs: hook}
}

func intPtr(v int) *int { return &v }

func TestSubmitWithoutTestCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.service.Submit(ctx, "u1", domain.Attempt{
		Subject:        " Physics ",
		Topic:          "Optics",
		Score:          intPtr(7),
		TotalQuestions: 10,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	entry := res.Entry
	if entry.ID != "quiz-1" || entry.Subject != "Physics" || entry.Score != 7 || entry.TotalQuestions != 10 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !entry.Date.Equal(fixedNow) {
		t.Fatalf("expected timestamp from clock, got %s", entry.Date)
	}
	if entry.Ranked() || entry.TestCode != "" || entry.TotalParticipants != 0 {
		t.Fatalf("expected no rank fields, got %+v", entry)
	}
	if len(res.History) != 1 || res.History[0].ID != "quiz-1" {
		t.Fatalf("expected history with new entry, got %+v", res.History)
	}
}

func TestSubmitRanksParticipants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	submit := func(userID string, score, taken int) domain.QuizHistoryEntry {
		t.Helper()
		res, err := f.service.Submit(ctx, userID, domain.Attempt{
			Subject:        "Mathematics",
			Score:          intPtr(score),
			TotalQuestions: 10,
			TestCode:       "MATH-101",
			TimeTaken:      intPtr(taken),
		})
		if err != nil {
			t.Fatalf("submit %s: %v", userID, err)
		}
		return res.Entry
	}

	first := submit("u1", 8, 90)
	if first.Rank != 1 || first.TotalParticipants != 1 || first.TestCode != "MATH-101" || first.TimeTaken != 90 {
		t.Fatalf("unexpected first entry %+v", first)
	}

	second := submit("u2", 9, 200)
	if second.Rank != 1 || second.TotalParticipants != 2 {
		t.Fatalf("expected u2 to lead, got %+v", second)
	}

	third := submit("u3", 8, 90)
	if third.Rank != 2 || third.TotalParticipants != 3 {
		t.Fatalf("expected u3 tied at 2 of 3, got %+v", third)
	}

	// Earlier participants must not keep a stale rank.
	rec, err := f.scores.Get(ctx, "MATH-101", "u1")
	if err != nil {
		t.Fatalf("get u1: %v", err)
	}
	if rec.Rank != 2 {
		t.Fatalf("expected u1 re-ranked to 2, got %d", rec.Rank)
	}

	lb, err := f.service.Leaderboard(ctx, "MATH-101")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.TotalParticipants != 3 || lb.Entries[0].UserID != "u2" {
		t.Fatalf("unexpected leaderboard %+v", lb)
	}
}

func TestSubmitKeepsBestAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, a := range []struct{ score, taken int }{{8, 120}, {7, 50}, {8, 150}} {
		if _, err := f.service.Submit(ctx, "u1", domain.Attempt{
			Subject: "Mathematics", Score: intPtr(a.score), TotalQuestions: 10,
			TestCode: "MATH-101", TimeTaken: intPtr(a.taken),
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	rec, err := f.scores.Get(ctx, "MATH-101", "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Score != 8 || rec.TimeTaken != 120 {
		t.Fatalf("expected best 8 in 120s, got %+v", rec)
	}
	if n, _ := f.scores.Count(ctx, "MATH-101"); n != 1 {
		t.Fatalf("expected a single record, got %d", n)
	}
	user, _ := f.users.FindByID(ctx, "u1")
	if len(user.QuizHistory) != 3 {
		t.Fatalf("every attempt must be in history, got %d", len(user.QuizHistory))
	}
	if user.QuizHistory[0].Score != 8 || user.QuizHistory[0].TimeTaken != 150 {
		t.Fatalf("expected latest attempt first, got %+v", user.QuizHistory[0])
	}
}

func TestSubmitDefaultsTimeTaken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.service.Submit(ctx, "u1", domain.Attempt{
		Subject: "Mathematics", Score: intPtr(5), TotalQuestions: 10, TestCode: "MATH-101",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Entry.TimeTaken != domain.DefaultTimeTaken {
		t.Fatalf("expected default time on entry, got %d", res.Entry.TimeTaken)
	}
	rec, _ := f.scores.Get(ctx, "MATH-101", "u1")
	if rec.TimeTaken != domain.DefaultTimeTaken {
		t.Fatalf("expected default time on record, got %d", rec.TimeTaken)
	}

	f = newFixture(t, nil, app.WithDefaultTimeTaken(600))
	res, _ = f.service.Submit(ctx, "u1", domain.Attempt{
		Subject: "Mathematics", Score: intPtr(5), TotalQuestions: 10, TestCode: "MATH-101",
	})
	if res.Entry.TimeTaken != 600 {
		t.Fatalf("expected configured default, got %d", res.Entry.TimeTaken)
	}
}

func TestSubmitUnknownTestCodeRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	res, err := f.service.Submit(ctx, "u1", domain.Attempt{
		Subject: "Mathematics", Score: intPtr(5), TotalQuestions: 10, TestCode: "NOPE", TimeTaken: intPtr(40),
	})
	if err != nil {
		t.Fatalf("unknown test code must not fail: %v", err)
	}
	if res.Entry.TestCode != "" || res.Entry.Ranked() || res.Entry.TimeTaken != 0 {
		t.Fatalf("expected history-only entry, got %+v", res.Entry)
	}
	if len(res.History) != 1 {
		t.Fatalf("expected entry appended, got %d", len(res.History))
	}
	if n, _ := f.scores.Count(ctx, "NOPE"); n != 0 {
		t.Fatalf("expected no score records, got %d", n)
	}
	if f.logs.LastEntry() == nil || f.logs.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("expected a warning to be logged")
	}
}

func TestSubmitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	cases := []struct {
		name    string
		attempt domain.Attempt
		field   string
	}{
		{"missing score", domain.Attempt{Subject: "Math", TotalQuestions: 10, TestCode: "MATH-101"}, "score"},
		{"negative score", domain.Attempt{Subject: "Math", Score: intPtr(-1), TotalQuestions: 10}, "score"},
		{"missing subject", domain.Attempt{Score: intPtr(1), TotalQuestions: 10}, "subject"},
		{"blank subject", domain.Attempt{Subject: "   ", Score: intPtr(1), TotalQuestions: 10}, "subject"},
		{"missing total", domain.Attempt{Subject: "Math", Score: intPtr(1)}, "totalQuestions"},
		{"zero time taken", domain.Attempt{Subject: "Math", Score: intPtr(1), TotalQuestions: 10, TimeTaken: intPtr(0)}, "timeTaken"},
	}
	for _, tc := range cases {
		_, err := f.service.Submit(ctx, "u1", tc.attempt)
		if !errors.Is(err, domain.ErrInvalidAttempt) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || len(verr.Fields) != 1 || verr.Fields[0] != tc.field {
			t.Fatalf("%s: expected field %s, got %v", tc.name, tc.field, err)
		}
	}

	user, _ := f.users.FindByID(ctx, "u1")
	if len(user.QuizHistory) != 0 {
		t.Fatalf("validation failures must not touch history, got %d entries", len(user.QuizHistory))
	}
	if n, _ := f.scores.Count(ctx, "MATH-101"); n != 0 {
		t.Fatalf("validation failures must not touch scores, got %d", n)
	}
}

func TestSubmitUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.Submit(context.Background(), "ghost", domain.Attempt{
		Subject: "Math", Score: intPtr(1), TotalQuestions: 10, TestCode: "MATH-101",
	})
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if n, _ := f.scores.Count(context.Background(), "MATH-101"); n != 0 {
		t.Fatalf("unknown user must not create scores, got %d", n)
	}
}

func TestSubmitSwallowsLeaderboardFailures(t *testing.T) {
	cases := []struct {
		name   string
		scores app.ScoreRepository
		opts   []app.Option
	}{
		{name: "upsert error", scores: &failingScores{ScoreStore: memory.NewScoreStore(), upsertErr: errors.New("redis down")}},
		{name: "save ranks error", scores: &failingScores{ScoreStore: memory.NewScoreStore(), saveErr: errors.New("write timeout")}},
		{name: "panic", scores: &failingScores{ScoreStore: memory.NewScoreStore(), panicOnList: true}},
		{name: "deadline", scores: &failingScores{ScoreStore: memory.NewScoreStore(), block: true}, opts: []app.Option{app.WithRankingTimeout(20 * time.Millisecond)}},
	}
	for _, tc := range cases {
		f := newFixture(t, tc.scores, tc.opts...)
		res, err := f.service.Submit(context.Background(), "u1", domain.Attempt{
			Subject: "Math", Score: intPtr(5), TotalQuestions: 10, TestCode: "MATH-101", TimeTaken: intPtr(30),
		})
		if err != nil {
			t.Fatalf("%s: leaderboard failure must not fail submit: %v", tc.name, err)
		}
		if res.Entry.Ranked() || res.Entry.TestCode != "" {
			t.Fatalf("%s: expected entry without rank, got %+v", tc.name, res.Entry)
		}
		if len(res.History) != 1 {
			t.Fatalf("%s: expected entry appended, got %d", tc.name, len(res.History))
		}
		last := f.logs.LastEntry()
		if last == nil || last.Level != logrus.WarnLevel || last.Data[logrus.ErrorKey] == nil {
			t.Fatalf("%s: expected warning with error", tc.name)
		}
	}
}

func TestSubmitChecksUserWithoutLoadingHistory(t *testing.T) {
	users := &lookupCounter{UserStore: memory.NewUserStore(domain.User{ID: "u1"})}
	registry := memory.NewTestCodeRegistry(memory.NewStaticTestCodeLoader(), time.Minute)
	logger, _ := logtest.NewNullLogger()
	service := app.NewSubmissionService(users, registry, memory.NewScoreStore(), app.WithLogger(logger))

	for i := 0; i < 3; i++ {
		if _, err := service.Submit(context.Background(), "u1", domain.Attempt{
			Subject: "Math", Score: intPtr(i), TotalQuestions: 10,
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if users.finds != 0 {
		t.Fatalf("submit must not load the full user, FindByID called %d times", users.finds)
	}
	if users.exists != 3 {
		t.Fatalf("expected one existence check per submit, got %d", users.exists)
	}
}

func TestSubmitAppendFailureIsFatal(t *testing.T) {
	users := &brokenHistory{UserStore: memory.NewUserStore(domain.User{ID: "u1"})}
	registry := memory.NewTestCodeRegistry(memory.NewStaticTestCodeLoader(), time.Minute)
	logger, _ := logtest.NewNullLogger()
	service := app.NewSubmissionService(users, registry, memory.NewScoreStore(), app.WithLogger(logger))

	_, err := service.Submit(context.Background(), "u1", domain.Attempt{Subject: "Math", Score: intPtr(1), TotalQuestions: 10})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("expected cause to be preserved, got %v", err)
	}
}

func TestConcurrentSubmissionsKeepFastestAttempt(t *testing.T) {
	for round := 0; round < 20; round++ {
		f := newFixture(t, nil)
		var wg sync.WaitGroup
		for _, taken := range []int{120, 90} {
			wg.Add(1)
			go func(taken int) {
				defer wg.Done()
				if _, err := f.service.Submit(context.Background(), "u1", domain.Attempt{
					Subject: "Math", Score: intPtr(8), TotalQuestions: 10, TestCode: "MATH-101", TimeTaken: intPtr(taken),
				}); err != nil {
					t.Errorf("submit: %v", err)
				}
			}(taken)
		}
		wg.Wait()

		rec, err := f.scores.Get(context.Background(), "MATH-101", "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if rec.Score != 8 || rec.TotalQuestions != 10 || rec.TimeTaken != 90 || rec.Rank != 1 {
			t.Fatalf("round %d: expected 8/10 in 90s ranked 1, got %+v", round, rec)
		}
		user, _ := f.users.FindByID(context.Background(), "u1")
		if len(user.QuizHistory) != 2 {
			t.Fatalf("round %d: expected two history entries, got %d", round, len(user.QuizHistory))
		}
	}
}

type failingScores struct {
	*memory.ScoreStore
	upsertErr   error
	saveErr     error
	panicOnList bool
	block       bool
}

func (s *failingScores) UpsertBest(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	if s.block {
		<-ctx.Done()
		return domain.ScoreRecord{}, ctx.Err()
	}
	if s.upsertErr != nil {
		return domain.ScoreRecord{}, s.upsertErr
	}
	return rec, nil
}

func (s *failingScores) ListByTestCode(context.Context, string) ([]domain.ScoreRecord, error) {
	if s.panicOnList {
		panic("corrupt leaderboard")
	}
	return []domain.ScoreRecord{{TestCode: "MATH-101", UserID: "u1", Score: 5, TimeTaken: 30}}, nil
}

func (s *failingScores) SaveRanks(context.Context, string, map[string]int) error {
	return s.saveErr
}

var errDiskFull = errors.New("disk full")

type lookupCounter struct {
	*memory.UserStore
	finds  int
	exists int
}

func (c *lookupCounter) FindByID(ctx context.Context, userID string) (domain.User, error) {
	c.finds++
	return c.UserStore.FindByID(ctx, userID)
}

func (c *lookupCounter) Exists(ctx context.Context, userID string) (bool, error) {
	c.exists++
	return c.UserStore.Exists(ctx, userID)
}

type brokenHistory struct {
	*memory.UserStore
}

func (b *brokenHistory) PrependHistory(context.Context, string, domain.QuizHistoryEntry) ([]domain.QuizHistoryEntry, error) {
	return nil, errDiskFull
}
