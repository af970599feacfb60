package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-result-service/internal/domain"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        string    `bun:"id,pk"`
	Username  string    `bun:"username,notnull"`
	Email     string    `bun:"email,notnull"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type historyRow struct {
	bun.BaseModel `bun:"table:quiz_history,alias:h"`

	Seq               int64     `bun:"seq,pk,autoincrement"`
	ID                string    `bun:"id,notnull"`
	UserID            string    `bun:"user_id,notnull"`
	Subject           string    `bun:"subject,notnull"`
	Topic             string    `bun:"topic,notnull"`
	Score             int       `bun:"score,notnull"`
	TotalQuestions    int       `bun:"total_questions,notnull"`
	TestCode          string    `bun:"test_code,nullzero"`
	TimeTaken         int       `bun:"time_taken,nullzero"`
	Rank              int       `bun:"rank,nullzero"`
	TotalParticipants int       `bun:"total_participants,nullzero"`
	TakenAt           time.Time `bun:"taken_at,notnull"`
}

// UserStore persists users and their quiz history with bun.
type UserStore struct {
	db *bun.DB
}

func NewUserStore(db *bun.DB) *UserStore {
	return &UserStore{db: db}
}

// Create inserts a user; history entries on the value are ignored.
func (s *UserStore) Create(ctx context.Context, user domain.User) error {
	row := &userRow{ID: user.ID, Username: user.Username, Email: user.Email, Name: user.Name}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *UserStore) FindByID(ctx context.Context, userID string) (domain.User, error) {
	var row userRow
	err := s.db.NewSelect().Model(&row).Where("u.id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}

	history, err := loadHistory(ctx, s.db, userID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:          row.ID,
		Username:    row.Username,
		Email:       row.Email,
		Name:        row.Name,
		QuizHistory: history,
	}, nil
}

// Exists checks the users table only; history stays unread.
func (s *UserStore) Exists(ctx context.Context, userID string) (bool, error) {
	ok, err := s.db.NewSelect().Model((*userRow)(nil)).Where("u.id = ?", userID).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return ok, nil
}

// PrependHistory locks the user row so concurrent appends for one user are
// serialized and the returned history includes the new entry first.
func (s *UserStore) PrependHistory(ctx context.Context, userID string, entry domain.QuizHistoryEntry) ([]domain.QuizHistoryEntry, error) {
	var history []domain.QuizHistoryEntry
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var row userRow
		err := tx.NewSelect().Model(&row).Where("u.id = ?", userID).For("UPDATE").Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		if _, err := tx.NewInsert().Model(historyRowFromEntry(userID, entry)).Exec(ctx); err != nil {
			return fmt.Errorf("insert history: %w", err)
		}

		history, err = loadHistory(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func loadHistory(ctx context.Context, db bun.IDB, userID string) ([]domain.QuizHistoryEntry, error) {
	var rows []historyRow
	if err := db.NewSelect().Model(&rows).Where("h.user_id = ?", userID).Order("h.seq DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := make([]domain.QuizHistoryEntry, 0, len(rows))
	for _, r := range rows {
		history = append(history, domain.QuizHistoryEntry{
			ID:                r.ID,
			Subject:           r.Subject,
			Topic:             r.Topic,
			Score:             r.Score,
			TotalQuestions:    r.TotalQuestions,
			Date:              r.TakenAt,
			TestCode:          r.TestCode,
			TimeTaken:         r.TimeTaken,
			Rank:              r.Rank,
			TotalParticipants: r.TotalParticipants,
		})
	}
	return history, nil
}

func historyRowFromEntry(userID string, e domain.QuizHistoryEntry) *historyRow {
	return &historyRow{
		ID:                e.ID,
		UserID:            userID,
		Subject:           e.Subject,
		Topic:             e.Topic,
		Score:             e.Score,
		TotalQuestions:    e.TotalQuestions,
		TestCode:          e.TestCode,
		TimeTaken:         e.TimeTaken,
		Rank:              e.Rank,
		TotalParticipants: e.TotalParticipants,
		TakenAt:           e.Date,
	}
}
