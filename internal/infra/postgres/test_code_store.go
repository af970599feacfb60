package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-result-service/internal/domain"
)

// TestCodeStore loads and issues test codes in Postgres.
type TestCodeStore struct {
	pool *pgxpool.Pool
}

func NewTestCodeStore(pool *pgxpool.Pool) *TestCodeStore {
	return &TestCodeStore{pool: pool}
}

func (s *TestCodeStore) LoadTestCode(ctx context.Context, code string) (domain.TestCode, error) {
	var tc domain.TestCode
	err := s.pool.QueryRow(ctx,
		`SELECT code, subject, topic, difficulty, created_by, created_at FROM test_codes WHERE code=$1`,
		code,
	).Scan(&tc.Code, &tc.Subject, &tc.Topic, &tc.Difficulty, &tc.CreatedBy, &tc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TestCode{}, domain.ErrTestCodeNotFound
	}
	if err != nil {
		return domain.TestCode{}, fmt.Errorf("load test code: %w", err)
	}
	return tc, nil
}

// Create issues a new test code. Re-issuing an existing code updates its metadata.
func (s *TestCodeStore) Create(ctx context.Context, tc domain.TestCode) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO test_codes (code, subject, topic, difficulty, created_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE
		SET subject = EXCLUDED.subject, topic = EXCLUDED.topic,
		    difficulty = EXCLUDED.difficulty, created_by = EXCLUDED.created_by`,
		tc.Code, tc.Subject, tc.Topic, tc.Difficulty, tc.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create test code: %w", err)
	}
	return nil
}
