package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-result-service/internal/domain"
)

// ScoreStore keeps best-attempt records in the test_scores table.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

// UpsertBest relies on the row lock taken by ON CONFLICT, so concurrent
// submissions for the same (test_code, user_id) cannot lose an update.
func (s *ScoreStore) UpsertBest(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO test_scores (test_code, user_id, score, total_questions, time_taken, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (test_code, user_id) DO UPDATE
		SET score = EXCLUDED.score,
		    total_questions = EXCLUDED.total_questions,
		    time_taken = EXCLUDED.time_taken,
		    updated_at = EXCLUDED.updated_at
		WHERE EXCLUDED.score > test_scores.score
		   OR (EXCLUDED.score = test_scores.score AND EXCLUDED.time_taken < test_scores.time_taken)`,
		rec.TestCode, rec.UserID, rec.Score, rec.TotalQuestions, rec.TimeTaken,
	)
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("upsert score: %w", err)
	}
	return s.Get(ctx, rec.TestCode, rec.UserID)
}

func (s *ScoreStore) Get(ctx context.Context, testCode, userID string) (domain.ScoreRecord, error) {
	rec := domain.ScoreRecord{TestCode: testCode, UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT score, total_questions, time_taken, rank FROM test_scores WHERE test_code=$1 AND user_id=$2`,
		testCode, userID,
	).Scan(&rec.Score, &rec.TotalQuestions, &rec.TimeTaken, &rec.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ScoreRecord{}, domain.ErrScoreNotFound
	}
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("get score: %w", err)
	}
	return rec, nil
}

func (s *ScoreStore) ListByTestCode(ctx context.Context, testCode string) ([]domain.ScoreRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, score, total_questions, time_taken, rank
		FROM test_scores
		WHERE test_code=$1
		ORDER BY score DESC, time_taken ASC, user_id ASC`,
		testCode,
	)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var records []domain.ScoreRecord
	for rows.Next() {
		rec := domain.ScoreRecord{TestCode: testCode}
		if err := rows.Scan(&rec.UserID, &rec.Score, &rec.TotalQuestions, &rec.TimeTaken, &rec.Rank); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scores: %w", err)
	}
	return records, nil
}

// SaveRanks writes every rank in one batch round trip.
func (s *ScoreStore) SaveRanks(ctx context.Context, testCode string, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for userID, rank := range ranks {
		batch.Queue(`UPDATE test_scores SET rank=$3 WHERE test_code=$1 AND user_id=$2`, testCode, userID, rank)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range ranks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save rank: %w", err)
		}
	}
	return nil
}

func (s *ScoreStore) Count(ctx context.Context, testCode string) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM test_scores WHERE test_code=$1`, testCode).Scan(&n); err != nil {
		return 0, fmt.Errorf("count scores: %w", err)
	}
	return n, nil
}
