package app

import (
	"context"
	"fmt"
	"sort"

	"quiz-result-service/internal/domain"
)

// Ranker recomputes leaderboard ranks for a test code.
type Ranker struct {
	scores ScoreRepository
}

func NewRanker(scores ScoreRepository) *Ranker {
	return &Ranker{scores: scores}
}

// Rerank ranks every record of testCode and persists all ranks, changed or not.
func (r *Ranker) Rerank(ctx context.Context, testCode string) ([]domain.ScoreRecord, error) {
	records, err := r.scores.ListByTestCode(ctx, testCode)
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	ranked := RankRecords(records)
	if len(ranked) == 0 {
		return ranked, nil
	}

	ranks := make(map[string]int, len(ranked))
	for _, rec := range ranked {
		ranks[rec.UserID] = rec.Rank
	}
	if err := r.scores.SaveRanks(ctx, testCode, ranks); err != nil {
		return nil, fmt.Errorf("save ranks: %w", err)
	}
	return ranked, nil
}

// Standings computes the leaderboard without writing anything.
func (r *Ranker) Standings(ctx context.Context, testCode string) (domain.Leaderboard, error) {
	records, err := r.scores.ListByTestCode(ctx, testCode)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list scores: %w", err)
	}
	ranked := RankRecords(records)
	return domain.Leaderboard{
		TestCode:          testCode,
		TotalParticipants: len(ranked),
		Entries:           ranked,
	}, nil
}

// RankRecords returns a sorted copy of records with ranks assigned.
// Order is score desc, then time taken asc. Records tied on both share the
// previous rank; any other record is ranked by its 1-based position, so
// scores 90/5, 90/5, 80/1 rank as 1, 1, 3.
func RankRecords(records []domain.ScoreRecord) []domain.ScoreRecord {
	ranked := make([]domain.ScoreRecord, len(records))
	copy(ranked, records)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.TimeTaken != b.TimeTaken {
			return a.TimeTaken < b.TimeTaken
		}
		// Ties share a rank; user ID only fixes display order.
		return a.UserID < b.UserID
	})

	for i := range ranked {
		if i > 0 && ranked[i].SameStanding(ranked[i-1]) {
			ranked[i].Rank = ranked[i-1].Rank
			continue
		}
		ranked[i].Rank = i + 1
	}
	return ranked
}
