package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"quiz-result-service/internal/domain"
)

// upsertBestScript applies the retention policy atomically inside Redis.
// KEYS[1] record hash, KEYS[2] participant set.
// ARGV: score, totalQuestions, timeTaken, userID.
// Returns 1 when the record was written, 0 when the stored one was kept.
var upsertBestScript = redis.NewScript(`
local current = redis.call('HMGET', KEYS[1], 'score', 'time_taken')
if current[1] then
	local oldScore = tonumber(current[1])
	local oldTime = tonumber(current[2])
	local newScore = tonumber(ARGV[1])
	local newTime = tonumber(ARGV[3])
	if not (newScore > oldScore or (newScore == oldScore and newTime < oldTime)) then
		return 0
	end
end
redis.call('HSET', KEYS[1], 'score', ARGV[1], 'total_questions', ARGV[2], 'time_taken', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[4])
return 1
`)

// ScoreStore keeps one hash per (testCode, user) plus a participant set per test code.
//
//	HSET testcode:{code}:score:{userID} score .. total_questions .. time_taken .. rank ..
//	SADD testcode:{code}:participants {userID}
type ScoreStore struct {
	client *redis.Client
}

func NewScoreStore(client *redis.Client) *ScoreStore {
	return &ScoreStore{client: client}
}

func (s *ScoreStore) UpsertBest(ctx context.Context, rec domain.ScoreRecord) (domain.ScoreRecord, error) {
	keys := []string{s.recordKey(rec.TestCode, rec.UserID), s.participantsKey(rec.TestCode)}
	if err := upsertBestScript.Run(ctx, s.client, keys,
		rec.Score, rec.TotalQuestions, rec.TimeTaken, rec.UserID,
	).Err(); err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("upsert score: %w", err)
	}
	return s.Get(ctx, rec.TestCode, rec.UserID)
}

func (s *ScoreStore) Get(ctx context.Context, testCode, userID string) (domain.ScoreRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.recordKey(testCode, userID)).Result()
	if err != nil {
		return domain.ScoreRecord{}, fmt.Errorf("get score: %w", err)
	}
	if len(fields) == 0 {
		return domain.ScoreRecord{}, domain.ErrScoreNotFound
	}
	return recordFromHash(testCode, userID, fields)
}

func (s *ScoreStore) ListByTestCode(ctx context.Context, testCode string) ([]domain.ScoreRecord, error) {
	userIDs, err := s.client.SMembers(ctx, s.participantsKey(testCode)).Result()
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if len(userIDs) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(testCode, userID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}

	records := make([]domain.ScoreRecord, 0, len(userIDs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := recordFromHash(testCode, userIDs[i], fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *ScoreStore) SaveRanks(ctx context.Context, testCode string, ranks map[string]int) error {
	if len(ranks) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for userID, rank := range ranks {
		pipe.HSet(ctx, s.recordKey(testCode, userID), "rank", rank)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save ranks: %w", err)
	}
	return nil
}

func (s *ScoreStore) Count(ctx context.Context, testCode string) (int, error) {
	n, err := s.client.SCard(ctx, s.participantsKey(testCode)).Result()
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return int(n), nil
}

func (s *ScoreStore) recordKey(testCode, userID string) string {
	return "testcode:" + testCode + ":score:" + userID
}

func (s *ScoreStore) participantsKey(testCode string) string {
	return "testcode:" + testCode + ":participants"
}

func recordFromHash(testCode, userID string, fields map[string]string) (domain.ScoreRecord, error) {
	rec := domain.ScoreRecord{TestCode: testCode, UserID: userID}
	for name, dst := range map[string]*int{
		"score":           &rec.Score,
		"total_questions": &rec.TotalQuestions,
		"time_taken":      &rec.TimeTaken,
		"rank":            &rec.Rank,
	} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return domain.ScoreRecord{}, fmt.Errorf("parse %s for %s/%s: %w", name, testCode, userID, err)
		}
		*dst = v
	}
	return rec, nil
}
