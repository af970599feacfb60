package redis

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-result-service/internal/domain"
)

// TestCodeLoader fetches test codes from a backing store (e.g., Postgres).
type TestCodeLoader interface {
	LoadTestCode(ctx context.Context, code string) (domain.TestCode, error)
}

// TestCodeRegistry caches test codes in Redis (hash per code) and falls back to a loader on cache miss.
// Test codes are stored as: HSET testcodecache:{code} subject {..} topic {..} difficulty {..} createdBy {..}
// The prefix is distinct from every ScoreStore key, so a crafted code can never read a score hash.
type TestCodeRegistry struct {
	client *redis.Client
	loader TestCodeLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewTestCodeRegistry(client *redis.Client, loader TestCodeLoader, ttl time.Duration) *TestCodeRegistry {
	return &TestCodeRegistry{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *TestCodeRegistry) FindByCode(ctx context.Context, code string) (domain.TestCode, error) {
	key := r.key(code)

	fields, err := r.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		return testCodeFromCache(code, fields), nil
	}

	result, err, _ := r.sf.Do(code, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		fields, err := r.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			return testCodeFromCache(code, fields), nil
		}

		tc, err := r.loader.LoadTestCode(ctx, code)
		if err != nil {
			return domain.TestCode{}, err
		}

		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		pipe.HSet(ctx, key,
			"subject", tc.Subject,
			"topic", tc.Topic,
			"difficulty", tc.Difficulty,
			"createdBy", tc.CreatedBy,
		)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		// A failed cache fill only costs another load.
		_, _ = pipe.Exec(ctx)

		return tc, nil
	})
	if err != nil {
		return domain.TestCode{}, err
	}
	return result.(domain.TestCode), nil
}

// Invalidate drops the cached hash so the next lookup reloads code.
// Every process sharing the Redis instance sees the change.
func (r *TestCodeRegistry) Invalidate(ctx context.Context, code string) error {
	if err := r.client.Del(ctx, r.key(code)).Err(); err != nil {
		return fmt.Errorf("invalidate test code %s: %w", code, err)
	}
	r.sf.Forget(code)
	return nil
}

func (r *TestCodeRegistry) key(code string) string {
	return "testcodecache:" + code
}

func testCodeFromCache(code string, fields map[string]string) domain.TestCode {
	return domain.TestCode{
		Code:       code,
		Subject:    fields["subject"],
		Topic:      fields["topic"],
		Difficulty: fields["difficulty"],
		CreatedBy:  fields["createdBy"],
	}
}

func (r *TestCodeRegistry) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
