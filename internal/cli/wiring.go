package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/uptrace/bun"

	"quiz-result-service/internal/app"
	"quiz-result-service/internal/config"
	"quiz-result-service/internal/domain"
	"quiz-result-service/internal/infra/memory"
	pgstore "quiz-result-service/internal/infra/postgres"
	redisstore "quiz-result-service/internal/infra/redis"
)

// userStore is what the CLI needs from a user backend beyond app.UserRepository.
type userStore interface {
	app.UserRepository
	Create(ctx context.Context, user domain.User) error
}

type testCodeRegistry interface {
	app.TestCodeRegistry
	app.TestCodeCache
}

// backends holds the open connections selected by config.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	db    *bun.DB

	users     userStore
	testCodes testCodeRegistry
	issuer    app.TestCodeStore
	scores    app.ScoreRepository
}

func newLogger(cfg config.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Log.Level != "" {
		level, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	return logger, nil
}

// openBackends connects to whatever is configured. Scores prefer Redis, then
// Postgres, then memory; users and the test-code source prefer Postgres.
func openBackends(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backends, error) {
	b := &backends{}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
		b.db = pgstore.OpenBun(cfg.Postgres.URL)
	}

	var loader memory.TestCodeLoader
	if b.pool != nil {
		store := pgstore.NewTestCodeStore(b.pool)
		loader, b.issuer = store, store
		b.users = pgstore.NewUserStore(b.db)
	} else {
		static := memory.NewStaticTestCodeLoader(cfg.TestCodes.Codes...)
		loader, b.issuer = static, static
		b.users = memory.NewUserStore()
	}

	ttl := config.TTLDuration(cfg.TestCodes.TTL, 10*time.Minute)
	if b.redis != nil {
		b.testCodes = redisstore.NewTestCodeRegistry(b.redis, loader, ttl)
	} else {
		missTTL := config.TTLDuration(cfg.TestCodes.MissTTL, 5*time.Second)
		b.testCodes = memory.NewTestCodeRegistry(loader, ttl, memory.WithMissTTL(missTTL))
	}

	switch {
	case b.redis != nil:
		b.scores = redisstore.NewScoreStore(b.redis)
		log.Info("score store: redis")
	case b.pool != nil:
		b.scores = pgstore.NewScoreStore(b.pool)
		log.Info("score store: postgres")
	default:
		b.scores = memory.NewScoreStore()
		log.Warn("score store: memory, leaderboards are lost on restart")
	}

	for _, u := range cfg.Seed.Users {
		if err := b.users.Create(ctx, u.User()); err != nil {
			b.Close()
			return nil, fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}
	return b, nil
}

func (b *backends) service(cfg config.Config, log logrus.FieldLogger) *app.SubmissionService {
	return app.NewSubmissionService(b.users, b.testCodes, b.scores,
		app.WithLogger(log),
		app.WithDefaultTimeTaken(cfg.Submission.DefaultTimeTaken),
		app.WithRankingTimeout(config.TTLDuration(cfg.Submission.RankingTimeout, 5*time.Second)),
	)
}

func (b *backends) testCodeService() *app.TestCodeService {
	return app.NewTestCodeService(b.issuer, b.testCodes)
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}
