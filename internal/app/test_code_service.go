package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quiz-result-service/internal/domain"
)

// TestCodeStore persists issued test codes.
type TestCodeStore interface {
	Create(ctx context.Context, tc domain.TestCode) error
}

// TestCodeCache is implemented by registries that cache lookups.
type TestCodeCache interface {
	Invalidate(ctx context.Context, code string) error
}

// TestCodeService issues shared test codes.
type TestCodeService struct {
	store TestCodeStore
	cache TestCodeCache
	now   func() time.Time
}

// NewTestCodeService wires an issuer; cache may be nil.
func NewTestCodeService(store TestCodeStore, cache TestCodeCache) *TestCodeService {
	return &TestCodeService{store: store, cache: cache, now: time.Now}
}

// Issue stores tc and drops any cached lookup of its code, including a
// cached miss, so submissions can use it right away.
func (s *TestCodeService) Issue(ctx context.Context, tc domain.TestCode) (domain.TestCode, error) {
	tc.Code = strings.TrimSpace(tc.Code)
	tc.Subject = strings.TrimSpace(tc.Subject)
	tc.Topic = strings.TrimSpace(tc.Topic)
	if err := ValidateTestCode(tc); err != nil {
		return domain.TestCode{}, err
	}
	if tc.CreatedAt.IsZero() {
		tc.CreatedAt = s.now().UTC()
	}
	if err := s.store.Create(ctx, tc); err != nil {
		return domain.TestCode{}, fmt.Errorf("issue test code %s: %w", tc.Code, err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, tc.Code); err != nil {
			return domain.TestCode{}, err
		}
	}
	return tc, nil
}
