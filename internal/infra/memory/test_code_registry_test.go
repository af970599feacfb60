package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-result-service/internal/domain"
)

func TestTestCodeRegistryCaches(t *testing.T) {
	loader := &countingLoader{
		TestCodeLoader: NewStaticTestCodeLoader(sampleTestCode()),
	}
	registry := NewTestCodeRegistry(loader, time.Minute)

	if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != nil {
		t.Fatalf("find test code: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != nil {
		t.Fatalf("find test code 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestTestCodeRegistryDoesNotCacheMisses(t *testing.T) {
	static := NewStaticTestCodeLoader()
	registry := NewTestCodeRegistry(static, time.Minute)

	if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != domain.ErrTestCodeNotFound {
		t.Fatalf("expected ErrTestCodeNotFound, got %v", err)
	}
	static.Add(sampleTestCode())
	if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != nil {
		t.Fatalf("expected newly issued code to resolve, got %v", err)
	}
}

func TestTestCodeRegistryExpires(t *testing.T) {
	loader := &countingLoader{
		TestCodeLoader: NewStaticTestCodeLoader(sampleTestCode()),
	}
	registry := NewTestCodeRegistry(loader, time.Minute)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	registry.clock = func() time.Time { return now }

	_, _ = registry.FindByCode(context.Background(), "MATH-101")
	now = now.Add(2 * time.Minute)
	_, _ = registry.FindByCode(context.Background(), "MATH-101")
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestTestCodeRegistryCachesMissesForMissTTL(t *testing.T) {
	static := NewStaticTestCodeLoader()
	loader := &countingLoader{TestCodeLoader: static}
	registry := NewTestCodeRegistry(loader, time.Minute, WithMissTTL(5*time.Second))
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	registry.clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != domain.ErrTestCodeNotFound {
			t.Fatalf("expected ErrTestCodeNotFound, got %v", err)
		}
	}
	if loader.calls != 1 {
		t.Fatalf("expected miss to be cached, loader calls %d", loader.calls)
	}

	// The code is issued behind the cache's back: still unknown until the miss expires.
	static.Add(sampleTestCode())
	if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != domain.ErrTestCodeNotFound {
		t.Fatalf("expected cached miss, got %v", err)
	}
	now = now.Add(6 * time.Second)
	if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != nil {
		t.Fatalf("expected code after miss expired, got %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected one reload, loader calls %d", loader.calls)
	}
}

func TestTestCodeRegistryInvalidate(t *testing.T) {
	static := NewStaticTestCodeLoader()
	registry := NewTestCodeRegistry(static, time.Minute, WithMissTTL(time.Minute))
	ctx := context.Background()

	if _, err := registry.FindByCode(ctx, "MATH-101"); err != domain.ErrTestCodeNotFound {
		t.Fatalf("expected ErrTestCodeNotFound, got %v", err)
	}
	if err := static.Create(ctx, sampleTestCode()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := registry.Invalidate(ctx, "MATH-101"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	tc, err := registry.FindByCode(ctx, "MATH-101")
	if err != nil {
		t.Fatalf("expected issued code after invalidate, got %v", err)
	}

	// Invalidating a known code picks up changed metadata.
	tc.Topic = "Geometry"
	static.Add(tc)
	_ = registry.Invalidate(ctx, "MATH-101")
	if got, _ := registry.FindByCode(ctx, "MATH-101"); got.Topic != "Geometry" {
		t.Fatalf("expected refreshed topic, got %+v", got)
	}
}

func TestTestCodeRegistryDoesNotCacheLoaderErrors(t *testing.T) {
	loader := &failingLoader{err: errors.New("connection refused")}
	registry := NewTestCodeRegistry(loader, time.Minute, WithMissTTL(time.Minute))

	for i := 0; i < 2; i++ {
		if _, err := registry.FindByCode(context.Background(), "MATH-101"); err != loader.err {
			t.Fatalf("expected loader error, got %v", err)
		}
	}
	if loader.calls != 2 {
		t.Fatalf("expected every lookup to reach the loader, got %d", loader.calls)
	}
}

type failingLoader struct {
	err   error
	calls int
}

func (l *failingLoader) LoadTestCode(context.Context, string) (domain.TestCode, error) {
	l.calls++
	return domain.TestCode{}, l.err
}

type countingLoader struct {
	TestCodeLoader
	calls int
}

func (l *countingLoader) LoadTestCode(ctx context.Context, code string) (domain.TestCode, error) {
	l.calls++
	return l.TestCodeLoader.LoadTestCode(ctx, code)
}

func sampleTestCode() domain.TestCode {
	return domain.TestCode{
		Code:       "MATH-101",
		Subject:    "Mathematics",
		Topic:      "Algebra",
		Difficulty: "medium",
	}
}
