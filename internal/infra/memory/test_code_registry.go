package memory

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-result-service/internal/domain"
)

// TestCodeLoader fetches test codes from a backing store.
type TestCodeLoader interface {
	LoadTestCode(ctx context.Context, code string) (domain.TestCode, error)
}

// TestCodeRegistry is a read-through cache of issued test codes.
//
// Known codes live for ttl plus up to 10% jitter. Unknown codes are
// remembered for missTTL (zero disables negative caching) so a client
// retrying a mistyped code does not reach the loader every time.
// Invalidate drops either kind of entry; issuing a code calls it so the
// code resolves on the next lookup.
type TestCodeRegistry struct {
	loader  TestCodeLoader
	ttl     time.Duration
	missTTL time.Duration
	clock   func() time.Time
	sf      singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	testCode  domain.TestCode
	missing   bool
	expiresAt time.Time
}

func (e registryEntry) result() (domain.TestCode, error) {
	if e.missing {
		return domain.TestCode{}, domain.ErrTestCodeNotFound
	}
	return e.testCode, nil
}

// RegistryOption tunes a TestCodeRegistry.
type RegistryOption func(*TestCodeRegistry)

// WithMissTTL caches unknown codes for d.
func WithMissTTL(d time.Duration) RegistryOption {
	return func(r *TestCodeRegistry) { r.missTTL = d }
}

func NewTestCodeRegistry(loader TestCodeLoader, ttl time.Duration, opts ...RegistryOption) *TestCodeRegistry {
	r := &TestCodeRegistry{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[string]registryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TestCodeRegistry) FindByCode(ctx context.Context, code string) (domain.TestCode, error) {
	if entry, ok := r.lookup(code); ok {
		return entry.result()
	}

	v, err, _ := r.sf.Do(code, func() (interface{}, error) {
		if entry, ok := r.lookup(code); ok {
			return entry, nil
		}
		tc, err := r.loader.LoadTestCode(ctx, code)
		switch {
		case err == nil:
			return r.remember(code, registryEntry{testCode: tc}, r.ttlWithJitter()), nil
		case errors.Is(err, domain.ErrTestCodeNotFound) && r.missTTL > 0:
			return r.remember(code, registryEntry{missing: true}, r.missTTL), nil
		default:
			return nil, err
		}
	})
	if err != nil {
		return domain.TestCode{}, err
	}
	return v.(registryEntry).result()
}

// Invalidate forgets whatever is cached for code.
func (r *TestCodeRegistry) Invalidate(_ context.Context, code string) error {
	r.mu.Lock()
	delete(r.entries, code)
	r.mu.Unlock()
	r.sf.Forget(code)
	return nil
}

func (r *TestCodeRegistry) lookup(code string) (registryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[code]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return registryEntry{}, false
	}
	return entry, true
}

func (r *TestCodeRegistry) remember(code string, entry registryEntry, ttl time.Duration) registryEntry {
	entry.expiresAt = r.clock().Add(ttl)
	r.mu.Lock()
	r.entries[code] = entry
	r.mu.Unlock()
	return entry
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

// StaticTestCodeLoader is an in-memory test code source, used when no
// database is configured and in tests.
type StaticTestCodeLoader struct {
	mu        sync.RWMutex
	testCodes map[string]domain.TestCode
}

func NewStaticTestCodeLoader(testCodes ...domain.TestCode) *StaticTestCodeLoader {
	l := &StaticTestCodeLoader{testCodes: make(map[string]domain.TestCode, len(testCodes))}
	for _, tc := range testCodes {
		l.testCodes[tc.Code] = tc
	}
	return l
}

// Add registers a test code.
func (l *StaticTestCodeLoader) Add(tc domain.TestCode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.testCodes[tc.Code] = tc
}

// Create issues tc, replacing any code with the same name.
func (l *StaticTestCodeLoader) Create(_ context.Context, tc domain.TestCode) error {
	l.Add(tc)
	return nil
}

func (l *StaticTestCodeLoader) LoadTestCode(_ context.Context, code string) (domain.TestCode, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if tc, ok := l.testCodes[code]; ok {
		return tc, nil
	}
	return domain.TestCode{}, domain.ErrTestCodeNotFound
}
