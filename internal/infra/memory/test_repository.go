package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"competition-service/internal/domain"
)

// TestLoader fetches test content from a backing store (e.g., Postgres).
type TestLoader interface {
	LoadTest(ctx context.Context, testID string) (domain.Test, error)
}

// TestRepository caches tests with TTL to avoid repeated DB hits. Concurrent
// misses for the same test collapse into one load via singleflight.
type TestRepository struct {
	loader TestLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedTest
}

type cachedTest struct {
	test      domain.Test
	expiresAt time.Time
}

func NewTestRepository(loader TestLoader, ttl time.Duration) *TestRepository {
	return &TestRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedTest),
	}
}

func (r *TestRepository) GetTest(ctx context.Context, testID string) (domain.Test, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[testID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.test, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(testID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[testID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.test, nil
		}
		r.mu.RUnlock()

		test, err := r.loader.LoadTest(ctx, testID)
		if err != nil {
			return domain.Test{}, err
		}

		r.mu.Lock()
		r.cache[testID] = cachedTest{
			test:      test,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return test, nil
	})
	if err != nil {
		return domain.Test{}, err
	}
	return result.(domain.Test), nil
}

// StaticTestLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticTestLoader struct {
	tests map[string]domain.Test
}

func NewStaticTestLoader(tests map[string]domain.Test) *StaticTestLoader {
	return &StaticTestLoader{tests: tests}
}

func (l *StaticTestLoader) LoadTest(_ context.Context, testID string) (domain.Test, error) {
	if test, ok := l.tests[testID]; ok {
		return test, nil
	}
	return domain.Test{}, domain.ErrTestNotFound
}

func (r *TestRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
