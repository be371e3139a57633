package prbook

import (
	"sync"
	"testing"
	"time"

	"github.com/Hwndy/PR-BOOK/cache"
)

// fakeClock lets tests move time forward without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	repo      *cache.MemoryTokenRepository
	clock     *fakeClock
	issuer    *Issuer
	tracker   *SessionTracker
	validator *Validator
}

const (
	testBaseURL       = "http://localhost:5000"
	testTokenTTL      = 24 * time.Hour
	testSessionWindow = 2 * time.Hour
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := cache.NewMemoryTokenRepository()
	t.Cleanup(repo.Close)

	clock := newFakeClock()

	issuer := NewIssuer(repo, testBaseURL, testTokenTTL)
	issuer.now = clock.Now

	tracker := NewSessionTracker(repo, nil, testSessionWindow)
	tracker.now = clock.Now

	validator := NewValidator(repo, tracker, testSessionWindow)
	validator.now = clock.Now

	return &testEnv{
		repo:      repo,
		clock:     clock,
		issuer:    issuer,
		tracker:   tracker,
		validator: validator,
	}
}
