package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// ActivityCache tracks live reading sessions in process memory. Each touch
// rearms the entry's TTL to the session window, so an entry existing means
// the session is active.
type ActivityCache struct {
	sessions *ttlcache.Cache[string, time.Time]
	window   time.Duration
}

func NewActivityCache(window time.Duration) *ActivityCache {
	sessions := ttlcache.New(
		ttlcache.WithTTL[string, time.Time](window),
		ttlcache.WithDisableTouchOnHit[string, time.Time](),
	)
	go sessions.Start()

	return &ActivityCache{sessions: sessions, window: window}
}

func (c *ActivityCache) Touch(_ context.Context, sessionID string, at time.Time) error {
	c.sessions.Set(sessionID, at, c.window)
	return nil
}

func (c *ActivityCache) ActiveCount(_ context.Context) (int64, error) {
	c.sessions.DeleteExpired()
	return int64(c.sessions.Len()), nil
}

// Close stops the eviction goroutine.
func (c *ActivityCache) Close() {
	c.sessions.Stop()
}
