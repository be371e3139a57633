package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActivityStore tracks live reading sessions in Redis, for deployments with
// more than one server process. Each session gets its own key whose TTL is
// the activity window; counting active sessions is counting live keys.
type ActivityStore struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewActivityStore(client *redis.Client, prefix string, window time.Duration) *ActivityStore {
	return &ActivityStore{
		client: client,
		prefix: prefix,
		window: window,
	}
}

func (s *ActivityStore) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, sessionID)
}

func (s *ActivityStore) Touch(ctx context.Context, sessionID string, at time.Time) error {
	err := s.client.Set(ctx, s.key(sessionID), strconv.FormatInt(at.Unix(), 10), s.window).Err()
	if err != nil {
		return fmt.Errorf("touching session in redis: %w", err)
	}
	return nil
}

func (s *ActivityStore) ActiveCount(ctx context.Context) (int64, error) {
	var (
		count  int64
		cursor uint64
	)
	pattern := fmt.Sprintf("%s:session:*", s.prefix)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scanning sessions in redis: %w", err)
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
