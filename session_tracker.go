package prbook

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Hwndy/PR-BOOK/domain"
	"github.com/Hwndy/PR-BOOK/internal/metrics"
)

// ActivityCache mirrors session liveness in a fast store so active-session
// accounting does not hit the token store on every heartbeat. Implementations:
// cache.ActivityCache (in-process) and redis.ActivityStore (shared).
type ActivityCache interface {
	Touch(ctx context.Context, sessionID string, at time.Time) error
	ActiveCount(ctx context.Context) (int64, error)
}

// Stats is the operational snapshot exposed on the admin stats endpoint.
// It must never be consulted for access decisions.
type Stats struct {
	ActiveSessions int64 `json:"activeSessions"`
	TotalTokens    int64 `json:"totalTokens"`
	ValidTokens    int64 `json:"validTokens"`
	ExpiredTokens  int64 `json:"expiredTokens"`
}

// SessionTracker maintains last-access freshness on token records and serves
// liveness statistics. The activity window is distinct from, and much shorter
// than, the token's absolute lifetime: an idle session goes inactive for
// statistics while its token stays perfectly readable.
type SessionTracker struct {
	repo   domain.TokenRepository
	cache  ActivityCache
	window time.Duration
	now    func() time.Time
}

// NewSessionTracker creates a tracker. cache may be nil; active counts always
// fall back on the token store's last-access field.
func NewSessionTracker(repo domain.TokenRepository, cache ActivityCache, window time.Duration) *SessionTracker {
	return &SessionTracker{
		repo:   repo,
		cache:  cache,
		window: window,
		now:    time.Now,
	}
}

// RecordActivity stamps the token's last access. ExpiresAt is untouched:
// there is no sliding renewal in this scheme. The activity cache update is
// best effort; the store remains the source of truth.
func (t *SessionTracker) RecordActivity(ctx context.Context, record *domain.ReadingToken) error {
	now := t.now().UTC()
	if err := t.repo.TouchLastAccess(ctx, record.Token, now); err != nil {
		return err
	}
	if t.cache != nil {
		if err := t.cache.Touch(ctx, record.SessionID, now); err != nil {
			log.Warn().Err(err).Str("session_id", record.SessionID).Msg("Activity cache update failed")
		}
	}
	return nil
}

// IsActive reports whether a session is live for statistics purposes.
func (t *SessionTracker) IsActive(record *domain.ReadingToken) bool {
	return record.ActiveAt(t.now().UTC(), t.window)
}

// Window returns the session-activity window.
func (t *SessionTracker) Window() time.Duration {
	return t.window
}

// Snapshot aggregates the operational counters.
func (t *SessionTracker) Snapshot(ctx context.Context) (*Stats, error) {
	total, err := t.repo.CountTotal(ctx)
	if err != nil {
		return nil, err
	}
	expired, err := t.repo.CountExpired(ctx)
	if err != nil {
		return nil, err
	}

	// The store's last-access field is authoritative for liveness: an
	// in-process activity cache comes up empty after a restart while sessions
	// are still live in the store. The cache count only serves when it is
	// ahead of the store, e.g. with the shared Redis store fronting several
	// instances.
	active, err := t.repo.CountActive(ctx, t.window)
	if err != nil {
		return nil, err
	}
	if t.cache != nil {
		cached, cacheErr := t.cache.ActiveCount(ctx)
		if cacheErr != nil {
			log.Warn().Err(cacheErr).Msg("Activity cache count failed, using store count")
		} else if cached > active {
			active = cached
		}
	}

	metrics.ActiveSessionsGauge.Set(float64(active))
	return &Stats{
		ActiveSessions: active,
		TotalTokens:    total,
		ValidTokens:    total - expired,
		ExpiredTokens:  expired,
	}, nil
}
