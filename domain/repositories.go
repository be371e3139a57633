package domain

import (
	"context"
	"time"
)

// DeviceBinding carries the request identity written to a token record at
// first touch.
type DeviceBinding struct {
	Fingerprint string
	UserAgent   string
	IP          string
}

// TokenRepository is the persistent store for reading tokens. It is the only
// shared mutable resource in the subsystem, so the two operations that can
// race — Insert and TryBindDevice — must be atomic in the backing store.
type TokenRepository interface {
	// Insert stores a freshly issued token. Returns errors.ErrDuplicateToken
	// if the token or session id already exists.
	Insert(ctx context.Context, token *ReadingToken) error

	// Find returns the record for a token value, or errors.ErrTokenNotFound.
	// A record being deleted concurrently by the expiry sweep is reported as
	// not found.
	Find(ctx context.Context, token string) (*ReadingToken, error)

	// TryBindDevice claims an unbound token for a device. It must be a single
	// conditional update ("set fingerprint only if currently empty") so that
	// exactly one of two racing callers wins. Returns true if this call
	// performed the bind, false if the token was already bound.
	TryBindDevice(ctx context.Context, token string, binding DeviceBinding) (bool, error)

	// TouchLastAccess records activity on a token. Never touches ExpiresAt.
	TouchLastAccess(ctx context.Context, token string, at time.Time) error

	// Delete removes a single token record.
	Delete(ctx context.Context, token string) error

	// DeleteExpired removes every record whose ExpiresAt has passed and
	// returns the number deleted.
	DeleteExpired(ctx context.Context) (int64, error)

	CountTotal(ctx context.Context) (int64, error)
	CountExpired(ctx context.Context) (int64, error)

	// CountActive counts unexpired tokens with activity inside the window.
	CountActive(ctx context.Context, window time.Duration) (int64, error)

	// CountActivePeers counts other active sessions for the same purchase:
	// unexpired tokens sharing (email, orderReference) with a different
	// session id and activity inside the window.
	CountActivePeers(ctx context.Context, email, orderReference, exceptSessionID string, window time.Duration) (int64, error)
}
