package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/Hwndy/PR-BOOK/domain"
	serrors "github.com/Hwndy/PR-BOOK/errors"
)

// expiredRetention keeps logically expired records visible for a while so
// they still show up in the expired-token statistics before eviction. The
// validator denies them on ExpiresAt regardless.
const expiredRetention = time.Hour

// MemoryTokenRepository implements domain.TokenRepository on ttlcache, for
// running without MongoDB (memory-only mode) and for tests. A single mutex
// serializes the bind transition, which is what makes TryBindDevice a
// compare-and-set here.
type MemoryTokenRepository struct {
	mu       sync.Mutex
	tokens   *ttlcache.Cache[string, *domain.ReadingToken]
	sessions map[string]string // session id -> token value, uniqueness guard
}

func NewMemoryTokenRepository() *MemoryTokenRepository {
	tokens := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, *domain.ReadingToken](),
	)
	go tokens.Start()

	return &MemoryTokenRepository{
		tokens:   tokens,
		sessions: make(map[string]string),
	}
}

// Close stops the eviction goroutine.
func (r *MemoryTokenRepository) Close() {
	r.tokens.Stop()
}

func (r *MemoryTokenRepository) Insert(_ context.Context, token *domain.ReadingToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tokens.Has(token.Token) {
		return serrors.ErrDuplicateToken
	}
	if _, exists := r.sessions[token.SessionID]; exists {
		return serrors.ErrDuplicateToken
	}

	ttl := time.Until(token.ExpiresAt) + expiredRetention
	if ttl <= 0 {
		ttl = time.Minute
	}
	record := *token
	r.tokens.Set(token.Token, &record, ttl)
	r.sessions[token.SessionID] = token.Token
	return nil
}

func (r *MemoryTokenRepository) Find(_ context.Context, token string) (*domain.ReadingToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.tokens.Get(token)
	if item == nil {
		return nil, serrors.ErrTokenNotFound
	}
	record := *item.Value()
	return &record, nil
}

func (r *MemoryTokenRepository) TryBindDevice(_ context.Context, token string, binding domain.DeviceBinding) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.tokens.Get(token)
	if item == nil {
		return false, serrors.ErrTokenNotFound
	}
	record := item.Value()
	if record.Bound() {
		return false, nil
	}
	record.DeviceFingerprint = binding.Fingerprint
	record.UserAgent = binding.UserAgent
	record.IP = binding.IP
	return true, nil
}

func (r *MemoryTokenRepository) TouchLastAccess(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.tokens.Get(token)
	if item == nil {
		return serrors.ErrTokenNotFound
	}
	item.Value().LastAccess = at.UTC()
	return nil
}

func (r *MemoryTokenRepository) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.tokens.Get(token)
	if item == nil {
		return serrors.ErrTokenNotFound
	}
	delete(r.sessions, item.Value().SessionID)
	r.tokens.Delete(token)
	return nil
}

func (r *MemoryTokenRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var removed int64
	for _, item := range r.tokens.Items() {
		record := item.Value()
		if record.Expired(now) {
			delete(r.sessions, record.SessionID)
			r.tokens.Delete(record.Token)
			removed++
		}
	}
	// Session entries whose token the cache evicted on its own.
	for sessionID, token := range r.sessions {
		if !r.tokens.Has(token) {
			delete(r.sessions, sessionID)
		}
	}
	return removed, nil
}

func (r *MemoryTokenRepository) CountTotal(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.tokens.Items())), nil
}

func (r *MemoryTokenRepository) CountExpired(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var expired int64
	for _, item := range r.tokens.Items() {
		if item.Value().Expired(now) {
			expired++
		}
	}
	return expired, nil
}

func (r *MemoryTokenRepository) CountActive(_ context.Context, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var active int64
	for _, item := range r.tokens.Items() {
		record := item.Value()
		if !record.Expired(now) && record.ActiveAt(now, window) {
			active++
		}
	}
	return active, nil
}

func (r *MemoryTokenRepository) CountActivePeers(_ context.Context, email, orderReference, exceptSessionID string, window time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	var peers int64
	for _, item := range r.tokens.Items() {
		record := item.Value()
		if record.Email != email || record.OrderReference != orderReference {
			continue
		}
		if record.SessionID == exceptSessionID {
			continue
		}
		if !record.Expired(now) && record.ActiveAt(now, window) {
			peers++
		}
	}
	return peers, nil
}

var _ domain.TokenRepository = (*MemoryTokenRepository)(nil)
