package prbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Hwndy/PR-BOOK/domain"
	serrors "github.com/Hwndy/PR-BOOK/errors"
	"github.com/Hwndy/PR-BOOK/internal/metrics"
)

// Grant is what a successful validation hands back to the caller.
type Grant struct {
	SessionID string
	Email     string
	ExpiresAt time.Time
}

// Validator is the single authority for access decisions. The decision table:
//
//	unknown token          -> INVALID_TOKEN
//	past ExpiresAt         -> TOKEN_EXPIRED (record lazily deleted)
//	unbound, not expired   -> ALLOW, binds the device (one-time, atomic)
//	bound, same device     -> ALLOW, touches last access
//	bound, other device    -> SHARING_DETECTED, binding never overwritten
//
// The first successful call after issuance silently claims the token for one
// device; everything later must present the same fingerprint. The
// concurrent-session count over (email, orderReference) is a secondary alarm
// on top of that, never the primary control. It only counts sessions that
// completed a validation: issued-but-unopened tokens and denied attempts
// leave no activity behind and never lock the real reader out.
type Validator struct {
	repo    domain.TokenRepository
	tracker *SessionTracker
	window  time.Duration
	now     func() time.Time
}

func NewValidator(repo domain.TokenRepository, tracker *SessionTracker, sessionWindow time.Duration) *Validator {
	return &Validator{
		repo:    repo,
		tracker: tracker,
		window:  sessionWindow,
		now:     time.Now,
	}
}

// Validate runs the full access decision for a (token, request) pair and
// records session activity on success. Denials are *errors.AccessError;
// anything else is infrastructure trouble.
func (v *Validator) Validate(ctx context.Context, token string, rc RequestContext) (*Grant, error) {
	record, err := v.repo.Find(ctx, token)
	if errors.Is(err, serrors.ErrTokenNotFound) {
		return nil, v.deny(serrors.NewInvalidToken())
	}
	if err != nil {
		return nil, fmt.Errorf("loading reading token: %w", err)
	}

	now := v.now().UTC()
	if record.Expired(now) {
		// The TTL index reaps these eventually; deleting here just keeps an
		// expired link from lingering until the next sweep.
		if delErr := v.repo.Delete(ctx, token); delErr != nil && !errors.Is(delErr, serrors.ErrTokenNotFound) {
			log.Warn().Err(delErr).Str("session_id", record.SessionID).Msg("Could not delete expired reading token")
		}
		return nil, v.deny(serrors.NewTokenExpired())
	}

	claimed := false
	if !record.Bound() {
		bound, bindErr := v.repo.TryBindDevice(ctx, token, domain.DeviceBinding{
			Fingerprint: rc.Fingerprint,
			UserAgent:   rc.UserAgent,
			IP:          rc.IP,
		})
		if bindErr != nil {
			if errors.Is(bindErr, serrors.ErrTokenNotFound) {
				// Swept out from under us mid-bind. Fail closed.
				return nil, v.deny(serrors.NewInvalidToken())
			}
			return nil, fmt.Errorf("binding device: %w", bindErr)
		}
		if bound {
			claimed = true
			record.DeviceFingerprint = rc.Fingerprint
			log.Info().
				Str("session_id", record.SessionID).
				Str("order_reference", record.OrderReference).
				Msg("Reading token bound to first device")
		} else {
			// Lost the first-claim race: someone else bound it between our
			// read and the conditional update. Re-read and judge the request
			// against the winner's fingerprint.
			record, err = v.repo.Find(ctx, token)
			if errors.Is(err, serrors.ErrTokenNotFound) {
				return nil, v.deny(serrors.NewInvalidToken())
			}
			if err != nil {
				return nil, fmt.Errorf("reloading reading token: %w", err)
			}
		}
	}

	if !claimed && record.DeviceFingerprint != rc.Fingerprint {
		log.Warn().
			Str("session_id", record.SessionID).
			Str("order_reference", record.OrderReference).
			Msg("Device fingerprint mismatch, denying access")
		return nil, v.deny(serrors.NewSharingDetected())
	}

	peers, err := v.repo.CountActivePeers(ctx, record.Email, record.OrderReference, record.SessionID, v.window)
	if err != nil {
		return nil, fmt.Errorf("counting active sessions: %w", err)
	}
	if peers > 0 {
		return nil, v.deny(serrors.NewConcurrentSession())
	}

	if err := v.tracker.RecordActivity(ctx, record); err != nil {
		return nil, fmt.Errorf("recording session activity: %w", err)
	}

	metrics.AccessGrantedTotal.Inc()
	return &Grant{
		SessionID: record.SessionID,
		Email:     record.Email,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

func (v *Validator) deny(denial *serrors.AccessError) error {
	metrics.AccessDeniedTotal.WithLabelValues(denial.Code).Inc()
	return denial
}
