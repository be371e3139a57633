package domain

import "time"

// ReadingToken grants time-limited access to the protected e-book for one
// completed order. The token value is the bearer credential itself and doubles
// as the primary key. DeviceFingerprint is empty at issuance and written
// exactly once, on the first successful validation; it never changes after
// that.
type ReadingToken struct {
	Token             string    `bson:"_id" json:"token"`
	Email             string    `bson:"email" json:"email"`
	OrderReference    string    `bson:"order_reference" json:"orderReference"`
	ProductName       string    `bson:"product_name" json:"productName"`
	SessionID         string    `bson:"session_id" json:"sessionId"`
	DeviceFingerprint string    `bson:"device_fingerprint" json:"-"`
	UserAgent         string    `bson:"user_agent,omitempty" json:"-"`
	IP                string    `bson:"ip,omitempty" json:"-"`
	CreatedAt         time.Time `bson:"created_at" json:"createdAt"`
	ExpiresAt         time.Time `bson:"expires_at" json:"expiresAt"`

	// LastAccess is zero until the first successful validation. Only tokens
	// somebody actually reads from ever count as active sessions.
	LastAccess time.Time `bson:"last_access" json:"lastAccess"`
}

// Bound reports whether the token has been claimed by a device.
func (t *ReadingToken) Bound() bool {
	return t.DeviceFingerprint != ""
}

// Expired reports whether the absolute token lifetime has passed. Activity
// never extends ExpiresAt.
func (t *ReadingToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// ActiveAt reports whether the reading session saw activity within the given
// window. A record whose LastAccess is still zero was never validated and is
// never active.
func (t *ReadingToken) ActiveAt(now time.Time, window time.Duration) bool {
	return !t.LastAccess.IsZero() && now.Sub(t.LastAccess) < window
}
