package prbook

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DeviceSignals are the request-level inputs to the device fingerprint.
type DeviceSignals struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	IP             string
	ForwardedFor   string
}

// RequestContext carries the per-request identity handed to the validator:
// the derived fingerprint plus the raw values persisted for audit at
// first-touch binding.
type RequestContext struct {
	Fingerprint string
	UserAgent   string
	IP          string
}

// Fingerprint derives a stable, opaque device identifier from the signal set.
// The component order and the "|" separator are fixed: changing either
// invalidates every bound token in the store. The client IP is part of the
// hash, so a reader switching networks mid-session is rejected as a device
// mismatch; strictness against link sharing was chosen over roaming
// convenience.
func Fingerprint(s DeviceSignals) string {
	components := []string{
		s.UserAgent,
		s.AcceptLanguage,
		s.AcceptEncoding,
		s.IP,
		s.ForwardedFor,
	}
	sum := sha256.Sum256([]byte(strings.Join(components, "|")))
	return hex.EncodeToString(sum[:])
}
