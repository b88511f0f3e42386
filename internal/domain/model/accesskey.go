package model

import "time"

// KeyStatus represents the lifecycle state of an access key.
// "Expired" is not a stored state; it is derived from an active key's
// expiry via IsExpired so the list path and the subscription path can
// never disagree about it.
type KeyStatus string

const (
	StatusActive    KeyStatus = "active"
	StatusOnHold    KeyStatus = "on_hold"
	StatusSuspended KeyStatus = "suspended"
)

// AccessKey is a locally administered relay credential. Token is the opaque
// public identifier used in subscription links; KeyID is the identifier the
// Outline server assigned to the key. The two are never interchangeable.
type AccessKey struct {
	Token string
	KeyID string
	Name  string

	// Expiry is nil while the key is on hold (the time budget has not
	// started yet). For started keys it is always set; the far-future
	// sentinel denotes an unlimited key.
	Expiry *time.Time

	Status KeyStatus

	// DataLimit is the cumulative byte budget granted locally. 0 means
	// unlimited.
	DataLimit int64

	// InitialDuration is the duration token supplied at creation, kept so
	// an on-hold key can compute its real expiry when it first sees use.
	InitialDuration string
}

// IsExpired reports whether the key's time budget has run out. Only active
// keys with a set expiry can be expired; on-hold and suspended keys never
// are, regardless of age.
func (k AccessKey) IsExpired(now time.Time) bool {
	return k.Status == StatusActive && k.Expiry != nil && now.After(*k.Expiry)
}

// Activation pairs a token with the expiry computed when an on-hold key
// starts its time budget.
type Activation struct {
	Token  string
	Expiry time.Time
}

// RemoteKey is the Outline server's view of an access key.
type RemoteKey struct {
	ID        string
	Name      string
	AccessURL string

	// DataLimit is the currently enforced byte limit, or nil when the
	// server has no limit set for the key.
	DataLimit *int64
}
