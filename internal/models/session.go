package models

import (
	"time"

	"github.com/google/uuid"
)

// Status of a refresh session as reported by validation
type SessionStatus string

const (
	SessionValid   SessionStatus = "VALID"
	SessionInvalid SessionStatus = "INVALID"
	SessionExpired SessionStatus = "EXPIRED"
	SessionRevoked SessionStatus = "REVOKED"
)

// RefreshSession is one issued refresh credential.
// The raw secret is never stored, only its fingerprint in TokenHash.
// Rows are revoked, never deleted: they stay around as an audit trail.
type RefreshSession struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time // nil while the session is still usable

	// Client metadata captured at creation, not used in validation
	IPAddress string
	UserAgent string
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued on register, login and refresh
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
