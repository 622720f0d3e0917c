// Package sessions owns the refresh-session lifecycle: issuing, validating,
// rotating and revoking persisted refresh credentials.
//
// The externally issued token is "{sessionID}.{secret}". Only the sha256
// fingerprint of the secret is stored, so the database never holds anything
// a thief could replay directly.
package sessions

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessiond/internal/apperrors"
	"sessiond/internal/metrics"
	"sessiond/internal/models"
	"sessiond/internal/repository"
)

const (
	defaultSessionTTL = 7 * 24 * time.Hour

	// Random part of the issued token, before base64
	secretBytesLen = 32
)

// Fingerprint returns the storable one-way hash of a token secret.
// Secrets are high-entropy random values, so a bare digest without salt is enough.
func Fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Meta is the client metadata captured at session creation for audit purposes
type Meta struct {
	IPAddress string
	UserAgent string
}

// Validation is a pure status report: no row is touched while producing it.
// UserID and SessionID are set whenever the presented token resolved to a row,
// even if the status is not VALID, so the caller can apply containment policy.
type Validation struct {
	Status    models.SessionStatus
	UserID    uuid.UUID
	SessionID uuid.UUID
}

type Manager struct {
	ttl      time.Duration
	sessions repository.SessionRepo

	// now is swappable in tests
	now func() time.Time
}

func NewManager(ttl time.Duration, sessions repository.SessionRepo) *Manager {
	if ttl == 0 {
		ttl = defaultSessionTTL
	}

	return &Manager{
		ttl:      ttl,
		sessions: sessions,
		now:      time.Now,
	}
}

// TTL returns the configured session lifetime (the cookie max age must match it)
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create issues a brand new session for the user and returns the row together
// with the composite token to hand to the client. The raw secret exists only
// in the returned token.
func (m *Manager) Create(ctx context.Context, userID uuid.UUID, meta Meta) (models.RefreshSession, string, error) {
	b := make([]byte, secretBytesLen)
	if _, err := rand.Read(b); err != nil {
		return models.RefreshSession{}, "", fmt.Errorf("error while generating session secret. Err: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(b)

	now := m.now()
	session := models.RefreshSession{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: Fingerprint(secret),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		RevokedAt: nil,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}

	created, err := m.sessions.Create(ctx, session)
	if err != nil {
		return models.RefreshSession{}, "", fmt.Errorf("error while saving session. Err: %w", err)
	}

	metrics.SessionsIssued.Inc()
	return created, composeToken(created.ID, secret), nil
}

// Validate reports the status of a presented token without side effects.
// Anything malformed fails closed to INVALID. The returned error is reserved
// for storage failures only.
func (m *Manager) Validate(ctx context.Context, token string) (Validation, error) {
	sessionID, secret, ok := parseToken(token)
	if !ok {
		return Validation{Status: models.SessionInvalid}, nil
	}

	session, err := m.sessions.GetByID(ctx, sessionID)
	switch {
	case isNotFound(err):
		return Validation{Status: models.SessionInvalid}, nil
	case err != nil:
		return Validation{}, err
	}

	v := Validation{UserID: session.UserID, SessionID: session.ID}

	switch {
	case !fingerprintMatches(session.TokenHash, secret):
		v.Status = models.SessionInvalid
	case session.RevokedAt != nil:
		v.Status = models.SessionRevoked
	case !session.ExpiresAt.After(m.now()):
		v.Status = models.SessionExpired
	default:
		v.Status = models.SessionValid
	}

	return v, nil
}

// Rotate replaces the presented token with a fresh session.
//
// The token is re-validated here even though the caller usually validated it
// already: this check is the authoritative one. The old row is revoked with a
// conditional update before the new row exists, so two concurrent rotations
// of the same token can never both succeed -- the loser fails the revoke and
// gets ErrSessionRevoked. A crash between revoke and create fails safe: the
// user re-logs in, no token is ever valid twice.
func (m *Manager) Rotate(ctx context.Context, token string, meta Meta) (previous models.RefreshSession, next models.RefreshSession, newToken string, err error) {
	sessionID, secret, ok := parseToken(token)
	if !ok {
		return previous, next, "", fmt.Errorf("rotate: %w", apperrors.ErrSessionInvalid)
	}

	session, err := m.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return previous, next, "", fmt.Errorf("rotate: %w", err)
	}

	switch {
	case !fingerprintMatches(session.TokenHash, secret):
		return previous, next, "", fmt.Errorf("rotate: %w", apperrors.ErrSessionInvalid)
	case session.RevokedAt != nil:
		return previous, next, "", fmt.Errorf("rotate: %w", apperrors.ErrSessionRevoked)
	case !session.ExpiresAt.After(m.now()):
		return previous, next, "", fmt.Errorf("rotate: %w", apperrors.ErrSessionExpired)
	}

	// Revoke first. Losing this race means another rotation already won.
	previous, err = m.sessions.RevokeByID(ctx, session.ID, m.now())
	if err != nil {
		return previous, next, "", fmt.Errorf("rotate: %w", err)
	}

	next, newToken, err = m.Create(ctx, session.UserID, meta)
	if err != nil {
		return previous, next, "", err
	}

	metrics.SessionsRotated.Inc()
	metrics.SessionsRevoked.WithLabelValues("rotation").Inc()
	return previous, next, newToken, nil
}

// RevokeByID revokes a single session. Idempotent: revoking an already
// revoked session is a no-op, not an error.
func (m *Manager) RevokeByID(ctx context.Context, sessionID uuid.UUID) error {
	_, err := m.sessions.RevokeByID(ctx, sessionID, m.now())
	switch {
	case err == nil:
		metrics.SessionsRevoked.WithLabelValues("logout").Inc()
		return nil
	case isAlreadyRevoked(err):
		return nil
	default:
		return err
	}
}

// RevokeAllForUser revokes every active session the user owns.
// Used as the blast-radius containment action on password change and on
// detected reuse of a dead token.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	count, err := m.sessions.RevokeAllForUser(ctx, userID, m.now())
	if err != nil {
		return 0, err
	}

	metrics.SessionsRevoked.WithLabelValues("containment").Add(float64(count))
	return count, nil
}

func composeToken(sessionID uuid.UUID, secret string) string {
	return sessionID.String() + "." + secret
}

// parseToken splits "{sessionID}.{secret}" and fails closed on anything else
func parseToken(token string) (uuid.UUID, string, bool) {
	idPart, secret, found := strings.Cut(token, ".")
	if !found || secret == "" {
		return uuid.Nil, "", false
	}

	sessionID, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", false
	}

	return sessionID, secret, true
}

func fingerprintMatches(storedHash string, secret string) bool {
	fp := Fingerprint(secret)
	return len(storedHash) == len(fp) && subtle.ConstantTimeCompare([]byte(storedHash), []byte(fp)) == 1
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrSessionNotFound)
}

func isAlreadyRevoked(err error) bool {
	return errors.Is(err, apperrors.ErrSessionRevoked)
}
