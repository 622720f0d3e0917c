package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"sessiond/internal/apperrors"
	"sessiond/internal/models"
)

type SessionRepo struct {
	DB DBTX
}

const createSession = `-- name: CreateSession
INSERT INTO refresh_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, ip_address, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, token_hash, created_at, expires_at, revoked_at, ip_address, user_agent
`

func (r *SessionRepo) Create(ctx context.Context, session models.RefreshSession) (models.RefreshSession, error) {
	rows, _ := r.DB.Query(ctx, createSession,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.CreatedAt,
		session.ExpiresAt,
		session.RevokedAt,
		nullIfEmpty(session.IPAddress),
		nullIfEmpty(session.UserAgent),
	)
	created, err := pgx.CollectOneRow(rows, rowToSession)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}
	return created, nil
}

const getSessionByID = `-- name: GetSessionByID
SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, ip_address, user_agent
FROM refresh_sessions
WHERE id = $1
`

// Get session by id
// It should return the row even if it is revoked or expired already
func (r *SessionRepo) GetByID(ctx context.Context, sessionID uuid.UUID) (models.RefreshSession, error) {
	rows, _ := r.DB.Query(ctx, getSessionByID, sessionID)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		return session, fmt.Errorf("repo error: %w", apperrors.ErrSessionNotFound)
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

const revokeSession = `-- name: Revoke session if it is not revoked yet
UPDATE refresh_sessions
SET revoked_at = $2
WHERE id = $1 AND revoked_at IS NULL
RETURNING id, user_id, token_hash, created_at, expires_at, revoked_at, ip_address, user_agent
`

// Revoke session by id
// The conditional update keeps revocation atomic: only the caller that
// catches revoked_at still null gets a row back, everyone else gets
// ErrSessionRevoked with the original revocation time intact.
func (r *SessionRepo) RevokeByID(ctx context.Context, sessionID uuid.UUID, now time.Time) (models.RefreshSession, error) {
	rows, _ := r.DB.Query(ctx, revokeSession, sessionID, now)
	session, err := pgx.CollectOneRow(rows, rowToSession)

	switch {
	case err == nil:
		return session, nil
	case errors.Is(err, pgx.ErrNoRows):
		// No row updated: either revoked already or never existed
		session, err = r.GetByID(ctx, sessionID)
		if err != nil {
			return session, err
		}
		return session, fmt.Errorf("repo error: %w", apperrors.ErrSessionRevoked)
	default:
		return session, fmt.Errorf("db error: %w", err)
	}
}

const revokeAllForUser = `-- name: Revoke every active session of the user
UPDATE refresh_sessions
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL
`

func (r *SessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForUser, userID, now.Truncate(time.Microsecond))
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToSession(row pgx.CollectableRow) (models.RefreshSession, error) {
	var s models.RefreshSession
	var ip, agent *string

	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.CreatedAt, &s.ExpiresAt, &s.RevokedAt, &ip, &agent)
	if ip != nil {
		s.IPAddress = *ip
	}
	if agent != nil {
		s.UserAgent = *agent
	}
	return s, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
