package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sessiond/internal/models"
)

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, email string, passwordHash string) (models.User, error)

	// Get user by id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Replace the stored password hash
	// If user not found must return apperrors.ErrUserNotFound
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// RefreshSession repository interface
type SessionRepo interface {
	// Create session row
	Create(ctx context.Context, session models.RefreshSession) (models.RefreshSession, error)

	// Get session by id even if it is revoked or expired
	// If no row exists must return apperrors.ErrSessionNotFound
	GetByID(ctx context.Context, sessionID uuid.UUID) (models.RefreshSession, error)

	// Set revoked_at only if it is still null.
	// The update must be a single atomic statement: two concurrent calls must
	// never both win. The loser gets apperrors.ErrSessionRevoked with the row
	// as it is, a missing row gets apperrors.ErrSessionNotFound.
	RevokeByID(ctx context.Context, sessionID uuid.UUID, now time.Time) (models.RefreshSession, error)

	// Revoke every non-revoked session owned by the user, return the count
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

// Storage aggregates repositories over a single database handle
type Storage interface {
	User() UserRepo
	Session() SessionRepo

	// Run fn within a database transaction
	InTx(ctx context.Context, fn func(Storage) error) error
}
