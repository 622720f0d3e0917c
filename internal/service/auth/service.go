package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessiond/internal/apperrors"
	"sessiond/internal/models"
	"sessiond/internal/repository"
	"sessiond/internal/service/auth/sessions"
)

type Config struct {
	// Secret key to sign access token payload
	SecretKey string

	// Hasher to use during registration or login
	// Default bcrypt hasher is used when nil
	Hasher PasswordHasher

	// Access and refresh session lifetimes
	// Defaults are used when zero
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration

	// Verifier for google login. Google login is rejected when nil
	GoogleVerifier TokenVerifier
}

// Auth service
type AuthService struct {
	// Signer for short lived access tokens
	tokens *TokenManager

	// Refresh session lifecycle
	sessions *sessions.Manager

	// hasher to hash or compare user passwords
	hasher PasswordHasher

	google TokenVerifier

	// Repository to access long term data
	storage repository.Storage
}

func NewService(cfg Config, storage repository.Storage) (*AuthService, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	tokens, err := NewTokenManager(cfg.SecretKey, "", cfg.AccessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	return &AuthService{
		tokens:   tokens,
		sessions: sessions.NewManager(cfg.SessionTTL, storage.Session()),
		hasher:   hasher,
		google:   cfg.GoogleVerifier,
		storage:  storage,
	}, nil
}

// SessionTTL is the refresh session lifetime. The refresh cookie max age must match it.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessions.TTL()
}

func (s *AuthService) Register(ctx context.Context, email string, password string, meta sessions.Meta) (models.User, models.TokenPair, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	user, err := s.storage.User().CreateUser(ctx, email, hash)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user, meta)
	return user, pair, err
}

func (s *AuthService) Login(ctx context.Context, email string, password string, meta sessions.Meta) (models.User, models.TokenPair, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrUserNotFound
	}

	pair, err := s.issuePair(ctx, user, meta)
	return user, pair, err
}

// LoginGoogle verifies the google id token and logs the user in, creating the
// account on first login. Google-born accounts get an unguessable password.
func (s *AuthService) LoginGoogle(ctx context.Context, idToken string, meta sessions.Meta) (models.User, models.TokenPair, error) {
	if s.google == nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrGoogleTokenInvalid
	}

	email, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		hash, hashErr := s.randomPasswordHash()
		if hashErr != nil {
			return models.User{}, models.TokenPair{}, hashErr
		}
		user, err = s.storage.User().CreateUser(ctx, email, hash)
		if err != nil {
			return models.User{}, models.TokenPair{}, err
		}
	case err != nil:
		return models.User{}, models.TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user, meta)
	return user, pair, err
}

// ValidateRefresh reports the status of the presented refresh token.
// Pure status check: policy (like containment on reuse) is the caller's call.
func (s *AuthService) ValidateRefresh(ctx context.Context, token string) (sessions.Validation, error) {
	return s.sessions.Validate(ctx, token)
}

// RotateRefresh swaps the presented refresh token for a fresh pair.
// The user is passed in because the caller already resolved it for the 404 check.
func (s *AuthService) RotateRefresh(ctx context.Context, token string, user models.User, meta sessions.Meta) (models.TokenPair, error) {
	_, next, newToken, err := s.sessions.Rotate(ctx, token, meta)
	if err != nil {
		return models.TokenPair{}, err
	}

	access, err := s.tokens.Generate(user, next.ID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: newToken, ExpiresAt: next.ExpiresAt},
	}, nil
}

// Logout revokes the session behind the presented token if there is one.
// Invalid or foreign tokens are ignored: logout never fails the client.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	v, err := s.sessions.Validate(ctx, token)
	if err != nil {
		return err
	}

	if v.SessionID == uuid.Nil {
		return nil
	}

	return s.sessions.RevokeByID(ctx, v.SessionID)
}

// ChangePassword replaces the password and revokes every session the user
// owns, forcing re-login everywhere. Both writes happen in one transaction
// so a crash can't leave a new password with old sessions still alive.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword string, newPassword string) error {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		return apperrors.ErrUserNotFound
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	return s.storage.InTx(ctx, func(st repository.Storage) error {
		if err := st.User().UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}

		_, err := sessions.NewManager(s.sessions.TTL(), st.Session()).RevokeAllForUser(ctx, userID)
		return err
	})
}

// RevokeAllForUser is the blast-radius containment action
func (s *AuthService) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.sessions.RevokeAllForUser(ctx, userID)
}

func (s *AuthService) UserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// Auth resolves the user behind the request's Bearer access token
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get("Authorization")
	access, found := strings.CutPrefix(header, "Bearer ")
	if !found || access == "" {
		return models.User{}, apperrors.ErrAccessTokenInvalid
	}

	claims, err := s.tokens.Parse(access)
	if err != nil {
		return models.User{}, err
	}

	return s.storage.User().GetUserByID(ctx, claims.UserID)
}

func (s *AuthService) issuePair(ctx context.Context, user models.User, meta sessions.Meta) (models.TokenPair, error) {
	session, refreshToken, err := s.sessions.Create(ctx, user.ID, meta)
	if err != nil {
		return models.TokenPair{}, err
	}

	access, err := s.tokens.Generate(user, session.ID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{
		Access:  access,
		Refresh: models.IssuedToken{Value: refreshToken, ExpiresAt: session.ExpiresAt},
	}, nil
}

func (s *AuthService) randomPasswordHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generating password. Err: %w", err)
	}
	return s.hasher.Hash(base64.RawURLEncoding.EncodeToString(b))
}
