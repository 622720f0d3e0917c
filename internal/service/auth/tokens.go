package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"sessiond/internal/apperrors"
	"sessiond/internal/models"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"
)

// Access token claims embed the owning user and the refresh session the
// token was minted from, so a revoked session can be traced from any access token
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	UserID    uuid.UUID `json:"uid"`
	Email     string    `json:"email"`
	SessionID uuid.UUID `json:"sid"`
}

// TokenManager signs and parses short-lived access tokens
type TokenManager struct {
	// Secret key to sign access token
	key string

	// JWT MAC (Message Authentication Code) algorithm
	alg jwt.SigningMethod

	// Access token lifetime
	accessTTL time.Duration
}

func NewTokenManager(secretKey string, alg string, accessTTL time.Duration) (*TokenManager, error) {
	if secretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if alg == "" {
		alg = defaultSigningMethod
	}
	if accessTTL == 0 {
		accessTTL = defaultAccessTokenTTL
	}

	return &TokenManager{
		key:       secretKey,
		alg:       jwt.GetSigningMethod(alg),
		accessTTL: accessTTL,
	}, nil
}

func (m *TokenManager) Generate(user models.User, sessionID uuid.UUID) (models.IssuedToken, error) {
	now := time.Now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			UserID:    user.ID,
			Email:     user.Email,
			SessionID: sessionID,
		},
	)

	signed, err := token.SignedString([]byte(m.key))
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
func (m *TokenManager) Parse(access string) (AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	token, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) { return []byte(m.key), nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
	)

	if err != nil || !token.Valid {
		return AccessTokenClaims{}, fmt.Errorf("%w: %w", apperrors.ErrAccessTokenInvalid, err)
	}

	return *claims, nil
}
