package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessiond/internal/apperrors"
	"sessiond/internal/models"
)

func Test_TokenManager(t *testing.T) {
	testUser := models.User{
		ID:    uuid.New(),
		Email: "nk@example.com",
	}

	t.Run("new defaults", func(t *testing.T) {
		m, err := NewTokenManager("secret", "", 0)

		require.NoError(t, err)
		require.Equal(t, "secret", m.key, "secret key should be set")
		require.Equal(t, defaultAccessTokenTTL, m.accessTTL, "default access token TTL should be set")
		require.Equal(t, defaultSigningMethod, m.alg.Alg(), "default signing method should be set")
	})

	t.Run("empty secret rejected", func(t *testing.T) {
		_, err := NewTokenManager("", "", 0)

		require.Error(t, err)
	})

	t.Run("generate claims", func(t *testing.T) {
		m, err := NewTokenManager("test-secret-key", "", 15*time.Minute)
		require.NoError(t, err)

		sessionID := uuid.New()
		issued, err := m.Generate(testUser, sessionID)
		require.NoError(t, err)
		require.NotEmpty(t, issued.Value)
		assert.WithinDuration(t, time.Now().Add(15*time.Minute), issued.ExpiresAt, time.Second)

		token, err := jwt.ParseWithClaims(issued.Value, &AccessTokenClaims{}, func(token *jwt.Token) (any, error) {
			return []byte("test-secret-key"), nil
		})
		require.NoError(t, err)
		require.True(t, token.Valid, "access token should be valid")

		claims, ok := token.Claims.(*AccessTokenClaims)
		require.True(t, ok, "claims should be of type AccessTokenClaims")
		assert.Equal(t, testUser.ID, claims.UserID, "user ID in token should match")
		assert.Equal(t, testUser.Email, claims.Email, "email in token should match")
		assert.Equal(t, sessionID, claims.SessionID, "session ID in token should match")
		assert.NotEmpty(t, claims.ID, "token has to has jti")
		assert.WithinDuration(t, time.Now(), claims.IssuedAt.Time, time.Second, "issued at should be close to now")
	})

	t.Run("parse round trip", func(t *testing.T) {
		m, err := NewTokenManager("test-secret-key", "", 15*time.Minute)
		require.NoError(t, err)

		sessionID := uuid.New()
		issued, err := m.Generate(testUser, sessionID)
		require.NoError(t, err)

		claims, err := m.Parse(issued.Value)

		require.NoError(t, err)
		require.Equal(t, testUser.ID, claims.UserID)
		require.Equal(t, sessionID, claims.SessionID)
	})

	t.Run("parse rejects wrong key", func(t *testing.T) {
		m, err := NewTokenManager("test-secret-key", "", 15*time.Minute)
		require.NoError(t, err)
		other, err := NewTokenManager("other-key", "", 15*time.Minute)
		require.NoError(t, err)

		issued, err := m.Generate(testUser, uuid.New())
		require.NoError(t, err)

		_, err = other.Parse(issued.Value)

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrAccessTokenInvalid)
	})

	t.Run("parse rejects garbage", func(t *testing.T) {
		m, err := NewTokenManager("test-secret-key", "", 15*time.Minute)
		require.NoError(t, err)

		_, err = m.Parse("not-a-jwt")

		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrAccessTokenInvalid)
	})
}
