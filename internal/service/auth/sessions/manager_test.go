package sessions

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessiond/internal/apperrors"
	"sessiond/internal/models"
	"sessiond/internal/repository/postgres"
	"sessiond/internal/testutil"
)

func Test_Fingerprint(t *testing.T) {
	t.Run("deterministic hex digest", func(t *testing.T) {
		first := Fingerprint("some-secret")
		second := Fingerprint("some-secret")

		require.Equal(t, first, second, "same secret must produce same fingerprint")
		require.Len(t, first, 64, "sha256 hex digest is 64 chars")
	})

	t.Run("different secrets differ", func(t *testing.T) {
		require.NotEqual(t, Fingerprint("secret-a"), Fingerprint("secret-b"))
	})
}

func Test_parseToken(t *testing.T) {
	id := uuid.New()

	t.Run("valid token", func(t *testing.T) {
		gotID, secret, ok := parseToken(id.String() + ".raw-secret")

		require.True(t, ok)
		require.Equal(t, id, gotID)
		require.Equal(t, "raw-secret", secret)
	})

	t.Run("fails closed", func(t *testing.T) {
		tests := []struct {
			name  string
			token string
		}{
			{"empty", ""},
			{"no separator", "justonepart"},
			{"empty secret", id.String() + "."},
			{"not a uuid", "not-a-uuid.secret"},
			{"separator only", "."},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, _, ok := parseToken(tt.token)
				require.False(t, ok, "token %q must not parse", tt.token)
			})
		}
	})
}

func Test_Manager(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	createUser := func(t *testing.T, tx pgx.Tx) models.User {
		t.Helper()
		repo := postgres.UserRepo{DB: tx}
		user, err := repo.CreateUser(t.Context(), "nk@example.com", "hashed-password")
		require.NoError(t, err)
		return user
	}

	withTx := func(t *testing.T, fn func(tx pgx.Tx, m *Manager, user models.User)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			user := createUser(t, tx)
			m := NewManager(7*24*time.Hour, &postgres.SessionRepo{DB: tx})
			fn(tx, m, user)
		})
	}

	meta := Meta{IPAddress: "203.0.113.7", UserAgent: "sessiond-test/1.0"}

	t.Run("create session", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			session, token, err := m.Create(t.Context(), user.ID, meta)

			require.NoError(t, err)
			require.Equal(t, user.ID, session.UserID)
			require.WithinDuration(t, time.Now().Add(7*24*time.Hour), session.ExpiresAt, time.Second)
			require.Nil(t, session.RevokedAt)

			require.True(t, strings.HasPrefix(token, session.ID.String()+"."), "token must start with the session id")
			secret := strings.TrimPrefix(token, session.ID.String()+".")
			require.Equal(t, Fingerprint(secret), session.TokenHash, "only the fingerprint is stored")
			require.NotContains(t, session.TokenHash, secret, "raw secret must never be stored")
		})
	})

	t.Run("fresh session is VALID", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			session, token, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			v, err := m.Validate(t.Context(), token)

			require.NoError(t, err)
			require.Equal(t, models.SessionValid, v.Status)
			require.Equal(t, user.ID, v.UserID)
			require.Equal(t, session.ID, v.SessionID)
		})
	})

	t.Run("revoked session is REVOKED", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			session, token, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			require.NoError(t, m.RevokeByID(t.Context(), session.ID))

			v, err := m.Validate(t.Context(), token)
			require.NoError(t, err)
			require.Equal(t, models.SessionRevoked, v.Status, "revoked session must never validate")
			require.Equal(t, user.ID, v.UserID, "owner must still be resolvable for containment policy")
		})
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			session, _, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			require.NoError(t, m.RevokeByID(t.Context(), session.ID))
			require.NoError(t, m.RevokeByID(t.Context(), session.ID), "second revoke is a no-op")
		})
	})

	t.Run("expired session is EXPIRED", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			_, token, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			// Move the manager clock past the expiry instead of sleeping
			m.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

			v, err := m.Validate(t.Context(), token)
			require.NoError(t, err)
			require.Equal(t, models.SessionExpired, v.Status, "expiry is checked on access, no sweep needed")
		})
	})

	t.Run("unknown session id is INVALID", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			v, err := m.Validate(t.Context(), uuid.NewString()+".whatever")

			require.NoError(t, err)
			require.Equal(t, models.SessionInvalid, v.Status)
			require.Equal(t, uuid.Nil, v.UserID, "no row, no resolvable owner")
		})
	})

	t.Run("wrong secret is INVALID", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			session, _, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			v, err := m.Validate(t.Context(), session.ID.String()+".forged-secret")

			require.NoError(t, err)
			require.Equal(t, models.SessionInvalid, v.Status)
			require.Equal(t, user.ID, v.UserID, "owner resolved, caller may contain")
		})
	})

	t.Run("malformed token is INVALID", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			for _, token := range []string{"", "garbage", "no-separator-here"} {
				v, err := m.Validate(t.Context(), token)

				require.NoError(t, err, "malformed input must not escalate to an error")
				require.Equal(t, models.SessionInvalid, v.Status)
			}
		})
	})

	t.Run("rotation is single use", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			session, token, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			previous, next, newToken, err := m.Rotate(t.Context(), token, meta)

			require.NoError(t, err)
			require.Equal(t, session.ID, previous.ID)
			require.NotNil(t, previous.RevokedAt, "old row must be revoked")
			require.NotEqual(t, session.ID, next.ID, "rotation creates a brand new row")
			require.NotEqual(t, token, newToken)

			oldV, err := m.Validate(t.Context(), token)
			require.NoError(t, err)
			require.Equal(t, models.SessionRevoked, oldV.Status, "original token is dead after rotation")

			newV, err := m.Validate(t.Context(), newToken)
			require.NoError(t, err)
			require.Equal(t, models.SessionValid, newV.Status, "issued token is live")
		})
	})

	t.Run("rotate rejects revoked token", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			session, token, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)
			require.NoError(t, m.RevokeByID(t.Context(), session.ID))

			_, _, _, err = m.Rotate(t.Context(), token, meta)

			assert.ErrorIs(t, err, apperrors.ErrSessionRevoked)
		})
	})

	t.Run("rotate rejects expired token", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			_, token, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			m.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

			_, _, _, err = m.Rotate(t.Context(), token, meta)

			assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
		})
	})

	t.Run("rotate rejects malformed and unknown tokens", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			_, _, _, err := m.Rotate(t.Context(), "garbage", meta)
			assert.ErrorIs(t, err, apperrors.ErrSessionInvalid)

			_, _, _, err = m.Rotate(t.Context(), uuid.NewString()+".secret", meta)
			assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

			session, _, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)
			_, _, _, err = m.Rotate(t.Context(), session.ID.String()+".forged", meta)
			assert.ErrorIs(t, err, apperrors.ErrSessionInvalid)
		})
	})

	t.Run("revoke all for user", func(t *testing.T) {
		withTx(t, func(tx pgx.Tx, m *Manager, user models.User) {
			_, token1, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)
			_, token2, err := m.Create(t.Context(), user.ID, meta)
			require.NoError(t, err)

			count, err := m.RevokeAllForUser(t.Context(), user.ID)

			require.NoError(t, err)
			require.Equal(t, int64(2), count)

			for _, token := range []string{token1, token2} {
				v, err := m.Validate(t.Context(), token)
				require.NoError(t, err)
				require.Equal(t, models.SessionRevoked, v.Status)
			}
		})
	})
}
