package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessiond/internal/apperrors"
)

func Test_GoogleVerifier(t *testing.T) {
	// Fake tokeninfo endpoint: answers per id_token value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id_token") {
		case "good-token":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"aud":            "client-id",
				"email":          "nk@example.com",
				"email_verified": "true",
			})
		case "wrong-audience":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"aud":            "someone-else",
				"email":          "nk@example.com",
				"email_verified": "true",
			})
		case "unverified-email":
			_ = json.NewEncoder(w).Encode(map[string]string{
				"aud":            "client-id",
				"email":          "nk@example.com",
				"email_verified": "false",
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	verifier := NewGoogleVerifier("client-id")
	verifier.Endpoint = srv.URL

	t.Run("valid token", func(t *testing.T) {
		email, err := verifier.Verify(t.Context(), "good-token")

		require.NoError(t, err)
		require.Equal(t, "nk@example.com", email)
	})

	t.Run("rejected by google", func(t *testing.T) {
		_, err := verifier.Verify(t.Context(), "bad-token")

		assert.ErrorIs(t, err, apperrors.ErrGoogleTokenInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := verifier.Verify(t.Context(), "wrong-audience")

		assert.ErrorIs(t, err, apperrors.ErrGoogleTokenInvalid)
	})

	t.Run("unverified email", func(t *testing.T) {
		_, err := verifier.Verify(t.Context(), "unverified-email")

		assert.ErrorIs(t, err, apperrors.ErrGoogleTokenInvalid)
	})
}
