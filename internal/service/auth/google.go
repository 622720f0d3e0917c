package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sessiond/internal/apperrors"
)

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// TokenVerifier checks a Google ID token and returns the e-mail it asserts
type TokenVerifier interface {
	Verify(ctx context.Context, idToken string) (email string, err error)
}

// GoogleVerifier validates ID tokens against the Google tokeninfo endpoint
type GoogleVerifier struct {
	// OAuth client id the token audience must match
	ClientID string

	// Endpoint override, used by tests. Empty means the real Google endpoint
	Endpoint string

	client *http.Client
}

func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		ClientID: clientID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *GoogleVerifier) Verify(ctx context.Context, idToken string) (string, error) {
	endpoint := g.Endpoint
	if endpoint == "" {
		endpoint = googleTokenInfoURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?id_token="+url.QueryEscape(idToken), nil)
	if err != nil {
		return "", fmt.Errorf("error while building tokeninfo request. Err: %w", err)
	}

	client := g.client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error while calling tokeninfo. Err: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.ErrGoogleTokenInvalid
	}

	var info struct {
		Audience      string `json:"aud"`
		Email         string `json:"email"`
		EmailVerified string `json:"email_verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("%w: bad tokeninfo response", apperrors.ErrGoogleTokenInvalid)
	}

	if info.Audience != g.ClientID || info.EmailVerified != "true" || info.Email == "" {
		return "", apperrors.ErrGoogleTokenInvalid
	}

	return info.Email, nil
}
