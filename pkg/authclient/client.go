// Package authclient is an http client for services protected by short
// lived access tokens and a refresh cookie. On a 401 the client refreshes
// the access token and retries the request once. Concurrent requests that
// hit 401 at the same time share one in-flight refresh instead of racing
// each other for the single-use refresh token.
package authclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"golang.org/x/sync/singleflight"
)

type Config struct {
	// Base URL of the auth service, like "https://api.example.com"
	AuthBaseURL string

	// Client to perform requests with. When nil a client with a fresh
	// cookie jar is used. The jar must be present: the refresh token
	// lives in a cookie managed by the server.
	HTTPClient *http.Client
}

type Client struct {
	http    *http.Client
	refresh string

	mu     sync.RWMutex
	access string

	group singleflight.Group
}

func New(cfg Config) (*Client, error) {
	if cfg.AuthBaseURL == "" {
		return nil, fmt.Errorf("auth base url must be set")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("error while creating cookie jar. Err: %w", err)
		}
		httpClient = &http.Client{Jar: jar}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("error while creating cookie jar. Err: %w", err)
		}
		httpClient.Jar = jar
	}

	return &Client{
		http:    httpClient,
		refresh: cfg.AuthBaseURL + "/api/auth/refresh",
	}, nil
}

// SetAccessToken primes the client after login or register
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.access = token
	c.mu.Unlock()
}

// AccessToken returns the token currently used for requests
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

// Do performs the request with the current access token. On 401 the token
// is refreshed and the request retried once. Requests with a body must set
// GetBody (http.NewRequest does it for common body types) or the retry is
// skipped.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	token := c.AccessToken()

	resp, err := c.do(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return resp, nil // nolint:nilerr // original response is still the answer
	}

	fresh, err := c.refreshAccess(req.Context(), token)
	if err != nil {
		return resp, nil // nolint:nilerr
	}
	_ = resp.Body.Close()

	return c.do(retry, fresh)
}

func (c *Client) do(req *http.Request, token string) (*http.Response, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.http.Do(req)
}

// refreshAccess swaps the refresh cookie for a new access token. The stale
// token keys the flight so every request that failed with it shares one
// refresh, while a request failing with an already renewed token starts a
// new one.
func (c *Client) refreshAccess(ctx context.Context, staleToken string) (string, error) {
	token, err, _ := c.group.Do(staleToken, func() (any, error) {
		current := c.AccessToken()
		if current != staleToken && current != "" {
			// Someone already refreshed while we were waiting
			return current, nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refresh, nil)
		if err != nil {
			return "", err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return "", err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
		}

		var body struct {
			AccessToken string `json:"accessToken"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return "", fmt.Errorf("error while decoding refresh response. Err: %w", err)
		}

		c.SetAccessToken(body.AccessToken)
		return body.AccessToken, nil
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	retry := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return retry, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body is not replayable")
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	retry.Body = body
	return retry, nil
}
