package handlers

import (
	"net/http"
	"strings"
	"time"
)

const refreshCookieName = "refreshToken"

// refreshCookiePath limits the cookie to the auth endpoints so the browser
// never attaches the refresh token to regular API calls.
const refreshCookiePath = "/api/auth"

// CookiePolicy shapes the refresh cookie per environment.
// Production serves the SPA from another origin, so the cookie must be
// Secure + SameSite=None there. Dev runs over plain http and uses Lax.
type CookiePolicy struct {
	Production bool
	Domain     string
}

func (p CookiePolicy) refreshCookie(token string, maxAge time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		Domain:   p.Domain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   p.Production,
		SameSite: http.SameSiteLaxMode,
	}
	if p.Production {
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

func (p CookiePolicy) setRefresh(w http.ResponseWriter, token string, maxAge time.Duration) {
	http.SetCookie(w, p.refreshCookie(token, maxAge))
}

func (p CookiePolicy) clearRefresh(w http.ResponseWriter) {
	c := p.refreshCookie("", 0)
	c.MaxAge = -1
	http.SetCookie(w, c)
}

// OriginPolicy is the CSRF guard for the cookie carrying endpoints.
// Browsers send Origin on cross site POSTs, so in production any request
// with an Origin outside the allow-list is rejected. Requests without the
// header (curl, native clients, same origin GETs) pass. Dev skips the
// check entirely.
type OriginPolicy struct {
	Enforce bool
	Allowed []string
}

// NewOriginPolicy builds the allow-list from fixed known origins plus a
// comma-separated override from config.
func NewOriginPolicy(enforce bool, extraOrigins string) OriginPolicy {
	allowed := []string{
		"https://app.sessiond.dev",
		"https://sessiond.dev",
	}
	for _, o := range strings.Split(extraOrigins, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			allowed = append(allowed, o)
		}
	}
	return OriginPolicy{Enforce: enforce, Allowed: allowed}
}

func (p OriginPolicy) Check(r *http.Request) bool {
	if !p.Enforce {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range p.Allowed {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}
