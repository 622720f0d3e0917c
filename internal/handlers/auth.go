package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"sessiond/internal/apperrors"
	"sessiond/internal/handlers/render"
	"sessiond/internal/handlers/userctx"
	"sessiond/internal/logger"
	"sessiond/internal/metrics"
	"sessiond/internal/models"
	"sessiond/internal/service/auth/sessions"
)

// Stable machine readable error codes for the auth endpoints.
// The refresh codes INVALID, EXPIRED and REVOKED mirror the session status.
const (
	codeRefreshTokenMissing = "REFRESH_TOKEN_MISSING"
	codeCSRFCheckFailed     = "CSRF_CHECK_FAILED"
	codeUserNotFound        = "USER_NOT_FOUND"
)

type authService interface {
	Register(ctx context.Context, email string, password string, meta sessions.Meta) (models.User, models.TokenPair, error)
	Login(ctx context.Context, email string, password string, meta sessions.Meta) (models.User, models.TokenPair, error)
	LoginGoogle(ctx context.Context, idToken string, meta sessions.Meta) (models.User, models.TokenPair, error)
	ValidateRefresh(ctx context.Context, token string) (sessions.Validation, error)
	RotateRefresh(ctx context.Context, token string, user models.User, meta sessions.Meta) (models.TokenPair, error)
	Logout(ctx context.Context, token string) error
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword string, newPassword string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	UserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	SessionTTL() time.Duration

	// Get request and return user if it authenticated or error
	Auth(ctx context.Context, r *http.Request) (models.User, error)
}

type AuthHandler struct {
	auth    authService
	cookies CookiePolicy
	origins OriginPolicy
	logger  logger.Logger
}

func NewAuthHandler(auth authService, cookies CookiePolicy, origins OriginPolicy, l logger.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    auth,
		cookies: cookies,
		origins: origins,
		logger:  l,
	}
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type authResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
}

func toUserResponse(u models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	type RegisterRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}

	data, err := render.BindAndValidate[RegisterRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.auth.Register(r.Context(), data.Email, data.Password, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			h.logger.Error("register failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.cookies.setRefresh(w, pair.Refresh.Value, h.auth.SessionTTL())
	render.JSONWithStatus(w, authResponse{User: toUserResponse(user), AccessToken: pair.Access.Value}, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	data, err := render.BindAndValidate[LoginRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.auth.Login(r.Context(), data.Email, data.Password, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
		default:
			h.logger.Error("login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.cookies.setRefresh(w, pair.Refresh.Value, h.auth.SessionTTL())
	render.JSON(w, authResponse{User: toUserResponse(user), AccessToken: pair.Access.Value})
}

func (h *AuthHandler) LoginGoogle(w http.ResponseWriter, r *http.Request) {
	type GoogleLoginRequest struct {
		IDToken string `json:"idToken" validate:"required"`
	}

	data, err := render.BindAndValidate[GoogleLoginRequest](w, r)
	if err != nil {
		return
	}

	user, pair, err := h.auth.LoginGoogle(r.Context(), data.IDToken, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrGoogleTokenInvalid):
			render.ServiceError(w, "Google token rejected", http.StatusUnauthorized)
		default:
			h.logger.Error("google login failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.cookies.setRefresh(w, pair.Refresh.Value, h.auth.SessionTTL())
	render.JSON(w, authResponse{User: toUserResponse(user), AccessToken: pair.Access.Value})
}

// Refresh rotates the refresh session presented in the cookie.
//
// Order matters here: the cookie must exist before anything else is
// checked, the CSRF guard runs before the token touches storage, and a
// revoked token (or an invalid one that still names its owner) revokes
// every session of that user before the client hears anything back.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	type RefreshSuccessResponse struct {
		AccessToken string `json:"accessToken"`
	}

	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		render.ServiceErrorCode(w, codeRefreshTokenMissing, "Refresh token missing", http.StatusUnauthorized)
		return
	}

	if !h.origins.Check(r) {
		render.ServiceErrorCode(w, codeCSRFCheckFailed, "Origin not allowed", http.StatusForbidden)
		return
	}

	v, err := h.auth.ValidateRefresh(r.Context(), cookie.Value)
	if err != nil {
		h.logger.Error("refresh validation failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if v.Status != models.SessionValid {
		h.containBreach(r.Context(), v)
		h.cookies.clearRefresh(w)
		render.ServiceErrorCode(w, string(v.Status), "Refresh session is not usable", http.StatusUnauthorized)
		return
	}

	user, err := h.auth.UserByID(r.Context(), v.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			h.cookies.clearRefresh(w)
			render.ServiceErrorCode(w, codeUserNotFound, "User not found", http.StatusNotFound)
			return
		}
		h.logger.Error("refresh user lookup failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pair, err := h.auth.RotateRefresh(r.Context(), cookie.Value, user, requestMeta(r))
	if err != nil {
		// Lost the race against a concurrent rotation of the same token.
		// The token is spent either way, the client must log in again.
		if errors.Is(err, apperrors.ErrSessionRevoked) {
			h.cookies.clearRefresh(w)
			render.ServiceErrorCode(w, string(models.SessionRevoked), "Refresh session is not usable", http.StatusUnauthorized)
			return
		}
		h.logger.Error("refresh rotation failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.cookies.setRefresh(w, pair.Refresh.Value, h.auth.SessionTTL())
	render.JSON(w, RefreshSuccessResponse{AccessToken: pair.Access.Value})
}

// containBreach revokes every session of the token's owner when the
// presented token looks like a replay: revoked, or invalid but still
// naming a stored session. Tokens that never resolve to a user are left
// alone, there is nothing to contain.
func (h *AuthHandler) containBreach(ctx context.Context, v sessions.Validation) {
	if v.UserID == uuid.Nil {
		return
	}
	if v.Status != models.SessionRevoked && v.Status != models.SessionInvalid {
		return
	}

	metrics.ReuseDetected.Inc()

	count, err := h.auth.RevokeAllForUser(ctx, v.UserID)
	if err != nil {
		h.logger.Error("containment revoke failed", "user_id", v.UserID, "error", err)
		return
	}
	h.logger.Warn("refresh token reuse detected, revoked all user sessions",
		"user_id", v.UserID,
		"session_id", v.SessionID,
		"status", v.Status,
		"revoked", count,
	)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	type LogoutSuccessResponse struct {
		Message string `json:"message"`
	}

	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Error("logout failed", "error", err)
		}
	}

	h.cookies.clearRefresh(w)
	render.JSON(w, LogoutSuccessResponse{Message: "Logged out"})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	type ChangePasswordRequest struct {
		CurrentPassword string `json:"currentPassword" validate:"required"`
		NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
	}
	type ChangePasswordSuccessResponse struct {
		Message string `json:"message"`
	}

	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	data, err := render.BindAndValidate[ChangePasswordRequest](w, r)
	if err != nil {
		return
	}

	err = h.auth.ChangePassword(r.Context(), user.ID, data.CurrentPassword, data.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "Current password is incorrect", http.StatusUnauthorized)
		default:
			h.logger.Error("password change failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	// Every session is revoked, including the one behind this cookie
	h.cookies.clearRefresh(w)
	render.JSON(w, ChangePasswordSuccessResponse{Message: "Password changed"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	render.JSON(w, toUserResponse(user))
}

// requestMeta captures where the session is created from
func requestMeta(r *http.Request) sessions.Meta {
	ip := r.Header.Get("X-Forwarded-For")
	if ip != "" {
		// First hop is the client
		ip, _, _ = strings.Cut(ip, ",")
		ip = strings.TrimSpace(ip)
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}

	return sessions.Meta{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
