package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrSessionNotFound = errors.New("refresh session not found")
	ErrSessionInvalid  = errors.New("refresh token is invalid")
	ErrSessionRevoked  = errors.New("refresh session is revoked")
	ErrSessionExpired  = errors.New("refresh session is expired")

	ErrAccessTokenInvalid = errors.New("access token is invalid")
	ErrGoogleTokenInvalid = errors.New("google id token is invalid")
)
