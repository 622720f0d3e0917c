package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sessiond/internal/handlers/middleware"
	"sessiond/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	cookies CookiePolicy,
	origins OriginPolicy,
	l logger.Logger,
) http.Handler {
	auth := NewAuthHandler(authService, cookies, origins, l)

	authMiddleware := middleware.AuthMiddleware(authService)
	withAuth := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(h)
	}

	apiauth := http.NewServeMux()

	apiauth.HandleFunc("POST /register", auth.Register)
	apiauth.HandleFunc("POST /login", auth.Login)
	apiauth.HandleFunc("POST /google", auth.LoginGoogle)
	apiauth.HandleFunc("POST /logout", auth.Logout)
	apiauth.HandleFunc("POST /refresh", auth.Refresh)

	apiauth.Handle("PATCH /password", withAuth(auth.ChangePassword))
	apiauth.Handle("GET /me", withAuth(auth.Me))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))
	root.Handle("GET /metrics", promhttp.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(l),
		middleware.MetricsMiddleware(),
	)

	return handler
}
