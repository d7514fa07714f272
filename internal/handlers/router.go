package handlers

import (
	"net/http"

	"github.com/nkiryanov/authgate/internal/handlers/middleware"
	"github.com/nkiryanov/authgate/internal/logger"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(authService authService, userService userService, l logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	authHandler := NewAuth(authService, userService, l)

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", authHandler.Handler(withAuth)))

	return chain(root,
		middleware.LoggerMiddleware(l),
	)
}
