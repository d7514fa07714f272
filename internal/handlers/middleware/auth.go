package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nkiryanov/authgate/internal/handlers/authctx"
	"github.com/nkiryanov/authgate/internal/handlers/render"
	"github.com/nkiryanov/authgate/internal/models"
)

const authScheme = "Bearer"

type sessionValidator interface {
	Validate(ctx context.Context, access string) (models.AuthClaims, error)
}

// AuthMiddleware validates the bearer access token and puts its claims
// into the request context. Validation is stateless, no store is touched
func AuthMiddleware(v sessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access, ok := bearerToken(r)
			if !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.Validate(r.Context(), access)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authctx.NewContext(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, authScheme) || token == "" {
		return "", false
	}
	return token, true
}
