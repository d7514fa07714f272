// Package authctx carries authenticated claims through request context
package authctx

import (
	"context"

	"github.com/nkiryanov/authgate/internal/models"
)

type ctxKey string

const claimsKey ctxKey = "claims"

func NewContext(ctx context.Context, claims models.AuthClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func FromContext(ctx context.Context) (models.AuthClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(models.AuthClaims)
	return claims, ok
}
