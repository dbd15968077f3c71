package middleware

import (
	"context"
	"net/http"
	"strings"

	"marketplace/internal/auth"
	"marketplace/internal/market"
)

type contextKey string

const ownerKey contextKey = "owner"

func OwnerFromContext(ctx context.Context) (market.Owner, bool) {
	owner, ok := ctx.Value(ownerKey).(market.Owner)
	return owner, ok && owner != ""
}

// WithOwner returns ctx carrying owner, as Auth does after verifying a token.
func WithOwner(ctx context.Context, owner market.Owner) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// Auth requires a bearer token. Browsers cannot set headers on websocket upgrades, so
// a token query parameter is accepted as well.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := WithOwner(r.Context(), market.Owner(claims.Owner))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		token := r.URL.Query().Get("token")
		return token, token != ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
