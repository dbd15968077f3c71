package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"marketplace/internal/market"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, account market.Owner) (bool, error)
}

// RequireAdmin rejects requests whose owner is not a marketplace admin.
func RequireAdmin(adminStore AdminStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, ok := OwnerFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			isAdmin, err := adminStore.IsAdmin(r.Context(), owner)
			if err != nil {
				http.Error(w, "unable to verify admin", http.StatusInternalServerError)
				return
			}
			if !isAdmin {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": string(market.ErrUnauthorized)})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
