package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/prudhvinik1/storefront/internal/services"
)

type authContext struct {
	token  string
	claims *services.TokenClaims
}

// Authenticated rejects requests without a valid, unrevoked bearer token and
// stores the caller's claims in the request context.
func (h *Handler) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(AuthorizationKey)
		token, ok := strings.CutPrefix(header, BearerPrefix)
		if !ok || token == "" {
			h.writeError(w, r, services.ErrInvalidToken)
			return
		}

		claims, err := h.auth.Authorize(r.Context(), token)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, authContext{token: token, claims: claims})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getAuth(ctx context.Context) (authContext, bool) {
	val, ok := ctx.Value(claimsKey).(authContext)
	return val, ok
}
