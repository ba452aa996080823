package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/jredh-dev/shroud/services/secure/internal/token"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsContextKey stores the verified token claims in request context.
	ClaimsContextKey contextKey = "claims"
)

// AuthMiddleware requires a valid Bearer token. It runs behind the secure
// layer, which puts the reconstructed credential into Authorization.
func AuthMiddleware(tokens *token.Service, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				jsonError(w, "Unauthorized: Missing token", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("token rejected")
				jsonError(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts the verified claims from request context.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*token.Claims)
	return claims, ok && claims != nil
}

func bearer(r *http.Request) (string, bool) {
	v, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	v = strings.TrimSpace(v)
	return v, found && v != ""
}
