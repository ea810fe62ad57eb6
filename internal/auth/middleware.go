package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
)

// IsAdmin lets the request through only with a valid admin bearer token.
func IsAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := extractClaims(r)
		if err != nil {
			if errors.Is(err, ErrSecretNotConfigured) {
				log.Warn("Admin request rejected, no admin secret configured", "path", r.URL.Path)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if claims["role"] != RoleAdmin {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractClaims(r *http.Request) (map[string]any, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errors.New("missing or malformed Authorization header")
	}
	return ValidateJWT(strings.TrimPrefix(authHeader, "Bearer "))
}
