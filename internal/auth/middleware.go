package auth

import (
	"encoding/json"
	"net/http"
	"time"
)

// ChiMiddleware creates a chi middleware that requires a valid bearer token
// and stores the caller's identity in the request context.
func (c *JWTConfig) ChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := ExtractTokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeAuthError(w, "missing_token", "Authorization token is required")
				return
			}

			claims, err := c.ValidateToken(tokenString)
			if err != nil {
				writeAuthError(w, "invalid_token", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)

	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":     message,
		"code":      code,
		"timestamp": time.Now().UTC(),
	})
}
