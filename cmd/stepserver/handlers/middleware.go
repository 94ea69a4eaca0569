package handlers

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hairizuan-noorazman/browser-steps/logger"
)

// AuthMiddleware checks a Bearer token against a bcrypt hash.
type AuthMiddleware struct {
	tokenHash []byte
	logger    logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(tokenHash string, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokenHash: []byte(tokenHash),
		logger:    log,
	}
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		rawToken := strings.TrimPrefix(authHeader, "Bearer ")

		if err := bcrypt.CompareHashAndPassword(m.tokenHash, []byte(rawToken)); err != nil {
			m.logger.Warn(r.Context(), "invalid bearer token", map[string]interface{}{
				"path": r.URL.Path,
			})
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
