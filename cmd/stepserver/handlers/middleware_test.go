package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/hairizuan-noorazman/browser-steps/logger"
)

func TestAuthMiddleware(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := NewAuthMiddleware(string(hash), logger.NewTestLogger())

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{
			name:       "valid token passes",
			header:     "Bearer s3cret",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong token returns 401",
			header:     "Bearer guess",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing header returns 401",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic auth returns 401",
			header:     "Basic czNjcmV0",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/execute", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			mw.Handler(okHandler).ServeHTTP(w, req)
			assert.Equal(t, tc.wantStatus, w.Code)
		})
	}
}

func TestHashToken(t *testing.T) {
	hash, err := HashToken("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}
