package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/label-ledger/internal/auth"
)

const testSecret = "middleware-secret"

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := auth.GenerateToken(userID, role, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuth(t *testing.T) {
	userID := uuid.New()

	var gotID uuid.UUID
	var gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = auth.UserIDFromContext(r.Context())
		gotRole = auth.RoleFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := Auth(testSecret)(next)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", bearer(t, userID, auth.RoleArtist), http.StatusNoContent},
		{"missing header", "", http.StatusUnauthorized},
		{"lowercase scheme", "bearer " + strings.TrimPrefix(bearer(t, userID, auth.RoleArtist), "Bearer "), http.StatusNoContent},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"scheme only", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/balance", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}

	assert.Equal(t, userID, gotID)
	assert.Equal(t, auth.RoleArtist, gotRole)
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Auth(testSecret)(RequireRole(auth.RoleAdmin, auth.RoleOwner)(ok))

	tests := []struct {
		role       string
		wantStatus int
	}{
		{auth.RoleAdmin, http.StatusOK},
		{auth.RoleOwner, http.StatusOK},
		{auth.RoleArtist, http.StatusForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/withdrawals", nil)
			req.Header.Set("Authorization", bearer(t, uuid.New(), tc.role))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.wantStatus, rr.Code)
		})
	}
}
