package middleware_test

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IANDYI/health-markers-service/internal/adapters/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

func createTestToken(t *testing.T, privateKey *rsa.PrivateKey, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tokenString, err := token.SignedString(privateKey)
	require.NoError(t, err)
	return tokenString
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":        "user123",
		"role":       "ADMIN",
		"exp":        time.Now().Add(time.Hour).Unix(),
		"jti":        "test-jti-123",
		"email":      "nurse@example.com",
		"first_name": "Amal",
		"last_name":  "Haddad",
	}
}

func TestNewAuthMiddleware(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	assert.NotNil(t, mw)
	assert.True(t, mw.Enabled())
}

func TestAuthMiddleware_GetClaimsFromCacheOrParse_ValidToken(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	tokenString := createTestToken(t, privateKey, validClaims())

	resultClaims, jti, err := mw.GetClaimsFromCacheOrParse(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "test-jti-123", jti)
	assert.Equal(t, "user123", resultClaims["sub"])
	assert.Equal(t, "ADMIN", resultClaims["role"])
}

func TestAuthMiddleware_GetClaimsFromCacheOrParse_CacheHit(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	tokenString := createTestToken(t, privateKey, validClaims())

	// First call - should parse and cache
	claims1, jti1, err1 := mw.GetClaimsFromCacheOrParse(tokenString)
	require.NoError(t, err1)

	// Second call - should hit cache
	claims2, jti2, err2 := mw.GetClaimsFromCacheOrParse(tokenString)
	require.NoError(t, err2)

	assert.Equal(t, jti1, jti2)
	assert.Equal(t, claims1["sub"], claims2["sub"])
}

func TestAuthMiddleware_GetClaimsFromCacheOrParse_ExpiredToken(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	claims := validClaims()
	claims["exp"] = time.Now().Add(-time.Hour).Unix()
	tokenString := createTestToken(t, privateKey, claims)

	_, _, err := mw.GetClaimsFromCacheOrParse(tokenString)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestAuthMiddleware_GetClaimsFromCacheOrParse_WrongKey(t *testing.T) {
	otherKey, _ := generateTestKeyPair(t)
	_, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	_, _, err := mw.GetClaimsFromCacheOrParse(createTestToken(t, otherKey, validClaims()))
	assert.Error(t, err)
}

func TestAuthMiddleware_GetClaimsFromCacheOrParse_InvalidToken(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	_, _, err := mw.GetClaimsFromCacheOrParse("invalid-token")
	assert.Error(t, err)
}

func TestAuthMiddleware_Identify(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	identity, jti, err := mw.Identify(createTestToken(t, privateKey, validClaims()))
	require.NoError(t, err)

	assert.Equal(t, "test-jti-123", jti)
	assert.Equal(t, "user123", identity.UserID)
	assert.Equal(t, "ADMIN", identity.Role)
	assert.Equal(t, "nurse@example.com", identity.Email)
	assert.Equal(t, "Amal Haddad", identity.Name)
}

func TestAuthMiddleware_Identify_MissingRole(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	claims := validClaims()
	delete(claims, "role")
	claims["jti"] = "no-role-jti"

	_, _, err := mw.Identify(createTestToken(t, privateKey, claims))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing role")
}

func TestAuthMiddleware_RequireAuth(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	tokenString := createTestToken(t, privateKey, validClaims())

	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "user123", userID)
		assert.True(t, middleware.IsAdmin(r.Context()))
		token, _ := middleware.GetToken(r.Context())
		assert.Equal(t, tokenString, token)
		name, _ := middleware.GetUserName(r.Context())
		assert.Equal(t, "Amal Haddad", name)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/predictions", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	handler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_RequireAuth_Rejections(t *testing.T) {
	privateKey, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)
	defer mw.Stop()

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	tests := []struct {
		name   string
		header string
		body   string
	}{
		{"missing header", "", "missing authorization header"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", "invalid authorization header"},
		{"garbage token", "Bearer not-a-jwt", "invalid or expired token"},
		{"expired token", "Bearer " + createTestToken(t, privateKey, expired), "invalid or expired token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/predictions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.False(t, called)
		})
	}
}

func TestAuthMiddleware_Disabled_UsesAnonymousIdentity(t *testing.T) {
	mw := middleware.NewAuthMiddleware(nil)
	defer mw.Stop()

	assert.False(t, mw.Enabled())

	handler := mw.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := middleware.GetUserID(r.Context())
		role, _ := middleware.GetRole(r.Context())
		assert.Equal(t, middleware.AnonymousUserID, userID)
		assert.Equal(t, middleware.RoleAnonymous, role)
		assert.False(t, middleware.IsAdmin(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/predict", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)

	_, _, err := mw.GetClaimsFromCacheOrParse("anything")
	assert.Error(t, err)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"Bearer   abc", "abc"},
		{"Token abc", ""},
		{"", ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, middleware.ExtractBearerToken(req), "header %q", tt.header)
	}
}

func TestAuthMiddleware_StopIsIdempotent(t *testing.T) {
	_, publicKey := generateTestKeyPair(t)
	mw := middleware.NewAuthMiddleware(publicKey)

	assert.NotPanics(t, func() {
		mw.Stop()
		mw.Stop()
	})
}
