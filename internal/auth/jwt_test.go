package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing-purposes"

func newTestJWTService() *JWTService {
	return NewJWTService(testSecret, 15*time.Minute)
}

func TestJWTService_GenerateAccessToken_Success(t *testing.T) {
	service := newTestJWTService()

	token, expiresAt, err := service.GenerateAccessToken(42, "test@example.com", RoleCustomer)

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))
	assert.True(t, expiresAt.Before(time.Now().Add(16*time.Minute)))
}

func TestJWTService_ValidateAccessToken_Valid(t *testing.T) {
	service := newTestJWTService()

	token, _, err := service.GenerateAccessToken(42, "test@example.com", RoleAdmin)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(token)

	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.CustomerID)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "42", claims.Subject)
}

func TestJWTService_ValidateAccessToken_Expired(t *testing.T) {
	service := NewJWTService(testSecret, time.Millisecond)

	token, _, err := service.GenerateAccessToken(42, "", RoleCustomer)
	require.NoError(t, err)

	// Wait for token to expire
	time.Sleep(1100 * time.Millisecond)

	claims, err := service.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_Invalid(t *testing.T) {
	service := newTestJWTService()

	tests := []struct {
		name  string
		token string
	}{
		{"empty token", ""},
		{"random string", "not-a-valid-token"},
		{"malformed JWT", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := service.ValidateAccessToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestJWTService_ValidateAccessToken_WrongSignature(t *testing.T) {
	service1 := NewJWTService("secret-key-1-secret-key-1-secret-key-1", 15*time.Minute)
	service2 := NewJWTService("secret-key-2-secret-key-2-secret-key-2", 15*time.Minute)

	token, _, err := service1.GenerateAccessToken(42, "", RoleCustomer)
	require.NoError(t, err)

	claims, err := service2.ValidateAccessToken(token)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

func TestJWTService_ValidateAccessToken_WrongAlgorithm(t *testing.T) {
	service := newTestJWTService()

	// Create a token with a different algorithm (none)
	token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{CustomerID: 42})
	tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	claims, err := service.ValidateAccessToken(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, claims)
}

// ============================================
// IdentityVerifier Tests
// ============================================

func TestJWTService_Verify(t *testing.T) {
	service := newTestJWTService()
	token, _, err := service.GenerateAccessToken(7, "c@example.com", "")
	require.NoError(t, err)

	id, err := service.Verify(token)

	require.NoError(t, err)
	assert.Equal(t, int64(7), id.CustomerID)
	assert.Equal(t, "c@example.com", id.Email)
	assert.Equal(t, RoleCustomer, id.Role, "role defaults to customer")
}

func TestJWTService_Verify_MissingCustomerID(t *testing.T) {
	service := newTestJWTService()

	// A token signed with the right key but no customer_id claim.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "someone",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	tokenString, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	id, err := service.Verify(tokenString)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, id)
}

func TestJWTService_Verify_Invalid(t *testing.T) {
	id, err := newTestJWTService().Verify("garbage")

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, id)
}

func TestJWTService_GetExpiry(t *testing.T) {
	service := NewJWTService(testSecret, 30*time.Minute)
	assert.Equal(t, 30*time.Minute, service.GetAccessTokenExpiry())
}

var _ IdentityVerifier = (*JWTService)(nil)
