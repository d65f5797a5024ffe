package auth

import (
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestValidateToken_VerificationDisabled(t *testing.T) {
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	require.NoError(t, err)
	defer client.Close()

	projectID := uuid.New().String()
	tokenString := signTestToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "https://id.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ProjectID: projectID,
		Email:     "dev@example.com",
	})

	claims, err := client.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, projectID, claims.ProjectID)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestValidateToken_VerificationDisabled_Garbage(t *testing.T) {
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.ValidateToken("not-a-jwt")
	assert.Error(t, err)
}

func TestValidateToken_VerificationEnabled_RejectsNonRSAToken(t *testing.T) {
	client := &JWKSClient{
		endpoints: make(map[string]keyfunc.Keyfunc),
		config:    &JWKSConfig{EnableVerification: true},
	}

	tokenString := signTestToken(t, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://rogue.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		ProjectID: uuid.New().String(),
	})

	_, err := client.ValidateToken(tokenString)
	assert.Error(t, err)
}
