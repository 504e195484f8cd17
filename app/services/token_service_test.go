// Package services provides external service integrations and technical concerns like rates, rails and tokens
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestTokenService creates a token service for testing with symmetric key
func createTestTokenService() (TokenService, error) {
	return NewTokenService(
		15*time.Minute,
		"test-issuer",
		"test-audience",
		false, // useRSAKeys
		"",    // privateKeyPEM
		"",    // publicKeyPEM
		"test-secret-key-for-jwt-signing-32-chars", // secretKey
	)
}

func TestNewTokenService(t *testing.T) {
	tests := []struct {
		name        string
		useRSAKeys  bool
		secretKey   string
		expectError bool
	}{
		{
			name:        "valid symmetric key configuration",
			secretKey:   "test-secret-key-for-jwt-signing-32-chars",
			expectError: false,
		},
		{
			name:        "missing secret key",
			secretKey:   "",
			expectError: true,
		},
		{
			name:        "rsa without keys",
			useRSAKeys:  true,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, err := NewTokenService(
				15*time.Minute,
				"test-issuer",
				"test-audience",
				tt.useRSAKeys,
				"",
				"",
				tt.secretKey,
			)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, service)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, service)
			}
		})
	}
}

func TestGenerateAndValidateStoreToken(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	permissions := []string{"payouts:view", "payouts:manage"}
	token, expiresIn, err := service.GenerateStoreToken(42, "10a0e8f4-4f1e-4f5a-8d2b-2f9aafba2b6e", permissions)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, int((15 * time.Minute).Seconds()), expiresIn)

	claims, err := service.ValidateStoreToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.StoreID)
	assert.Equal(t, "10a0e8f4-4f1e-4f5a-8d2b-2f9aafba2b6e", claims.StoreUUID)
	assert.Equal(t, permissions, claims.Permissions)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.HasPermission("payouts:view"))
	assert.False(t, claims.HasPermission("payouts:create-pull-payments"))
}

func TestValidateStoreTokenRejectsGarbage(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	_, err = service.ValidateStoreToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateStoreTokenRejectsWrongKey(t *testing.T) {
	service, err := createTestTokenService()
	require.NoError(t, err)

	other, err := NewTokenService(
		15*time.Minute,
		"test-issuer",
		"test-audience",
		false,
		"",
		"",
		"a-different-secret-key-for-jwt-signing00",
	)
	require.NoError(t, err)

	token, _, err := other.GenerateStoreToken(1, "10a0e8f4-4f1e-4f5a-8d2b-2f9aafba2b6e", nil)
	require.NoError(t, err)

	_, err = service.ValidateStoreToken(token)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestValidateStoreTokenExpired(t *testing.T) {
	service, err := NewTokenService(
		-1*time.Minute,
		"test-issuer",
		"test-audience",
		false,
		"",
		"",
		"test-secret-key-for-jwt-signing-32-chars",
	)
	require.NoError(t, err)

	token, _, err := service.GenerateStoreToken(1, "10a0e8f4-4f1e-4f5a-8d2b-2f9aafba2b6e", nil)
	require.NoError(t, err)

	_, err = service.ValidateStoreToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
