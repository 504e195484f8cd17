package businessflow

import (
	"context"
	"testing"
	"time"

	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthFlow(t *testing.T, env *testEnv) AuthFlow {
	t.Helper()

	tokenService, err := services.NewTokenService(
		15*time.Minute, "susanoo-test", "susanoo-test", false, "", "",
		"test-secret-key-for-jwt-signing-32-chars",
	)
	require.NoError(t, err)
	return NewAuthFlow(env.storeRepo, env.auditRepo, tokenService, env.db)
}

func TestIssueTokenHappyPath(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "correct-api-key-0123456789")
	flow := newTestAuthFlow(t, env)

	result, err := flow.IssueToken(context.Background(), &dto.TokenRequest{
		StoreID: store.UUID.String(),
		APIKey:  "correct-api-key-0123456789",
	}, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.Greater(t, result.ExpiresIn, 0)
	assert.Contains(t, result.Permissions, utils.PermissionManagePayouts)
}

func TestIssueTokenWrongKey(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "correct-api-key-0123456789")
	flow := newTestAuthFlow(t, env)

	_, err := flow.IssueToken(context.Background(), &dto.TokenRequest{
		StoreID: store.UUID.String(),
		APIKey:  "wrong-api-key-9876543210",
	}, nil)
	assert.True(t, IsInvalidAPIKey(err))
}

func TestIssueTokenUnknownStore(t *testing.T) {
	env := newTestEnv(t)
	flow := newTestAuthFlow(t, env)

	_, err := flow.IssueToken(context.Background(), &dto.TokenRequest{
		StoreID: "b9c3a1de-0000-4000-8000-000000000000",
		APIKey:  "correct-api-key-0123456789",
	}, nil)
	assert.True(t, IsStoreNotFound(err))
}

func TestIssueTokenInactiveStore(t *testing.T) {
	env := newTestEnv(t)
	flow := newTestAuthFlow(t, env)

	hash, err := bcrypt.GenerateFromPassword([]byte("correct-api-key-0123456789"), bcrypt.MinCost)
	require.NoError(t, err)

	store := env.createStore(t, "placeholder")
	store.APIKeyHash = string(hash)
	store.IsActive = utils.ToPtr(false)
	require.NoError(t, env.db.Save(store).Error)

	_, err = flow.IssueToken(context.Background(), &dto.TokenRequest{
		StoreID: store.UUID.String(),
		APIKey:  "correct-api-key-0123456789",
	}, nil)
	assert.True(t, IsStoreInactive(err))
}
