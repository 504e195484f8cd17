// Package businessflow contains the core business logic and use cases for payout workflows
package businessflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/repository"
	"github.com/mkhoshpour/susanoo/utils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthFlow exchanges store API keys for access tokens
type AuthFlow interface {
	IssueToken(ctx context.Context, req *dto.TokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error)
}

// AuthFlowImpl implements AuthFlow
type AuthFlowImpl struct {
	storeRepo    repository.StoreRepository
	auditRepo    repository.AuditLogRepository
	tokenService services.TokenService
	db           *gorm.DB
}

// NewAuthFlow creates a new auth flow
func NewAuthFlow(
	storeRepo repository.StoreRepository,
	auditRepo repository.AuditLogRepository,
	tokenService services.TokenService,
	db *gorm.DB,
) AuthFlow {
	return &AuthFlowImpl{
		storeRepo:    storeRepo,
		auditRepo:    auditRepo,
		tokenService: tokenService,
		db:           db,
	}
}

// storePermissions is the permission set granted to a store's own tokens
var storePermissions = []string{
	utils.PermissionCreatePullPayments,
	utils.PermissionManagePayouts,
	utils.PermissionViewPayouts,
}

// IssueToken validates the store API key and mints a short-lived access token
func (f *AuthFlowImpl) IssueToken(ctx context.Context, req *dto.TokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error) {
	storeUUID, err := uuid.Parse(req.StoreID)
	if err != nil {
		return nil, ErrStoreNotFound
	}

	store, err := f.storeRepo.ByUUID(ctx, storeUUID)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	if store == nil {
		return nil, ErrStoreNotFound
	}
	if !utils.IsTrue(store.IsActive) {
		return nil, ErrStoreInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(store.APIKeyHash), []byte(req.APIKey)); err != nil {
		errMsg := "API key mismatch"
		_ = createAuditLog(ctx, f.auditRepo, &store.ID, models.AuditActionTokenIssueFailed, errMsg, false, &errMsg, metadata)
		return nil, ErrInvalidAPIKey
	}

	token, expiresIn, err := f.tokenService.GenerateStoreToken(store.ID, store.UUID.String(), storePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	_ = createAuditLog(ctx, f.auditRepo, &store.ID, models.AuditActionTokenIssued, "store token issued", true, nil, metadata)

	return &dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Permissions: storePermissions,
	}, nil
}
