// Package businessflow contains the core business logic and use cases for payout workflows
package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/repository"
	"github.com/mkhoshpour/susanoo/utils"
	"gorm.io/gorm"
)

// PayoutFlow defines payout approval and lifecycle operations
type PayoutFlow interface {
	Approve(ctx context.Context, req *dto.ApprovePayoutRequest, storeID uint, metadata *ClientMetadata) (*dto.PayoutDTO, error)
	Cancel(ctx context.Context, req *dto.CancelPayoutsRequest, metadata *ClientMetadata) (*dto.CancelPayoutsResponse, error)
	Mark(ctx context.Context, storeID uint, req *dto.MarkPayoutRequest, metadata *ClientMetadata) (*dto.PayoutDTO, error)
	MarkPaid(ctx context.Context, storeID uint, payoutID string, proof json.RawMessage, metadata *ClientMetadata) (*dto.PayoutDTO, error)
	Get(ctx context.Context, storeID uint, payoutID string) (*dto.PayoutDTO, error)
	List(ctx context.Context, req *dto.ListPayoutsRequest) (*dto.ListPayoutsResponse, error)
	ExportXLSX(ctx context.Context, storeID uint, metadata *ClientMetadata) ([]byte, error)
}

// PayoutFlowImpl implements PayoutFlow
type PayoutFlowImpl struct {
	payoutRepo      repository.PayoutRepository
	pullPaymentRepo repository.PullPaymentRepository
	auditRepo       repository.AuditLogRepository
	rateService     services.RateService
	exportService   services.ExportService
	events          services.EventPublisher
	db              *gorm.DB
}

// NewPayoutFlow creates a new payout flow
func NewPayoutFlow(
	payoutRepo repository.PayoutRepository,
	pullPaymentRepo repository.PullPaymentRepository,
	auditRepo repository.AuditLogRepository,
	rateService services.RateService,
	exportService services.ExportService,
	events services.EventPublisher,
	db *gorm.DB,
) PayoutFlow {
	return &PayoutFlowImpl{
		payoutRepo:      payoutRepo,
		pullPaymentRepo: pullPaymentRepo,
		auditRepo:       auditRepo,
		rateService:     rateService,
		exportService:   exportService,
		events:          events,
		db:              db,
	}
}

// methodBaseAsset maps a payment method to the asset its rail moves
func methodBaseAsset(method string) string {
	switch method {
	case models.PaymentMethodBTCChain, models.PaymentMethodBTCLightning:
		return "BTC"
	}
	return ""
}

// Approve locks a rate and moves the payout from awaiting_approval to
// awaiting_payment. The rate is resolved before the payout row is touched so
// a dead rate source never burns the presented revision.
func (f *PayoutFlowImpl) Approve(ctx context.Context, req *dto.ApprovePayoutRequest, storeID uint, metadata *ClientMetadata) (*dto.PayoutDTO, error) {
	id, err := uuid.Parse(req.PayoutID)
	if err != nil {
		return nil, ErrPayoutNotFound
	}

	payout, err := f.payoutRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout: %w", err)
	}
	if payout == nil || payout.StoreID != storeID {
		return nil, ErrPayoutNotFound
	}

	base := methodBaseAsset(payout.PaymentMethod)
	if base == "" {
		return nil, ErrPaymentMethodNotSupported
	}

	// A payout denominated in the rail's own asset needs no quote
	rate := &services.RateResult{
		BidAsk:        &services.BidAsk{Bid: 1, Ask: 1},
		EvaluatedRule: fmt.Sprintf("%s_%s", base, base),
	}
	if payout.Currency != base {
		pair := services.CurrencyPair{Base: base, Quote: payout.Currency}
		rate, err = f.rateService.FetchRate(ctx, pair, req.RateRule)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch rate: %w", err)
		}
		if rate.BidAsk == nil {
			errMsg := fmt.Sprintf("rate rule %q produced no quote: %s", rate.EvaluatedRule, strings.Join(rate.Errors, "; "))
			_ = createAuditLog(ctx, f.auditRepo, &storeID, models.AuditActionPayoutApprovalFailed, errMsg, false, &errMsg, metadata)
			return nil, NewBusinessError("RATE_UNAVAILABLE", errMsg, ErrRateUnavailable)
		}
	}

	// Claims convert on the Ask side: the store buys the asset it pays out
	ask := rate.BidAsk.Ask
	amountMajor := utils.MinorToMajor(payout.Amount, payout.Currency)
	methodAmount := amountMajor
	if payout.Currency != base {
		methodAmount = amountMajor / ask
	}
	if methodAmount <= 0 {
		return nil, NewBusinessError("RATE_UNAVAILABLE", "converted amount is zero", ErrRateUnavailable)
	}

	if payout.PullPaymentID != nil {
		pullPayment, err := f.pullPaymentRepo.ByID(ctx, *payout.PullPaymentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pull payment: %w", err)
		}
		if pullPayment != nil && payout.Amount < pullPayment.MinimumClaim {
			return nil, ErrAmountTooLow
		}
	}

	updates := map[string]any{
		"state":          models.PayoutStateAwaitingPayment,
		"state_reason":   "approved",
		"method_amount":  utils.FormatCoinAmount(methodAmount),
		"rate_locked":    utils.FormatCoinAmount(ask),
		"evaluated_rule": rate.EvaluatedRule,
		"approved_at":    utils.UTCNow(),
	}

	ok, err := f.payoutRepo.AdvanceWithRevision(ctx, payout.ID, req.Revision, models.PayoutStateAwaitingApproval, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to advance payout: %w", err)
	}
	if !ok {
		// Re-read to tell a stale revision from an ineligible state
		current, err := f.payoutRepo.ByUUID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to reload payout: %w", err)
		}
		if current == nil {
			return nil, ErrPayoutNotFound
		}
		if current.State != models.PayoutStateAwaitingApproval {
			return nil, ErrInvalidState
		}
		return nil, ErrOldRevision
	}

	approved, err := f.payoutRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payout: %w", err)
	}

	_ = createAuditLog(ctx, f.auditRepo, &storeID, models.AuditActionPayoutApproved,
		fmt.Sprintf("payout %s approved at rate %s", req.PayoutID, updates["rate_locked"]), true, nil, metadata)
	_ = f.events.Publish(ctx, services.Event{
		Type:       services.EventPayoutApproved,
		OccurredAt: utils.UTCNow(),
		Payload:    map[string]any{"payout_id": req.PayoutID, "store_id": storeID},
	})

	result := ToPayoutDTO(*approved, f.pullPaymentUUID(ctx, approved))
	return &result, nil
}

// Cancel cancels a batch of payouts, reporting success or failure per payout
func (f *PayoutFlowImpl) Cancel(ctx context.Context, req *dto.CancelPayoutsRequest, metadata *ClientMetadata) (*dto.CancelPayoutsResponse, error) {
	if len(req.PayoutIDs) > utils.MaxCancelBatchSize {
		return nil, NewBusinessErrorf("CANCEL_BATCH_TOO_LARGE", "at most %d payouts per cancel request", nil, utils.MaxCancelBatchSize)
	}

	results := make([]dto.CancelPayoutResult, 0, len(req.PayoutIDs))
	for _, payoutID := range req.PayoutIDs {
		result := f.cancelOne(ctx, req.StoreID, payoutID, metadata)
		results = append(results, result)
	}
	return &dto.CancelPayoutsResponse{Results: results}, nil
}

func (f *PayoutFlowImpl) cancelOne(ctx context.Context, storeID uint, payoutID string, metadata *ClientMetadata) dto.CancelPayoutResult {
	id, err := uuid.Parse(payoutID)
	if err != nil {
		return dto.CancelPayoutResult{PayoutID: payoutID, Code: "payout-not-found", Message: ErrPayoutNotFound.Error()}
	}

	// The CAS can lose to a concurrent transition; re-read and retry a
	// couple of times before giving up
	for attempt := 0; attempt < 3; attempt++ {
		payout, err := f.payoutRepo.ByUUID(ctx, id)
		if err != nil {
			return dto.CancelPayoutResult{PayoutID: payoutID, Code: "internal", Message: err.Error()}
		}
		if payout == nil || payout.StoreID != storeID {
			return dto.CancelPayoutResult{PayoutID: payoutID, Code: "payout-not-found", Message: ErrPayoutNotFound.Error()}
		}
		if payout.IsTerminal() {
			return dto.CancelPayoutResult{PayoutID: payoutID, Code: "invalid-state", Message: fmt.Sprintf("payout is %s", payout.State)}
		}

		updates := map[string]any{
			"state":        models.PayoutStateCancelled,
			"state_reason": "cancelled by store",
		}
		ok, err := f.payoutRepo.AdvanceWithRevision(ctx, payout.ID, payout.Revision, payout.State, updates)
		if err != nil {
			return dto.CancelPayoutResult{PayoutID: payoutID, Code: "internal", Message: err.Error()}
		}
		if !ok {
			continue
		}

		_ = createAuditLog(ctx, f.auditRepo, &storeID, models.AuditActionPayoutCancelled,
			fmt.Sprintf("payout %s cancelled", payoutID), true, nil, metadata)
		_ = f.events.Publish(ctx, services.Event{
			Type:       services.EventPayoutCancelled,
			OccurredAt: utils.UTCNow(),
			Payload:    map[string]any{"payout_id": payoutID, "store_id": storeID},
		})
		return dto.CancelPayoutResult{PayoutID: payoutID, Ok: true}
	}

	return dto.CancelPayoutResult{PayoutID: payoutID, Code: "invalid-state", Message: "payout changed concurrently"}
}

// Mark records an out-of-band state change. Marking a payout cancelled goes
// through the cancel path so both surfaces share one set of rules.
func (f *PayoutFlowImpl) Mark(ctx context.Context, storeID uint, req *dto.MarkPayoutRequest, metadata *ClientMetadata) (*dto.PayoutDTO, error) {
	target := models.PayoutState(req.State)
	if !target.IsValid() || target == models.PayoutStateAwaitingApproval {
		return nil, ErrInvalidState
	}

	if target == models.PayoutStateCancelled {
		result := f.cancelOne(ctx, storeID, req.PayoutID, metadata)
		if !result.Ok {
			switch result.Code {
			case "payout-not-found":
				return nil, ErrPayoutNotFound
			default:
				return nil, ErrInvalidState
			}
		}
		return f.Get(ctx, storeID, req.PayoutID)
	}

	id, err := uuid.Parse(req.PayoutID)
	if err != nil {
		return nil, ErrPayoutNotFound
	}

	for attempt := 0; attempt < 3; attempt++ {
		payout, err := f.payoutRepo.ByUUID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load payout: %w", err)
		}
		if payout == nil || payout.StoreID != storeID {
			return nil, ErrPayoutNotFound
		}
		if payout.IsTerminal() || payout.State == target {
			return nil, ErrInvalidState
		}

		updates := map[string]any{
			"state":        target,
			"state_reason": "marked by store",
		}
		if len(req.Proof) > 0 {
			updates["proof"] = models.JSONB(req.Proof)
		}
		if target == models.PayoutStateCompleted {
			updates["completed_at"] = utils.UTCNow()
		}

		ok, err := f.payoutRepo.AdvanceWithRevision(ctx, payout.ID, payout.Revision, payout.State, updates)
		if err != nil {
			return nil, fmt.Errorf("failed to advance payout: %w", err)
		}
		if !ok {
			continue
		}

		_ = createAuditLog(ctx, f.auditRepo, &storeID, models.AuditActionPayoutMarkedPaid,
			fmt.Sprintf("payout %s marked %s", req.PayoutID, target), true, nil, metadata)
		if target == models.PayoutStateCompleted {
			_ = f.events.Publish(ctx, services.Event{
				Type:       services.EventPayoutCompleted,
				OccurredAt: utils.UTCNow(),
				Payload:    map[string]any{"payout_id": req.PayoutID, "store_id": storeID},
			})
		}
		return f.Get(ctx, storeID, req.PayoutID)
	}

	return nil, ErrInvalidState
}

// MarkPaid marks a payout completed, recording optional proof of payment
func (f *PayoutFlowImpl) MarkPaid(ctx context.Context, storeID uint, payoutID string, proof json.RawMessage, metadata *ClientMetadata) (*dto.PayoutDTO, error) {
	return f.Mark(ctx, storeID, &dto.MarkPayoutRequest{
		PayoutID: payoutID,
		State:    string(models.PayoutStateCompleted),
		Proof:    proof,
	}, metadata)
}

// Get loads a single payout scoped to the store
func (f *PayoutFlowImpl) Get(ctx context.Context, storeID uint, payoutID string) (*dto.PayoutDTO, error) {
	id, err := uuid.Parse(payoutID)
	if err != nil {
		return nil, ErrPayoutNotFound
	}

	payout, err := f.payoutRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout: %w", err)
	}
	if payout == nil || payout.StoreID != storeID {
		return nil, ErrPayoutNotFound
	}

	result := ToPayoutDTO(*payout, f.pullPaymentUUID(ctx, payout))
	return &result, nil
}

// List returns a page of the store's payouts
func (f *PayoutFlowImpl) List(ctx context.Context, req *dto.ListPayoutsRequest) (*dto.ListPayoutsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	var state *models.PayoutState
	if req.State != nil {
		state = utils.ToPtr(models.PayoutState(*req.State))
	}

	payouts, err := f.payoutRepo.ListByStore(ctx, req.StoreID, state, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}

	filter := models.PayoutFilter{StoreID: &req.StoreID, State: state}
	total, err := f.payoutRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count payouts: %w", err)
	}

	items := make([]dto.PayoutDTO, 0, len(payouts))
	for _, p := range payouts {
		items = append(items, ToPayoutDTO(*p, f.pullPaymentUUID(ctx, p)))
	}

	return &dto.ListPayoutsResponse{Items: items, Total: total}, nil
}

// ExportXLSX renders the store's full payout ledger as a workbook
func (f *PayoutFlowImpl) ExportXLSX(ctx context.Context, storeID uint, metadata *ClientMetadata) ([]byte, error) {
	payouts, err := f.payoutRepo.ByFilter(ctx, models.PayoutFilter{StoreID: &storeID}, "created_at ASC", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list payouts: %w", err)
	}

	data, err := f.exportService.PayoutsToXLSX(payouts)
	if err != nil {
		return nil, err
	}

	_ = createAuditLog(ctx, f.auditRepo, &storeID, models.AuditActionPayoutExportRequested,
		fmt.Sprintf("%d payouts exported", len(payouts)), true, nil, metadata)
	return data, nil
}

// pullPaymentUUID resolves the external id of the payout's pull payment
func (f *PayoutFlowImpl) pullPaymentUUID(ctx context.Context, payout *models.Payout) *string {
	if payout.PullPaymentID == nil {
		return nil
	}
	pullPayment, err := f.pullPaymentRepo.ByID(ctx, *payout.PullPaymentID)
	if err != nil || pullPayment == nil {
		return nil
	}
	return utils.ToPtr(pullPayment.UUID.String())
}
