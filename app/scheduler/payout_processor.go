// Package scheduler runs the background payout jobs
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/config"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/repository"
	"github.com/mkhoshpour/susanoo/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	payoutSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_sends_total",
			Help: "Automated payout send attempts by result",
		},
		[]string{"method", "result"},
	)

	staleRatesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payout_stale_rates_swept_total",
			Help: "Approved lightning payouts returned to approval after their locked rate went stale",
		},
	)
)

// PayoutProcessor drives approved payouts to completion and sweeps stale
// lightning rate locks back to approval.
type PayoutProcessor struct {
	payoutRepo      repository.PayoutRepository
	pullPaymentRepo repository.PullPaymentRepository
	auditRepo       repository.AuditLogRepository
	rails           services.RailRegistry
	events          services.EventPublisher
	cfg             config.PayoutsConfig
	logger          *log.Logger
	cron            *cron.Cron
}

// NewPayoutProcessor creates the background payout processor
func NewPayoutProcessor(
	payoutRepo repository.PayoutRepository,
	pullPaymentRepo repository.PullPaymentRepository,
	auditRepo repository.AuditLogRepository,
	rails services.RailRegistry,
	events services.EventPublisher,
	cfg config.PayoutsConfig,
) *PayoutProcessor {
	p := &PayoutProcessor{
		payoutRepo:      payoutRepo,
		pullPaymentRepo: pullPaymentRepo,
		auditRepo:       auditRepo,
		rails:           rails,
		events:          events,
		cfg:             cfg,
		cron:            cron.New(),
	}
	p.initLogger()
	return p
}

// initLogger writes to stdout and a size-rotated file so send failures
// survive restarts
func (p *PayoutProcessor) initLogger() {
	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(p.cfg.ProcessorLogDir, "payout-processor.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	p.logger = log.New(io.MultiWriter(os.Stdout, rotated), "payout-processor ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start registers the cron jobs and launches the scheduler. The returned
// stop function blocks until any running job finishes.
func (p *PayoutProcessor) Start(parent context.Context) (func(), error) {
	if _, err := p.cron.AddFunc(p.cfg.ProcessorCron, func() {
		p.ProcessBatch(parent)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule payout processor: %w", err)
	}
	if _, err := p.cron.AddFunc(p.cfg.SweeperCron, func() {
		p.SweepStaleRates(parent)
	}); err != nil {
		return nil, fmt.Errorf("failed to schedule rate sweeper: %w", err)
	}

	p.cron.Start()
	p.logger.Printf("started: processor %q, sweeper %q", p.cfg.ProcessorCron, p.cfg.SweeperCron)

	return func() {
		ctx := p.cron.Stop()
		<-ctx.Done()
		p.logger.Println("stopped")
	}, nil
}

// ProcessBatch picks up approved payouts and sends them over their rails.
// Each payout is claimed with a revision-checked transition so a second
// processor instance never double-sends.
func (p *PayoutProcessor) ProcessBatch(ctx context.Context) {
	payouts, err := p.payoutRepo.ListByState(ctx, models.PayoutStateAwaitingPayment, p.cfg.ProcessorBatch, 0)
	if err != nil {
		p.logger.Printf("failed to list payouts: %v", err)
		return
	}

	for _, payout := range payouts {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOne(ctx, payout)
	}
}

func (p *PayoutProcessor) processOne(ctx context.Context, payout *models.Payout) {
	rail, ok := p.rails.Rail(payout.PaymentMethod)
	if !ok {
		p.logger.Printf("payout %s: no rail for %s", payout.UUID, payout.PaymentMethod)
		return
	}

	ok, err := p.payoutRepo.AdvanceWithRevision(ctx, payout.ID, payout.Revision, models.PayoutStateAwaitingPayment, map[string]any{
		"state":        models.PayoutStateInProgress,
		"state_reason": "picked up by processor",
	})
	if err != nil {
		p.logger.Printf("payout %s: failed to claim: %v", payout.UUID, err)
		return
	}
	if !ok {
		// Lost the race to another instance or a store action; next tick
		// sees the fresh state
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	proof, err := rail.Send(sendCtx, payout.Destination, payout.MethodAmount)
	cancel()

	current, readErr := p.payoutRepo.ByID(ctx, payout.ID)
	if readErr != nil || current == nil {
		p.logger.Printf("payout %s: failed to reload after send: %v", payout.UUID, readErr)
		return
	}

	if err != nil {
		payoutSendsTotal.WithLabelValues(payout.PaymentMethod, "failed").Inc()
		p.logger.Printf("payout %s: send failed: %v", payout.UUID, err)
		errMsg := err.Error()
		p.audit(ctx, payout.StoreID, models.AuditActionPayoutSendFailed,
			fmt.Sprintf("payout %s send failed: %v", payout.UUID, err), false, &errMsg)

		if _, err := p.payoutRepo.AdvanceWithRevision(ctx, current.ID, current.Revision, models.PayoutStateInProgress, map[string]any{
			"state":        models.PayoutStateAwaitingPayment,
			"state_reason": "send failed, will retry",
		}); err != nil {
			p.logger.Printf("payout %s: failed to return to awaiting_payment: %v", payout.UUID, err)
		}
		return
	}

	updates := map[string]any{
		"state":        models.PayoutStateCompleted,
		"state_reason": "sent by processor",
		"completed_at": utils.UTCNow(),
	}
	if len(proof) > 0 {
		updates["proof"] = models.JSONB(proof)
	}
	if _, err := p.payoutRepo.AdvanceWithRevision(ctx, current.ID, current.Revision, models.PayoutStateInProgress, updates); err != nil {
		p.logger.Printf("payout %s: sent but failed to record completion: %v", payout.UUID, err)
		return
	}

	payoutSendsTotal.WithLabelValues(payout.PaymentMethod, "ok").Inc()
	p.logger.Printf("payout %s: sent %s %s to %s", payout.UUID, payout.MethodAmount, payout.PaymentMethod, payout.Destination)
	p.audit(ctx, payout.StoreID, models.AuditActionPayoutSent,
		fmt.Sprintf("payout %s sent over %s", payout.UUID, payout.PaymentMethod), true, nil)
	_ = p.events.Publish(ctx, services.Event{
		Type:       services.EventPayoutCompleted,
		OccurredAt: utils.UTCNow(),
		Payload:    map[string]any{"payout_id": payout.UUID.String(), "store_id": payout.StoreID},
	})
}

// SweepStaleRates returns approved lightning payouts whose locked rate has
// gone stale to awaiting_approval, clearing the lock so the store approves
// again at a fresh price.
func (p *PayoutProcessor) SweepStaleRates(ctx context.Context) {
	// Stale locks only accumulate when sends keep failing, so the batch
	// stays small
	payouts, err := p.payoutRepo.ListByState(ctx, models.PayoutStateAwaitingPayment, p.cfg.ProcessorBatch, 0)
	if err != nil {
		p.logger.Printf("sweeper: failed to list payouts: %v", err)
		return
	}

	now := utils.UTCNow()
	for _, payout := range payouts {
		expiration := time.Duration(utils.DefaultBOLT11ExpirationMinutes) * time.Minute
		if payout.PullPaymentID != nil {
			pullPayment, err := p.pullPaymentRepo.ByID(ctx, *payout.PullPaymentID)
			if err == nil && pullPayment != nil && pullPayment.BOLT11ExpirationMinutes > 0 {
				expiration = time.Duration(pullPayment.BOLT11ExpirationMinutes) * time.Minute
			}
		}

		staleAt := payout.RateStaleAfter(expiration)
		if staleAt == nil || now.Before(*staleAt) {
			continue
		}

		ok, err := p.payoutRepo.AdvanceWithRevision(ctx, payout.ID, payout.Revision, models.PayoutStateAwaitingPayment, map[string]any{
			"state":          models.PayoutStateAwaitingApproval,
			"state_reason":   "rate lock expired",
			"method_amount":  "",
			"rate_locked":    "",
			"evaluated_rule": "",
			"approved_at":    nil,
		})
		if err != nil {
			p.logger.Printf("sweeper: payout %s: %v", payout.UUID, err)
			continue
		}
		if !ok {
			continue
		}

		staleRatesSweptTotal.Inc()
		p.logger.Printf("sweeper: payout %s returned to approval, rate locked at %s went stale", payout.UUID, payout.RateLocked)
		p.audit(ctx, payout.StoreID, models.AuditActionPayoutRateExpired,
			fmt.Sprintf("payout %s rate lock expired", payout.UUID), true, nil)
	}
}

func (p *PayoutProcessor) audit(ctx context.Context, storeID uint, action, description string, success bool, errMsg *string) {
	entry := &models.AuditLog{
		StoreID:      &storeID,
		Action:       action,
		Description:  &description,
		Success:      &success,
		ErrorMessage: errMsg,
		CreatedAt:    utils.UTCNow(),
	}
	if err := p.auditRepo.Save(ctx, entry); err != nil {
		p.logger.Printf("failed to write audit log: %v", err)
	}
}
