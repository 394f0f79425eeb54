package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"pledge-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService is the mocked external payment collaborator. It charges a
// pending pledge and reports the outcome back to the ledger: settle on
// success, cancel on decline.
type PaymentService struct {
	ledger      *ContributionLedger
	logger      *zap.Logger
	successRate float64
	delay       time.Duration
}

// NewPaymentService creates a new payment service
func NewPaymentService(ledger *ContributionLedger, successRate float64, delay time.Duration) *PaymentService {
	return &PaymentService{
		ledger:      ledger,
		logger:      util.GetLogger(),
		successRate: successRate,
		delay:       delay,
	}
}

// ProcessPledgePayment charges a pending pledge (mocked). On success the
// pledge settles with a provider transaction reference; on decline it is
// cancelled before it can ever reach the reconciler.
func (ps *PaymentService) ProcessPledgePayment(ctx context.Context, pledgeID int64) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.ProcessPledgePayment")
	defer span.End()

	util.PaymentAttemptsTotal.Inc()
	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	if ps.delay > 0 {
		time.Sleep(ps.delay + time.Duration(rand.Int63n(int64(ps.delay))))
	}

	if rand.Float64() < ps.successRate {
		ref := fmt.Sprintf("TXN-%s", uuid.New().String()[:8])
		if _, err := ps.ledger.SettlePledge(ctx, pledgeID, ref); err != nil {
			return fmt.Errorf("failed to settle pledge after charge: %w", err)
		}
		util.PaymentSuccessTotal.Inc()
		ps.logger.Info("Pledge payment succeeded",
			zap.Int64("pledge_id", pledgeID),
			zap.String("tx_id", ref))
		return nil
	}

	if _, err := ps.ledger.CancelPledge(ctx, pledgeID, "payment_declined"); err != nil {
		return fmt.Errorf("failed to cancel declined pledge: %w", err)
	}
	util.PaymentFailedTotal.Inc()
	ps.logger.Warn("Pledge payment declined", zap.Int64("pledge_id", pledgeID))
	return nil
}
