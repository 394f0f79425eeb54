package service

import (
	"context"
	"fmt"

	"pledge-service/internal/models"
	"pledge-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ContributionLedger accepts and validates pledges and maintains the
// authoritative running total for each goal.
type ContributionLedger struct {
	store  GoalStore
	events PledgeEvents
	logger *zap.Logger
}

// NewContributionLedger creates a new contribution ledger
func NewContributionLedger(store GoalStore, events PledgeEvents) *ContributionLedger {
	return &ContributionLedger{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// SubmitPledgeRequest represents a request to pledge toward a goal
type SubmitPledgeRequest struct {
	GoalID        int64           `json:"goal_id"`
	ContributorID int64           `json:"contributor_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message"`
}

// SubmitPledge validates and records a pledge in PENDING state. It never
// mutates goal state; the submission is purely additive.
func (cl *ContributionLedger) SubmitPledge(ctx context.Context, req *SubmitPledgeRequest) (*models.Pledge, error) {
	ctx, span := util.StartSpan(ctx, "ContributionLedger.SubmitPledge")
	defer span.End()

	if !req.Amount.IsPositive() {
		util.PledgesRejectedTotal.WithLabelValues("non_positive_amount").Inc()
		return nil, fmt.Errorf("amount must be positive: %w", ErrInvalidPledge)
	}

	goal, err := cl.store.GetGoal(ctx, req.GoalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goal: %w", err)
	}
	if goal == nil {
		return nil, fmt.Errorf("goal %d: %w", req.GoalID, ErrNotFound)
	}

	if goal.Status != models.GoalStatusOpen {
		util.PledgesRejectedTotal.WithLabelValues("goal_closed").Inc()
		return nil, fmt.Errorf("goal %d is closed: %w", goal.ID, ErrInvalidPledge)
	}
	if !goal.ContributionsEnabled {
		util.PledgesRejectedTotal.WithLabelValues("contributions_disabled").Inc()
		return nil, fmt.Errorf("goal %d is not accepting contributions: %w", goal.ID, ErrInvalidPledge)
	}
	if req.ContributorID == goal.BeneficiaryID {
		util.PledgesRejectedTotal.WithLabelValues("self_contribution").Inc()
		return nil, fmt.Errorf("beneficiary cannot pledge to their own goal: %w", ErrInvalidPledge)
	}

	pledge := &models.Pledge{
		GoalID:        goal.ID,
		ContributorID: req.ContributorID,
		Amount:        req.Amount,
		Message:       req.Message,
		Status:        models.PledgeStatusPending,
	}

	if err := cl.store.CreatePledge(ctx, pledge); err != nil {
		return nil, fmt.Errorf("failed to create pledge: %w", err)
	}

	util.PledgesSubmittedTotal.Inc()
	cl.logger.Info("Pledge submitted",
		zap.Int64("pledge_id", pledge.ID),
		zap.Int64("goal_id", goal.ID),
		zap.String("amount", pledge.Amount.String()))

	cl.publishSubmitted(ctx, pledge)

	return pledge, nil
}

// SettlePledge transitions a pledge from PENDING to SETTLED once the payment
// collaborator confirms the charge. The transition is an atomic check-and-set;
// a pledge in any other state yields ErrInvalidState.
func (cl *ContributionLedger) SettlePledge(ctx context.Context, pledgeID int64, settlementRef string) (*models.Pledge, error) {
	ctx, span := util.StartSpan(ctx, "ContributionLedger.SettlePledge")
	defer span.End()

	pledge, err := cl.store.MarkPledgeSettled(ctx, pledgeID, settlementRef)
	if err != nil {
		return nil, fmt.Errorf("failed to settle pledge: %w", err)
	}
	if pledge == nil {
		existing, err := cl.store.GetPledge(ctx, pledgeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pledge: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("pledge %d: %w", pledgeID, ErrNotFound)
		}
		return nil, fmt.Errorf("pledge %d is %s, not %s: %w",
			pledgeID, existing.Status, models.PledgeStatusPending, ErrInvalidState)
	}

	util.PledgesSettledTotal.Inc()
	cl.logger.Info("Pledge settled",
		zap.Int64("pledge_id", pledge.ID),
		zap.Int64("goal_id", pledge.GoalID),
		zap.String("settlement_ref", settlementRef))

	cl.publishSettled(ctx, pledge)

	return pledge, nil
}

// CancelPledge transitions a pledge from PENDING to CANCELLED when payment
// is declined. Cancelled pledges never reach the reconciler.
func (cl *ContributionLedger) CancelPledge(ctx context.Context, pledgeID int64, reason string) (*models.Pledge, error) {
	ctx, span := util.StartSpan(ctx, "ContributionLedger.CancelPledge")
	defer span.End()

	pledge, err := cl.store.MarkPledgeCancelled(ctx, pledgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel pledge: %w", err)
	}
	if pledge == nil {
		existing, err := cl.store.GetPledge(ctx, pledgeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pledge: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("pledge %d: %w", pledgeID, ErrNotFound)
		}
		return nil, fmt.Errorf("pledge %d is %s, not %s: %w",
			pledgeID, existing.Status, models.PledgeStatusPending, ErrInvalidState)
	}

	util.PledgesCancelledTotal.Inc()
	cl.logger.Info("Pledge cancelled",
		zap.Int64("pledge_id", pledge.ID),
		zap.String("reason", reason))

	cl.publishCancelled(ctx, pledge, reason)

	return pledge, nil
}

// RefundPledge transitions a pledge from SETTLED to REFUNDED after a payment
// reversal. Only possible while the owning goal is still open; a consumed
// pledge is immutable.
func (cl *ContributionLedger) RefundPledge(ctx context.Context, pledgeID int64) (*models.Pledge, error) {
	ctx, span := util.StartSpan(ctx, "ContributionLedger.RefundPledge")
	defer span.End()

	pledge, err := cl.store.MarkPledgeRefunded(ctx, pledgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to refund pledge: %w", err)
	}
	if pledge == nil {
		existing, err := cl.store.GetPledge(ctx, pledgeID)
		if err != nil {
			return nil, fmt.Errorf("failed to load pledge: %w", err)
		}
		if existing == nil {
			return nil, fmt.Errorf("pledge %d: %w", pledgeID, ErrNotFound)
		}
		return nil, fmt.Errorf("pledge %d is %s, not %s: %w",
			pledgeID, existing.Status, models.PledgeStatusSettled, ErrInvalidState)
	}

	cl.logger.Info("Pledge refunded", zap.Int64("pledge_id", pledge.ID))

	cl.publishCancelled(ctx, pledge, "refunded")

	return pledge, nil
}

// TotalSettled returns the sum of all settled pledge amounts for a goal,
// derived fresh from the ledger rows.
func (cl *ContributionLedger) TotalSettled(ctx context.Context, goalID int64) (decimal.Decimal, error) {
	return cl.store.TotalSettled(ctx, goalID)
}

// ListPledges returns every pledge recorded against a goal.
func (cl *ContributionLedger) ListPledges(ctx context.Context, goalID int64) ([]models.Pledge, error) {
	return cl.store.ListPledges(ctx, goalID)
}

func (cl *ContributionLedger) publishSubmitted(ctx context.Context, pledge *models.Pledge) {
	if cl.events == nil {
		return
	}
	event := &models.PledgeSubmittedEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypePledgeSubmitted),
		PledgeID:      pledge.ID,
		GoalID:        pledge.GoalID,
		ContributorID: pledge.ContributorID,
		Amount:        pledge.Amount,
	}
	if err := cl.events.PublishPledgeSubmitted(ctx, event); err != nil {
		cl.logger.Error("Failed to publish PledgeSubmitted event", zap.Error(err))
	}
}

func (cl *ContributionLedger) publishSettled(ctx context.Context, pledge *models.Pledge) {
	if cl.events == nil {
		return
	}
	event := &models.PledgeSettledEvent{
		BaseEvent:     models.NewBaseEvent(models.EventTypePledgeSettled),
		PledgeID:      pledge.ID,
		GoalID:        pledge.GoalID,
		ContributorID: pledge.ContributorID,
		Amount:        pledge.Amount,
		SettlementRef: pledge.SettlementRef,
	}
	if err := cl.events.PublishPledgeSettled(ctx, event); err != nil {
		cl.logger.Error("Failed to publish PledgeSettled event", zap.Error(err))
	}
}

func (cl *ContributionLedger) publishCancelled(ctx context.Context, pledge *models.Pledge, reason string) {
	if cl.events == nil {
		return
	}
	event := &models.PledgeCancelledEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePledgeCancelled),
		PledgeID:  pledge.ID,
		GoalID:    pledge.GoalID,
		Reason:    reason,
	}
	if err := cl.events.PublishPledgeCancelled(ctx, event); err != nil {
		cl.logger.Error("Failed to publish PledgeCancelled event", zap.Error(err))
	}
}
