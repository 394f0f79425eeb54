package service

import (
	"context"
	"fmt"
	"time"

	"pledge-service/internal/models"
	"pledge-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderTotalPolicy selects what the materialized order's total is charged as.
type OrderTotalPolicy string

const (
	// OrderTotalTarget prices the order at the goal's target amount, matching
	// the product price regardless of overshoot.
	OrderTotalTarget OrderTotalPolicy = "target"
	// OrderTotalSettled prices the order at the full settled sum, which may
	// exceed the target when pledges overshoot.
	OrderTotalSettled OrderTotalPolicy = "settled"
)

// fundedQuantity is fixed: a goal funds exactly one unit of its product.
const fundedQuantity = 1

// OrderMaterializer atomically converts a satisfied funding goal into a real
// order, exactly once per goal.
type OrderMaterializer struct {
	store   GoalStore
	locker  GoalLocker
	sink    NotificationSink
	policy  OrderTotalPolicy
	lockTTL time.Duration
	logger  *zap.Logger
}

// NewOrderMaterializer creates a new order materializer. locker and sink may
// be nil; the store's row lock alone still guarantees mutual exclusion.
func NewOrderMaterializer(store GoalStore, locker GoalLocker, sink NotificationSink, policy OrderTotalPolicy, lockTTL time.Duration) *OrderMaterializer {
	if policy != OrderTotalSettled {
		policy = OrderTotalTarget
	}
	return &OrderMaterializer{
		store:   store,
		locker:  locker,
		sink:    sink,
		policy:  policy,
		lockTTL: lockTTL,
		logger:  util.GetLogger(),
	}
}

// Materialize converts a satisfied goal into an order inside a single
// exclusive transaction: create order and line item, decrement inventory,
// consume settled pledges, close the goal, record the conversion. Any failure
// rolls back the whole unit. Notifications go out after commit, best-effort.
func (om *OrderMaterializer) Materialize(ctx context.Context, goalID int64) (*models.ConversionResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderMaterializer.Materialize")
	defer span.End()

	start := time.Now()
	defer func() {
		util.MaterializeLatency.Observe(time.Since(start).Seconds())
	}()

	if om.locker != nil {
		token, ok, err := om.locker.AcquireGoalLock(ctx, goalID, om.lockTTL)
		if err != nil {
			// Advisory only; the row lock below is authoritative.
			om.logger.Warn("Goal lock backend unavailable, relying on row lock",
				zap.Int64("goal_id", goalID), zap.Error(err))
		} else if !ok {
			util.MaterializeFailedTotal.WithLabelValues("lock_contention").Inc()
			return nil, fmt.Errorf("goal %d is being converted: %w", goalID, ErrConcurrencyConflict)
		} else {
			defer func() {
				if err := om.locker.ReleaseGoalLock(ctx, goalID, token); err != nil {
					om.logger.Warn("Failed to release goal lock",
						zap.Int64("goal_id", goalID), zap.Error(err))
				}
			}()
		}
	}

	tx, err := om.store.LockGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock goal: %w", err)
	}
	defer tx.Rollback()

	goal := tx.Goal()
	if goal.Status != models.GoalStatusOpen {
		util.MaterializeFailedTotal.WithLabelValues("already_converted").Inc()
		return nil, fmt.Errorf("goal %d: %w", goalID, ErrAlreadyConverted)
	}

	pledges, err := tx.SettledPledges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settled pledges: %w", err)
	}

	total := decimal.Zero
	for _, p := range pledges {
		total = total.Add(p.Amount)
	}
	if total.LessThan(goal.TargetAmount) {
		util.MaterializeFailedTotal.WithLabelValues("target_not_met").Inc()
		return nil, fmt.Errorf("goal %d settled total %s below target %s: %w",
			goalID, total, goal.TargetAmount, ErrInvalidState)
	}

	orderTotal := goal.TargetAmount
	if om.policy == OrderTotalSettled {
		orderTotal = total
	}

	order := &models.Order{
		BeneficiaryID: goal.BeneficiaryID,
		TotalAmount:   orderTotal,
		Status:        models.OrderStatusPaid,
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	item := &models.OrderItem{
		OrderID:   order.ID,
		ProductID: goal.ProductID,
		Quantity:  fundedQuantity,
		UnitPrice: orderTotal,
	}
	if err := tx.CreateOrderItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create order item: %w", err)
	}

	ok, err := tx.DecrementInventory(ctx, goal.ProductID, fundedQuantity)
	if err != nil {
		return nil, fmt.Errorf("failed to decrement inventory: %w", err)
	}
	if !ok {
		util.MaterializeFailedTotal.WithLabelValues("insufficient_inventory").Inc()
		return nil, fmt.Errorf("product %d out of stock: %w", goal.ProductID, ErrInsufficientInventory)
	}

	pledgeIDs := make([]int64, len(pledges))
	contributors := make(map[int64]struct{}, len(pledges))
	for i, p := range pledges {
		pledgeIDs[i] = p.ID
		contributors[p.ContributorID] = struct{}{}
	}

	if err := tx.ConsumePledges(ctx, pledgeIDs, order.ID); err != nil {
		return nil, fmt.Errorf("failed to consume pledges: %w", err)
	}

	if err := tx.CloseGoal(ctx); err != nil {
		return nil, fmt.Errorf("failed to close goal: %w", err)
	}

	conv := &models.ConversionResult{
		GoalID:           &goal.ID,
		OrderID:          order.ID,
		TotalCollected:   total,
		ContributorCount: len(contributors),
		PledgeCount:      len(pledges),
		PledgeIDs:        pledgeIDs,
	}
	if err := tx.CreateConversion(ctx, conv); err != nil {
		return nil, fmt.Errorf("failed to record conversion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversion: %w", err)
	}

	util.GoalsFundedTotal.Inc()
	om.logger.Info("Goal materialized",
		zap.Int64("goal_id", goal.ID),
		zap.Int64("order_id", order.ID),
		zap.String("total_collected", total.String()),
		zap.Int("contributors", conv.ContributorCount))

	om.notify(ctx, goal, conv, pledges)

	return conv, nil
}

// notify emits post-commit notifications. Failures are logged and counted,
// never propagated: the conversion is already committed.
func (om *OrderMaterializer) notify(ctx context.Context, goal *models.FundingGoal, conv *models.ConversionResult, pledges []models.Pledge) {
	if om.sink == nil {
		return
	}

	funded := &models.GoalFundedEvent{
		BaseEvent:        models.NewBaseEvent(models.EventTypeGoalFunded),
		GoalID:           goal.ID,
		BeneficiaryID:    goal.BeneficiaryID,
		OrderID:          conv.OrderID,
		TotalCollected:   conv.TotalCollected,
		ContributorCount: conv.ContributorCount,
	}
	if err := om.sink.NotifyGoalFunded(ctx, funded); err != nil {
		util.NotificationFailuresTotal.WithLabelValues(models.EventTypeGoalFunded).Inc()
		om.logger.Error("Failed to notify beneficiary",
			zap.Int64("goal_id", goal.ID), zap.Error(err))
	}

	for _, p := range pledges {
		thanks := &models.ContributionThanksEvent{
			BaseEvent:     models.NewBaseEvent(models.EventTypeContributionThanks),
			PledgeID:      p.ID,
			GoalID:        goal.ID,
			ContributorID: p.ContributorID,
			OrderID:       conv.OrderID,
			Amount:        p.Amount,
		}
		if err := om.sink.NotifyContributionThanks(ctx, thanks); err != nil {
			util.NotificationFailuresTotal.WithLabelValues(models.EventTypeContributionThanks).Inc()
			om.logger.Error("Failed to notify contributor",
				zap.Int64("pledge_id", p.ID), zap.Error(err))
		}
	}
}
