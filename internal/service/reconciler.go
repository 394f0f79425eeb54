package service

import (
	"context"
	"errors"
	"fmt"

	"pledge-service/internal/models"
	"pledge-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcome is the result of evaluating a goal against its target.
type Outcome string

// Evaluation outcomes
const (
	OutcomeBelowTarget      Outcome = "BELOW_TARGET"
	OutcomeTargetMet        Outcome = "TARGET_MET_NOT_CONVERTED"
	OutcomeAlreadyConverted Outcome = "ALREADY_CONVERTED"
)

// GoalProgress is the derived funding state of a goal.
type GoalProgress struct {
	GoalID       int64           `json:"goal_id"`
	TargetAmount decimal.Decimal `json:"target_amount"`
	TotalSettled decimal.Decimal `json:"total_settled"`
	Remaining    decimal.Decimal `json:"remaining"`
}

// GoalReconciler decides, after each settlement, whether a goal's target has
// been met and triggers conversion at most once.
type GoalReconciler struct {
	store        GoalStore
	cache        ProgressCache
	materializer *OrderMaterializer
	logger       *zap.Logger
}

// NewGoalReconciler creates a new goal reconciler. cache may be nil.
func NewGoalReconciler(store GoalStore, cache ProgressCache, materializer *OrderMaterializer) *GoalReconciler {
	return &GoalReconciler{
		store:        store,
		cache:        cache,
		materializer: materializer,
		logger:       util.GetLogger(),
	}
}

// Evaluate recomputes the settled total for a goal and compares it to the
// target. A closed goal short-circuits to OutcomeAlreadyConverted without
// recomputation, which makes repeated evaluation idempotent. Meeting the
// target exactly counts as satisfied.
func (gr *GoalReconciler) Evaluate(ctx context.Context, goalID int64) (Outcome, error) {
	ctx, span := util.StartSpan(ctx, "GoalReconciler.Evaluate")
	defer span.End()

	goal, err := gr.store.GetGoal(ctx, goalID)
	if err != nil {
		return "", fmt.Errorf("failed to load goal: %w", err)
	}
	if goal == nil {
		return "", fmt.Errorf("goal %d: %w", goalID, ErrNotFound)
	}
	if goal.Status == models.GoalStatusClosed {
		return OutcomeAlreadyConverted, nil
	}

	total, err := gr.store.TotalSettled(ctx, goalID)
	if err != nil {
		return "", fmt.Errorf("failed to compute settled total: %w", err)
	}

	gr.cacheProgress(ctx, goal, total)

	if total.GreaterThanOrEqual(goal.TargetAmount) {
		gr.logger.Info("Goal target met",
			zap.Int64("goal_id", goalID),
			zap.String("total", total.String()),
			zap.String("target", goal.TargetAmount.String()))
		return OutcomeTargetMet, nil
	}

	return OutcomeBelowTarget, nil
}

// EvaluateAndMaterialize evaluates a goal and, if the target is met, hands
// off to the materializer. A concurrent conversion that wins the race is
// reported as OutcomeAlreadyConverted rather than an error; any other
// materialization failure leaves the goal open and is safely retryable.
func (gr *GoalReconciler) EvaluateAndMaterialize(ctx context.Context, goalID int64) (*models.ConversionResult, Outcome, error) {
	outcome, err := gr.Evaluate(ctx, goalID)
	if err != nil {
		return nil, "", err
	}
	if outcome != OutcomeTargetMet {
		return nil, outcome, nil
	}

	result, err := gr.materializer.Materialize(ctx, goalID)
	if err != nil {
		if errors.Is(err, ErrAlreadyConverted) {
			return nil, OutcomeAlreadyConverted, nil
		}
		return nil, OutcomeTargetMet, err
	}

	return result, OutcomeTargetMet, nil
}

// Progress returns the derived funding progress for a goal, preferring the
// cache and falling back to a fresh aggregate.
func (gr *GoalReconciler) Progress(ctx context.Context, goalID int64) (*GoalProgress, error) {
	if gr.cache != nil {
		total, target, ok, err := gr.cache.GetGoalProgress(ctx, goalID)
		if err != nil {
			gr.logger.Warn("Progress cache read failed, falling back to store",
				zap.Int64("goal_id", goalID), zap.Error(err))
		} else if ok {
			return newGoalProgress(goalID, target, total), nil
		}
	}

	goal, err := gr.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goal: %w", err)
	}
	if goal == nil {
		return nil, fmt.Errorf("goal %d: %w", goalID, ErrNotFound)
	}

	total, err := gr.store.TotalSettled(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute settled total: %w", err)
	}

	gr.cacheProgress(ctx, goal, total)

	return newGoalProgress(goalID, goal.TargetAmount, total), nil
}

func (gr *GoalReconciler) cacheProgress(ctx context.Context, goal *models.FundingGoal, total decimal.Decimal) {
	if gr.cache == nil {
		return
	}
	if err := gr.cache.SetGoalProgress(ctx, goal.ID, total, goal.TargetAmount); err != nil {
		gr.logger.Warn("Failed to cache goal progress",
			zap.Int64("goal_id", goal.ID), zap.Error(err))
	}
}

func newGoalProgress(goalID int64, target, total decimal.Decimal) *GoalProgress {
	remaining := target.Sub(total)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &GoalProgress{
		GoalID:       goalID,
		TargetAmount: target,
		TotalSettled: total,
		Remaining:    remaining,
	}
}
