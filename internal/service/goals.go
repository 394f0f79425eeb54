package service

import (
	"context"
	"fmt"

	"pledge-service/internal/models"
	"pledge-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GoalService manages funding goal lifecycle outside of conversion: creation,
// lookup, disabling contributions, and pre-conversion removal.
type GoalService struct {
	store  GoalStore
	logger *zap.Logger
}

// NewGoalService creates a new goal service
func NewGoalService(store GoalStore) *GoalService {
	return &GoalService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateGoalRequest represents a request to open a funding goal
type CreateGoalRequest struct {
	BeneficiaryID int64           `json:"beneficiary_id" binding:"required"`
	ProductID     int64           `json:"product_id" binding:"required"`
	TargetAmount  decimal.Decimal `json:"target_amount"`
	Description   string          `json:"description"`
	Public        bool            `json:"public"`
}

// CreateGoal opens a new funding goal. The target must be positive whenever
// contributions are enabled, and the target product must exist.
func (gs *GoalService) CreateGoal(ctx context.Context, req *CreateGoalRequest) (*models.FundingGoal, error) {
	ctx, span := util.StartSpan(ctx, "GoalService.CreateGoal")
	defer span.End()

	if !req.TargetAmount.IsPositive() {
		return nil, fmt.Errorf("target amount must be positive: %w", ErrInvalidGoal)
	}

	product, err := gs.store.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	if product == nil {
		return nil, fmt.Errorf("product %d: %w", req.ProductID, ErrNotFound)
	}

	goal := &models.FundingGoal{
		BeneficiaryID:        req.BeneficiaryID,
		ProductID:            req.ProductID,
		TargetAmount:         req.TargetAmount,
		Description:          req.Description,
		Public:               req.Public,
		ContributionsEnabled: true,
		Status:               models.GoalStatusOpen,
	}

	if err := gs.store.CreateGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("failed to create goal: %w", err)
	}

	gs.logger.Info("Goal created",
		zap.Int64("goal_id", goal.ID),
		zap.Int64("beneficiary_id", goal.BeneficiaryID),
		zap.String("target", goal.TargetAmount.String()))

	return goal, nil
}

// GetGoal retrieves a goal by ID.
func (gs *GoalService) GetGoal(ctx context.Context, goalID int64) (*models.FundingGoal, error) {
	goal, err := gs.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load goal: %w", err)
	}
	if goal == nil {
		return nil, fmt.Errorf("goal %d: %w", goalID, ErrNotFound)
	}
	return goal, nil
}

// SetContributionsEnabled toggles whether a goal accepts new pledges. Only
// open goals can be toggled.
func (gs *GoalService) SetContributionsEnabled(ctx context.Context, goalID int64, enabled bool) error {
	ok, err := gs.store.SetContributionsEnabled(ctx, goalID, enabled)
	if err != nil {
		return fmt.Errorf("failed to update goal: %w", err)
	}
	if !ok {
		goal, err := gs.store.GetGoal(ctx, goalID)
		if err != nil {
			return fmt.Errorf("failed to load goal: %w", err)
		}
		if goal == nil {
			return fmt.Errorf("goal %d: %w", goalID, ErrNotFound)
		}
		return fmt.Errorf("goal %d is closed: %w", goalID, ErrInvalidState)
	}

	gs.logger.Info("Goal contributions toggled",
		zap.Int64("goal_id", goalID), zap.Bool("enabled", enabled))
	return nil
}

// DeleteGoal removes an open goal before conversion, cascading its pledges.
// A closed goal cannot be deleted; its conversion record must survive.
func (gs *GoalService) DeleteGoal(ctx context.Context, goalID int64) error {
	ok, err := gs.store.DeleteGoal(ctx, goalID)
	if err != nil {
		return fmt.Errorf("failed to delete goal: %w", err)
	}
	if !ok {
		goal, err := gs.store.GetGoal(ctx, goalID)
		if err != nil {
			return fmt.Errorf("failed to load goal: %w", err)
		}
		if goal == nil {
			return fmt.Errorf("goal %d: %w", goalID, ErrNotFound)
		}
		return fmt.Errorf("goal %d is closed: %w", goalID, ErrInvalidState)
	}

	gs.logger.Info("Goal deleted", zap.Int64("goal_id", goalID))
	return nil
}
