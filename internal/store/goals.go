package store

import (
	"context"
	"database/sql"
	"fmt"

	"pledge-service/internal/models"
	"pledge-service/internal/service"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// CreateGoal creates a new funding goal
func (s *Store) CreateGoal(ctx context.Context, goal *models.FundingGoal) error {
	query := `
		INSERT INTO funding_goals (beneficiary_id, product_id, target_amount, description, public, contributions_enabled, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, goal, query,
		goal.BeneficiaryID, goal.ProductID, goal.TargetAmount, goal.Description,
		goal.Public, goal.ContributionsEnabled, goal.Status)
}

// GetGoal retrieves a goal by ID; returns (nil, nil) when absent
func (s *Store) GetGoal(ctx context.Context, goalID int64) (*models.FundingGoal, error) {
	var goal models.FundingGoal
	err := s.db.GetContext(ctx, &goal, "SELECT * FROM funding_goals WHERE id = $1", goalID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &goal, nil
}

// DeleteGoal removes an open goal and cascades its pledges. Returns false
// when the goal is absent or already closed.
func (s *Store) DeleteGoal(ctx context.Context, goalID int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM funding_goals WHERE id = $1 AND status = $2",
		goalID, models.GoalStatusOpen)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pledges WHERE goal_id = $1", goalID); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

// SetContributionsEnabled toggles pledge acceptance on an open goal
func (s *Store) SetContributionsEnabled(ctx context.Context, goalID int64, enabled bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE funding_goals SET contributions_enabled = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		enabled, goalID, models.GoalStatusOpen)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// CreatePledge creates a new pledge
func (s *Store) CreatePledge(ctx context.Context, pledge *models.Pledge) error {
	query := `
		INSERT INTO pledges (goal_id, contributor_id, amount, message, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, pledge, query,
		pledge.GoalID, pledge.ContributorID, pledge.Amount, pledge.Message, pledge.Status)
}

// GetPledge retrieves a pledge by ID; returns (nil, nil) when absent
func (s *Store) GetPledge(ctx context.Context, pledgeID int64) (*models.Pledge, error) {
	var pledge models.Pledge
	err := s.db.GetContext(ctx, &pledge, "SELECT * FROM pledges WHERE id = $1", pledgeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pledge, nil
}

// MarkPledgeSettled transitions PENDING -> SETTLED as an atomic check-and-set.
// Returns (nil, nil) when the pledge is absent or not pending.
func (s *Store) MarkPledgeSettled(ctx context.Context, pledgeID int64, settlementRef string) (*models.Pledge, error) {
	return s.transitionPledge(ctx, `
		UPDATE pledges SET status = $1, settlement_ref = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING *`,
		models.PledgeStatusSettled, settlementRef, pledgeID, models.PledgeStatusPending)
}

// MarkPledgeCancelled transitions PENDING -> CANCELLED
func (s *Store) MarkPledgeCancelled(ctx context.Context, pledgeID int64) (*models.Pledge, error) {
	return s.transitionPledge(ctx, `
		UPDATE pledges SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING *`,
		models.PledgeStatusCancelled, pledgeID, models.PledgeStatusPending)
}

// MarkPledgeRefunded transitions SETTLED -> REFUNDED
func (s *Store) MarkPledgeRefunded(ctx context.Context, pledgeID int64) (*models.Pledge, error) {
	return s.transitionPledge(ctx, `
		UPDATE pledges SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING *`,
		models.PledgeStatusRefunded, pledgeID, models.PledgeStatusSettled)
}

func (s *Store) transitionPledge(ctx context.Context, query string, args ...interface{}) (*models.Pledge, error) {
	var pledge models.Pledge
	err := s.db.GetContext(ctx, &pledge, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pledge, nil
}

// ListPledges retrieves all pledges for a goal in settlement-timestamp order
func (s *Store) ListPledges(ctx context.Context, goalID int64) ([]models.Pledge, error) {
	var pledges []models.Pledge
	err := s.db.SelectContext(ctx, &pledges,
		"SELECT * FROM pledges WHERE goal_id = $1 ORDER BY updated_at, id", goalID)
	return pledges, err
}

// TotalSettled derives the running total by summing settled pledge rows.
// Never cached: correctness under concurrent submission comes from the sum
// being order-independent.
func (s *Store) TotalSettled(ctx context.Context, goalID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(amount), 0) FROM pledges WHERE goal_id = $1 AND status = $2",
		goalID, models.PledgeStatusSettled)
	return total, err
}

// LockGoal opens the materialization critical section: a transaction holding
// a row-level lock on the goal until Commit or Rollback.
func (s *Store) LockGoal(ctx context.Context, goalID int64) (service.GoalTx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	var goal models.FundingGoal
	err = tx.GetContext(ctx, &goal,
		"SELECT * FROM funding_goals WHERE id = $1 FOR UPDATE", goalID)
	if err == sql.ErrNoRows {
		_ = tx.Rollback()
		return nil, fmt.Errorf("goal %d: %w", goalID, service.ErrNotFound)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to lock goal: %w", err)
	}

	return &GoalTx{tx: tx, goal: &goal}, nil
}

// GoalTx implements the exclusive materialization transaction over a locked
// goal row.
type GoalTx struct {
	tx   *sqlx.Tx
	goal *models.FundingGoal
}

// Goal returns the locked goal row as read at lock acquisition
func (gt *GoalTx) Goal() *models.FundingGoal {
	return gt.goal
}

// SettledPledges lists the goal's settled pledges inside the transaction
func (gt *GoalTx) SettledPledges(ctx context.Context) ([]models.Pledge, error) {
	var pledges []models.Pledge
	err := gt.tx.SelectContext(ctx, &pledges,
		"SELECT * FROM pledges WHERE goal_id = $1 AND status = $2 ORDER BY updated_at, id",
		gt.goal.ID, models.PledgeStatusSettled)
	return pledges, err
}

// CreateOrder creates the materialized order
func (gt *GoalTx) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (beneficiary_id, total_amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	return gt.tx.GetContext(ctx, order, query,
		order.BeneficiaryID, order.TotalAmount, order.Status)
}

// CreateOrderItem attaches a line item to the order
func (gt *GoalTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	return gt.tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.Quantity, item.UnitPrice)
}

// DecrementInventory deducts stock with a non-negative guard. Returns false
// when available stock is short; the caller aborts the transaction.
func (gt *GoalTx) DecrementInventory(ctx context.Context, productID int64, qty int) (bool, error) {
	res, err := gt.tx.ExecContext(ctx,
		"UPDATE inventory SET available = available - $1, updated_at = NOW() WHERE product_id = $2 AND available >= $1",
		qty, productID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ConsumePledges marks settled pledges as consumed and links them to the order
func (gt *GoalTx) ConsumePledges(ctx context.Context, pledgeIDs []int64, orderID int64) error {
	res, err := gt.tx.ExecContext(ctx,
		"UPDATE pledges SET status = $1, order_id = $2, updated_at = NOW() WHERE id = ANY($3) AND status = $4",
		models.PledgeStatusConsumed, orderID, pq.Array(pledgeIDs), models.PledgeStatusSettled)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != int64(len(pledgeIDs)) {
		return fmt.Errorf("expected to consume %d pledges, consumed %d", len(pledgeIDs), affected)
	}
	return nil
}

// CloseGoal irreversibly closes the locked goal
func (gt *GoalTx) CloseGoal(ctx context.Context) error {
	res, err := gt.tx.ExecContext(ctx,
		"UPDATE funding_goals SET status = $1, contributions_enabled = false, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.GoalStatusClosed, gt.goal.ID, models.GoalStatusOpen)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("goal %d was not open", gt.goal.ID)
	}
	return nil
}

// CreateConversion records the conversion result
func (gt *GoalTx) CreateConversion(ctx context.Context, conv *models.ConversionResult) error {
	query := `
		INSERT INTO conversion_results (goal_id, order_id, total_collected, contributor_count, pledge_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	row := gt.tx.QueryRowxContext(ctx, query,
		conv.GoalID, conv.OrderID, conv.TotalCollected, conv.ContributorCount, conv.PledgeCount)
	return row.Scan(&conv.ID, &conv.CreatedAt)
}

// Commit commits the conversion and releases the goal lock
func (gt *GoalTx) Commit() error {
	return gt.tx.Commit()
}

// Rollback aborts the conversion; a no-op after Commit
func (gt *GoalTx) Rollback() error {
	err := gt.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}
