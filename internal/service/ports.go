package service

import (
	"context"
	"time"

	"pledge-service/internal/models"

	"github.com/shopspring/decimal"
)

// GoalStore is the persistence boundary of the contribution engine. Lookup
// methods return (nil, nil) when the row does not exist; conditional state
// transitions return (nil, nil) when no row matched the expected state.
type GoalStore interface {
	CreateGoal(ctx context.Context, goal *models.FundingGoal) error
	GetGoal(ctx context.Context, goalID int64) (*models.FundingGoal, error)
	DeleteGoal(ctx context.Context, goalID int64) (bool, error)
	SetContributionsEnabled(ctx context.Context, goalID int64, enabled bool) (bool, error)

	GetProduct(ctx context.Context, productID int64) (*models.Product, error)

	CreatePledge(ctx context.Context, pledge *models.Pledge) error
	GetPledge(ctx context.Context, pledgeID int64) (*models.Pledge, error)
	MarkPledgeSettled(ctx context.Context, pledgeID int64, settlementRef string) (*models.Pledge, error)
	MarkPledgeCancelled(ctx context.Context, pledgeID int64) (*models.Pledge, error)
	MarkPledgeRefunded(ctx context.Context, pledgeID int64) (*models.Pledge, error)
	ListPledges(ctx context.Context, goalID int64) ([]models.Pledge, error)

	// TotalSettled derives the running total by summing settled pledge rows.
	// The total is never cached as a counter.
	TotalSettled(ctx context.Context, goalID int64) (decimal.Decimal, error)

	// LockGoal opens the exclusive critical section for one goal. The goal
	// row stays locked until Commit or Rollback.
	LockGoal(ctx context.Context, goalID int64) (GoalTx, error)
}

// GoalTx is the transactional view held during materialization. All mutations
// are atomic: they take effect on Commit and vanish on Rollback.
type GoalTx interface {
	// Goal returns the locked goal row as read at lock acquisition.
	Goal() *models.FundingGoal
	SettledPledges(ctx context.Context) ([]models.Pledge, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	// DecrementInventory returns false when available stock is short.
	DecrementInventory(ctx context.Context, productID int64, qty int) (bool, error)
	ConsumePledges(ctx context.Context, pledgeIDs []int64, orderID int64) error
	CloseGoal(ctx context.Context) error
	CreateConversion(ctx context.Context, conv *models.ConversionResult) error
	Commit() error
	Rollback() error
}

// PledgeEvents publishes ledger lifecycle events. Publish failures are
// logged by callers, never propagated.
type PledgeEvents interface {
	PublishPledgeSubmitted(ctx context.Context, event *models.PledgeSubmittedEvent) error
	PublishPledgeSettled(ctx context.Context, event *models.PledgeSettledEvent) error
	PublishPledgeCancelled(ctx context.Context, event *models.PledgeCancelledEvent) error
}

// NotificationSink delivers post-conversion notifications. Best-effort: a
// failed notification never rolls back a committed conversion.
type NotificationSink interface {
	NotifyGoalFunded(ctx context.Context, event *models.GoalFundedEvent) error
	NotifyContributionThanks(ctx context.Context, event *models.ContributionThanksEvent) error
}

// GoalLocker is an advisory distributed lock scoped to one goal, used to
// fail fast before taking the database row lock.
type GoalLocker interface {
	AcquireGoalLock(ctx context.Context, goalID int64, ttl time.Duration) (token string, ok bool, err error)
	ReleaseGoalLock(ctx context.Context, goalID int64, token string) error
}

// ProgressCache caches derived funding progress for read paths. Advisory
// only; the database aggregate stays authoritative.
type ProgressCache interface {
	SetGoalProgress(ctx context.Context, goalID int64, total, target decimal.Decimal) error
	GetGoalProgress(ctx context.Context, goalID int64) (total, target decimal.Decimal, ok bool, err error)
}
