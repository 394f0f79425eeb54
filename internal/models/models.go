package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product represents a product in the catalog
type Product struct {
	ID        int64           `db:"id" json:"id"`
	SKU       string          `db:"sku" json:"sku"`
	Name      string          `db:"name" json:"name"`
	Price     decimal.Decimal `db:"price" json:"price"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Inventory represents product stock
type Inventory struct {
	ProductID int64     `db:"product_id" json:"product_id"`
	Available int       `db:"available" json:"available"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FundingGoal represents one product a beneficiary wants crowd-funded.
// The running total is never stored on the goal; it is always derived by
// summing settled pledges.
type FundingGoal struct {
	ID                   int64           `db:"id" json:"id"`
	BeneficiaryID        int64           `db:"beneficiary_id" json:"beneficiary_id"`
	ProductID            int64           `db:"product_id" json:"product_id"`
	TargetAmount         decimal.Decimal `db:"target_amount" json:"target_amount"`
	Description          string          `db:"description" json:"description,omitempty"`
	Public               bool            `db:"public" json:"public"`
	ContributionsEnabled bool            `db:"contributions_enabled" json:"contributions_enabled"`
	Status               string          `db:"status" json:"status"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// Pledge represents one contribution toward a funding goal
type Pledge struct {
	ID            int64           `db:"id" json:"id"`
	GoalID        int64           `db:"goal_id" json:"goal_id"`
	ContributorID int64           `db:"contributor_id" json:"contributor_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Message       string          `db:"message" json:"message,omitempty"`
	Status        string          `db:"status" json:"status"`
	SettlementRef string          `db:"settlement_ref" json:"settlement_ref,omitempty"`
	OrderID       *int64          `db:"order_id" json:"order_id,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Order represents the order produced when a goal is funded
type Order struct {
	ID            int64           `db:"id" json:"id"`
	BeneficiaryID int64           `db:"beneficiary_id" json:"beneficiary_id"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem represents a line item in an order
type OrderItem struct {
	ID        int64           `db:"id" json:"id"`
	OrderID   int64           `db:"order_id" json:"order_id"`
	ProductID int64           `db:"product_id" json:"product_id"`
	Quantity  int             `db:"quantity" json:"quantity"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
}

// ConversionResult records the outcome of converting a funded goal into an
// order. GoalID is a weak reference: the goal may be archived afterwards
// while the conversion record survives for audit.
type ConversionResult struct {
	ID               int64           `db:"id" json:"id"`
	GoalID           *int64          `db:"goal_id" json:"goal_id,omitempty"`
	OrderID          int64           `db:"order_id" json:"order_id"`
	TotalCollected   decimal.Decimal `db:"total_collected" json:"total_collected"`
	ContributorCount int             `db:"contributor_count" json:"contributor_count"`
	PledgeCount      int             `db:"pledge_count" json:"pledge_count"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`

	// PledgeIDs lists the consumed pledges; derived, not a column.
	PledgeIDs []int64 `db:"-" json:"pledge_ids,omitempty"`
}

// Goal statuses
const (
	GoalStatusOpen   = "OPEN"
	GoalStatusClosed = "CLOSED"
)

// Pledge statuses
const (
	PledgeStatusPending   = "PENDING"
	PledgeStatusSettled   = "SETTLED"
	PledgeStatusConsumed  = "CONSUMED"
	PledgeStatusCancelled = "CANCELLED"
	PledgeStatusRefunded  = "REFUNDED"
)

// Order statuses
const (
	OrderStatusPaid = "PAID"
)

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
