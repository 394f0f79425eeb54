package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePledgeSubmitted    = "PLEDGE_SUBMITTED"
	EventTypePledgeSettled      = "PLEDGE_SETTLED"
	EventTypePledgeCancelled    = "PLEDGE_CANCELLED"
	EventTypeGoalFunded         = "GOAL_FUNDED"
	EventTypeContributionThanks = "CONTRIBUTION_THANKS"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent builds the common event envelope
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PledgeSubmittedEvent published when a pledge enters the ledger
type PledgeSubmittedEvent struct {
	BaseEvent
	PledgeID      int64           `json:"pledge_id"`
	GoalID        int64           `json:"goal_id"`
	ContributorID int64           `json:"contributor_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// PledgeSettledEvent published when payment for a pledge clears
type PledgeSettledEvent struct {
	BaseEvent
	PledgeID      int64           `json:"pledge_id"`
	GoalID        int64           `json:"goal_id"`
	ContributorID int64           `json:"contributor_id"`
	Amount        decimal.Decimal `json:"amount"`
	SettlementRef string          `json:"settlement_ref"`
}

// PledgeCancelledEvent published when payment is declined or reversed
type PledgeCancelledEvent struct {
	BaseEvent
	PledgeID int64  `json:"pledge_id"`
	GoalID   int64  `json:"goal_id"`
	Reason   string `json:"reason"`
}

// GoalFundedEvent notifies the beneficiary that their goal converted
type GoalFundedEvent struct {
	BaseEvent
	GoalID           int64           `json:"goal_id"`
	BeneficiaryID    int64           `json:"beneficiary_id"`
	OrderID          int64           `json:"order_id"`
	TotalCollected   decimal.Decimal `json:"total_collected"`
	ContributorCount int             `json:"contributor_count"`
}

// ContributionThanksEvent acknowledges one contributor after conversion
type ContributionThanksEvent struct {
	BaseEvent
	PledgeID      int64           `json:"pledge_id"`
	GoalID        int64           `json:"goal_id"`
	ContributorID int64           `json:"contributor_id"`
	OrderID       int64           `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
}
