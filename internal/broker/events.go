package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"pledge-service/internal/models"
	"pledge-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes ledger lifecycle events and serves as the
// best-effort notification sink for conversion outcomes.
type EventPublisher struct {
	pledges       *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(pledges, notifications *Producer) *EventPublisher {
	return &EventPublisher{
		pledges:       pledges,
		notifications: notifications,
	}
}

// PublishPledgeSubmitted publishes PledgeSubmitted event
func (ep *EventPublisher) PublishPledgeSubmitted(ctx context.Context, event *models.PledgeSubmittedEvent) error {
	key := fmt.Sprintf("goal-%d", event.GoalID)
	return ep.pledges.PublishEvent(ctx, key, event)
}

// PublishPledgeSettled publishes PledgeSettled event
func (ep *EventPublisher) PublishPledgeSettled(ctx context.Context, event *models.PledgeSettledEvent) error {
	key := fmt.Sprintf("goal-%d", event.GoalID)
	return ep.pledges.PublishEvent(ctx, key, event)
}

// PublishPledgeCancelled publishes PledgeCancelled event
func (ep *EventPublisher) PublishPledgeCancelled(ctx context.Context, event *models.PledgeCancelledEvent) error {
	key := fmt.Sprintf("goal-%d", event.GoalID)
	return ep.pledges.PublishEvent(ctx, key, event)
}

// NotifyGoalFunded notifies the beneficiary that their goal converted
func (ep *EventPublisher) NotifyGoalFunded(ctx context.Context, event *models.GoalFundedEvent) error {
	key := fmt.Sprintf("user-%d", event.BeneficiaryID)
	return ep.notifications.PublishEvent(ctx, key, event)
}

// NotifyContributionThanks acknowledges one contributor after conversion
func (ep *EventPublisher) NotifyContributionThanks(ctx context.Context, event *models.ContributionThanksEvent) error {
	key := fmt.Sprintf("user-%d", event.ContributorID)
	return ep.notifications.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming pledge events to registered handlers
type EventHandler struct {
	logger            *zap.Logger
	onPledgeSubmitted func(context.Context, *models.PledgeSubmittedEvent) error
	onPledgeSettled   func(context.Context, *models.PledgeSettledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPledgeSubmitted registers a handler for PledgeSubmitted events
func (eh *EventHandler) OnPledgeSubmitted(handler func(context.Context, *models.PledgeSubmittedEvent) error) {
	eh.onPledgeSubmitted = handler
}

// OnPledgeSettled registers a handler for PledgeSettled events
func (eh *EventHandler) OnPledgeSettled(handler func(context.Context, *models.PledgeSettledEvent) error) {
	eh.onPledgeSettled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePledgeSubmitted:
		if eh.onPledgeSubmitted != nil {
			var event models.PledgeSubmittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PledgeSubmitted event: %w", err)
			}
			return eh.onPledgeSubmitted(ctx, &event)
		}

	case models.EventTypePledgeSettled:
		if eh.onPledgeSettled != nil {
			var event models.PledgeSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PledgeSettled event: %w", err)
			}
			return eh.onPledgeSettled(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
