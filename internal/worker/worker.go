package worker

import (
	"context"
	"errors"

	"pledge-service/internal/broker"
	"pledge-service/internal/models"
	"pledge-service/internal/service"
	"pledge-service/internal/store"
	"pledge-service/internal/util"

	"go.uber.org/zap"
)

// PaymentWorker consumes PledgeSubmitted events and runs each pledge through
// the payment collaborator.
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, payments *service.PaymentService, st *store.Store) *PaymentWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPledgeSubmitted(func(ctx context.Context, event *models.PledgeSubmittedEvent) error {
		processed, err := st.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return err
		}
		if processed {
			logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}

		if err := payments.ProcessPledgePayment(ctx, event.PledgeID); err != nil {
			return err
		}

		if err := st.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			logger.Error("Failed to mark event processed", zap.Error(err))
		}
		return nil
	})

	return &PaymentWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the payment worker
func (pw *PaymentWorker) Start(ctx context.Context) error {
	pw.logger.Info("Starting payment worker")
	return pw.consumer.StartConsuming(ctx, pw.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	pw.logger.Info("Stopping payment worker")
	return pw.consumer.Close()
}

// SettlementWorker consumes PledgeSettled events and drives the reconciler:
// every settlement re-evaluates the goal and converts it when the target is
// crossed.
type SettlementWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(consumer *broker.Consumer, reconciler *service.GoalReconciler, st *store.Store) *SettlementWorker {
	logger := util.GetLogger()
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPledgeSettled(func(ctx context.Context, event *models.PledgeSettledEvent) error {
		processed, err := st.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return err
		}
		if processed {
			logger.Info("Event already processed", zap.String("event_id", event.EventID))
			return nil
		}

		result, outcome, err := reconciler.EvaluateAndMaterialize(ctx, event.GoalID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrConcurrencyConflict):
				// Another settlement is converting this goal right now; it
				// will finish the job.
				logger.Info("Goal conversion in progress elsewhere",
					zap.Int64("goal_id", event.GoalID))
			case errors.Is(err, service.ErrInsufficientInventory):
				// Pledges stay settled; retried once stock is replenished.
				logger.Error("Goal funded but product out of stock",
					zap.Int64("goal_id", event.GoalID), zap.Error(err))
			default:
				return err
			}
		} else if result != nil {
			logger.Info("Goal converted to order",
				zap.Int64("goal_id", event.GoalID),
				zap.Int64("order_id", result.OrderID))
		} else {
			logger.Debug("Goal evaluated",
				zap.Int64("goal_id", event.GoalID),
				zap.String("outcome", string(outcome)))
		}

		if err := st.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
			logger.Error("Failed to mark event processed", zap.Error(err))
		}
		return nil
	})

	return &SettlementWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       logger,
	}
}

// Start starts the settlement worker
func (sw *SettlementWorker) Start(ctx context.Context) error {
	sw.logger.Info("Starting settlement worker")
	return sw.consumer.StartConsuming(ctx, sw.eventHandler.HandleMessage)
}

// Stop stops the settlement worker
func (sw *SettlementWorker) Stop() error {
	sw.logger.Info("Stopping settlement worker")
	return sw.consumer.Close()
}
