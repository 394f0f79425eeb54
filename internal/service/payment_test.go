package service

import (
	"context"
	"testing"

	"pledge-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitPending(t *testing.T, store *memStore, ledger *ContributionLedger, goalID int64) *models.Pledge {
	t.Helper()
	pledge, err := ledger.SubmitPledge(context.Background(), &SubmitPledgeRequest{
		GoalID:        goalID,
		ContributorID: 200,
		Amount:        decimal.RequireFromString("20.00"),
	})
	require.NoError(t, err)
	return pledge
}

func TestProcessPledgePaymentSettlesOnSuccess(t *testing.T) {
	store := newMemStore()
	ledger := NewContributionLedger(store, &eventsRecorder{})
	payments := NewPaymentService(ledger, 1.0, 0)

	seedProduct(store, 1, "50.00", 1)
	goal := seedGoal(store, 100, 1, "50.00")
	pledge := submitPending(t, store, ledger, goal.ID)

	require.NoError(t, payments.ProcessPledgePayment(context.Background(), pledge.ID))

	settled, err := store.GetPledge(context.Background(), pledge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PledgeStatusSettled, settled.Status)
	assert.NotEmpty(t, settled.SettlementRef)
}

func TestProcessPledgePaymentCancelsOnDecline(t *testing.T) {
	store := newMemStore()
	ledger := NewContributionLedger(store, &eventsRecorder{})
	payments := NewPaymentService(ledger, 0.0, 0)

	seedProduct(store, 1, "50.00", 1)
	goal := seedGoal(store, 100, 1, "50.00")
	pledge := submitPending(t, store, ledger, goal.ID)

	require.NoError(t, payments.ProcessPledgePayment(context.Background(), pledge.ID))

	cancelled, err := store.GetPledge(context.Background(), pledge.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PledgeStatusCancelled, cancelled.Status)

	total, err := ledger.TotalSettled(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}
