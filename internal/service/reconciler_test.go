package service

import (
	"context"
	"testing"

	"pledge-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReconciler(store *memStore) *GoalReconciler {
	materializer := NewOrderMaterializer(store, nil, nil, OrderTotalTarget, 0)
	return NewGoalReconciler(store, nil, materializer)
}

func TestEvaluateBelowTarget(t *testing.T) {
	store := newMemStore()
	reconciler := newReconciler(store)

	seedProduct(store, 1, "50.00", 1)
	goal := seedGoal(store, 100, 1, "50.00")
	seedSettledPledge(store, goal.ID, 200, "20.00")

	outcome, err := reconciler.Evaluate(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBelowTarget, outcome)
}

func TestEvaluateExactTargetCountsAsMet(t *testing.T) {
	store := newMemStore()
	reconciler := newReconciler(store)

	seedProduct(store, 1, "50.00", 1)
	goal := seedGoal(store, 100, 1, "50.00")
	seedSettledPledge(store, goal.ID, 200, "20.00")
	seedSettledPledge(store, goal.ID, 201, "30.00")

	outcome, err := reconciler.Evaluate(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTargetMet, outcome)
}

func TestEvaluateClosedGoalSkipsRecomputation(t *testing.T) {
	store := newMemStore()
	reconciler := newReconciler(store)

	seedProduct(store, 1, "50.00", 1)
	goal := seedGoal(store, 100, 1, "50.00")
	store.goals[goal.ID].Status = models.GoalStatusClosed

	before := store.totalCalls
	outcome, err := reconciler.Evaluate(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConverted, outcome)
	assert.Equal(t, before, store.totalCalls, "closed goal must short-circuit without recomputing")
}

func TestEvaluateMissingGoal(t *testing.T) {
	store := newMemStore()
	reconciler := newReconciler(store)

	_, err := reconciler.Evaluate(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluateAndMaterializeFullScenario(t *testing.T) {
	store := newMemStore()
	events := &eventsRecorder{}
	ledger := NewContributionLedger(store, events)
	reconciler := newReconciler(store)

	seedProduct(store, 1, "50.00", 1)
	goal := seedGoal(store, 100, 1, "50.00")

	// Contributor A settles 20.00: below target.
	a, err := ledger.SubmitPledge(context.Background(), &SubmitPledgeRequest{
		GoalID: goal.ID, ContributorID: 200, Amount: decimal.RequireFromString("20.00"),
	})
	require.NoError(t, err)
	_, err = ledger.SettlePledge(context.Background(), a.ID, "TXN-a")
	require.NoError(t, err)

	result, outcome, err := reconciler.EvaluateAndMaterialize(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeBelowTarget, outcome)
	assert.Nil(t, result)

	// Contributor B settles 30.00: target met, conversion fires.
	b, err := ledger.SubmitPledge(context.Background(), &SubmitPledgeRequest{
		GoalID: goal.ID, ContributorID: 201, Amount: decimal.RequireFromString("30.00"),
	})
	require.NoError(t, err)
	_, err = ledger.SettlePledge(context.Background(), b.ID, "TXN-b")
	require.NoError(t, err)

	result, outcome, err = reconciler.EvaluateAndMaterialize(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTargetMet, outcome)
	require.NotNil(t, result)
	assert.True(t, result.TotalCollected.Equal(decimal.RequireFromString("50.00")))
	assert.Equal(t, 2, result.ContributorCount)

	// Repeated evaluation is idempotent after conversion.
	result, outcome, err = reconciler.EvaluateAndMaterialize(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyConverted, outcome)
	assert.Nil(t, result)
	assert.Len(t, store.orders, 1, "no second order may ever be created")
}

func TestProgressFallsBackToStore(t *testing.T) {
	store := newMemStore()
	reconciler := newReconciler(store)

	seedProduct(store, 1, "50.00", 1)
	goal := seedGoal(store, 100, 1, "50.00")
	seedSettledPledge(store, goal.ID, 200, "20.00")

	progress, err := reconciler.Progress(context.Background(), goal.ID)
	require.NoError(t, err)
	assert.True(t, progress.TotalSettled.Equal(decimal.RequireFromString("20.00")))
	assert.True(t, progress.Remaining.Equal(decimal.RequireFromString("30.00")))
}
