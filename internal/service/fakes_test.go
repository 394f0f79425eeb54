package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"pledge-service/internal/models"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory GoalStore. LockGoal takes a real per-goal mutex so
// concurrency tests exercise the same mutual exclusion the row lock provides;
// lockHold widens the critical section to make races observable.
type memStore struct {
	mu            sync.Mutex
	goals         map[int64]*models.FundingGoal
	pledges       map[int64]*models.Pledge
	products      map[int64]*models.Product
	inventory     map[int64]int
	orders        map[int64]*models.Order
	orderItems    []models.OrderItem
	conversions   []models.ConversionResult
	goalMu        map[int64]*sync.Mutex
	nextID        int64
	lockHold      time.Duration
	failDecrement bool
	totalCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		goals:     make(map[int64]*models.FundingGoal),
		pledges:   make(map[int64]*models.Pledge),
		products:  make(map[int64]*models.Product),
		inventory: make(map[int64]int),
		orders:    make(map[int64]*models.Order),
		goalMu:    make(map[int64]*sync.Mutex),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) CreateGoal(_ context.Context, goal *models.FundingGoal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal.ID = s.id()
	goal.CreatedAt = time.Now()
	goal.UpdatedAt = goal.CreatedAt
	cp := *goal
	s.goals[goal.ID] = &cp
	return nil
}

func (s *memStore) GetGoal(_ context.Context, goalID int64) (*models.FundingGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[goalID]
	if !ok {
		return nil, nil
	}
	cp := *goal
	return &cp, nil
}

func (s *memStore) DeleteGoal(_ context.Context, goalID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[goalID]
	if !ok || goal.Status != models.GoalStatusOpen {
		return false, nil
	}
	delete(s.goals, goalID)
	for id, p := range s.pledges {
		if p.GoalID == goalID {
			delete(s.pledges, id)
		}
	}
	return true, nil
}

func (s *memStore) SetContributionsEnabled(_ context.Context, goalID int64, enabled bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	goal, ok := s.goals[goalID]
	if !ok || goal.Status != models.GoalStatusOpen {
		return false, nil
	}
	goal.ContributionsEnabled = enabled
	goal.UpdatedAt = time.Now()
	return true, nil
}

func (s *memStore) GetProduct(_ context.Context, productID int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return nil, nil
	}
	cp := *product
	return &cp, nil
}

func (s *memStore) CreatePledge(_ context.Context, pledge *models.Pledge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pledge.ID = s.id()
	pledge.CreatedAt = time.Now()
	pledge.UpdatedAt = pledge.CreatedAt
	cp := *pledge
	s.pledges[pledge.ID] = &cp
	return nil
}

func (s *memStore) GetPledge(_ context.Context, pledgeID int64) (*models.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pledge, ok := s.pledges[pledgeID]
	if !ok {
		return nil, nil
	}
	cp := *pledge
	return &cp, nil
}

func (s *memStore) MarkPledgeSettled(_ context.Context, pledgeID int64, settlementRef string) (*models.Pledge, error) {
	return s.transition(pledgeID, models.PledgeStatusPending, func(p *models.Pledge) {
		p.Status = models.PledgeStatusSettled
		p.SettlementRef = settlementRef
	})
}

func (s *memStore) MarkPledgeCancelled(_ context.Context, pledgeID int64) (*models.Pledge, error) {
	return s.transition(pledgeID, models.PledgeStatusPending, func(p *models.Pledge) {
		p.Status = models.PledgeStatusCancelled
	})
}

func (s *memStore) MarkPledgeRefunded(_ context.Context, pledgeID int64) (*models.Pledge, error) {
	return s.transition(pledgeID, models.PledgeStatusSettled, func(p *models.Pledge) {
		p.Status = models.PledgeStatusRefunded
	})
}

func (s *memStore) transition(pledgeID int64, from string, mutate func(*models.Pledge)) (*models.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pledge, ok := s.pledges[pledgeID]
	if !ok || pledge.Status != from {
		return nil, nil
	}
	mutate(pledge)
	pledge.UpdatedAt = time.Now()
	cp := *pledge
	return &cp, nil
}

func (s *memStore) ListPledges(_ context.Context, goalID int64) ([]models.Pledge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pledgesOf(goalID, ""), nil
}

func (s *memStore) TotalSettled(_ context.Context, goalID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCalls++
	total := decimal.Zero
	for _, p := range s.pledges {
		if p.GoalID == goalID && p.Status == models.PledgeStatusSettled {
			total = total.Add(p.Amount)
		}
	}
	return total, nil
}

// pledgesOf returns copies filtered by status ("" for all); caller holds s.mu.
func (s *memStore) pledgesOf(goalID int64, status string) []models.Pledge {
	var out []models.Pledge
	for _, p := range s.pledges {
		if p.GoalID == goalID && (status == "" || p.Status == status) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) LockGoal(_ context.Context, goalID int64) (GoalTx, error) {
	s.mu.Lock()
	gm, ok := s.goalMu[goalID]
	if !ok {
		gm = &sync.Mutex{}
		s.goalMu[goalID] = gm
	}
	s.mu.Unlock()

	gm.Lock()

	s.mu.Lock()
	goal, ok := s.goals[goalID]
	if !ok {
		s.mu.Unlock()
		gm.Unlock()
		return nil, fmt.Errorf("goal %d: %w", goalID, ErrNotFound)
	}
	cp := *goal
	s.mu.Unlock()

	if s.lockHold > 0 {
		time.Sleep(s.lockHold)
	}

	return &memTx{s: s, goal: &cp, gm: gm, invDelta: make(map[int64]int)}, nil
}

// memTx stages mutations and applies them on Commit, mirroring transactional
// all-or-nothing semantics.
type memTx struct {
	s        *memStore
	goal     *models.FundingGoal
	gm       *sync.Mutex
	apply    []func()
	invDelta map[int64]int
	done     bool
}

func (tx *memTx) Goal() *models.FundingGoal {
	return tx.goal
}

func (tx *memTx) SettledPledges(_ context.Context) ([]models.Pledge, error) {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	return tx.s.pledgesOf(tx.goal.ID, models.PledgeStatusSettled), nil
}

func (tx *memTx) CreateOrder(_ context.Context, order *models.Order) error {
	tx.s.mu.Lock()
	order.ID = tx.s.id()
	tx.s.mu.Unlock()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	cp := *order
	tx.apply = append(tx.apply, func() {
		tx.s.orders[cp.ID] = &cp
	})
	return nil
}

func (tx *memTx) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	tx.s.mu.Lock()
	item.ID = tx.s.id()
	tx.s.mu.Unlock()
	cp := *item
	tx.apply = append(tx.apply, func() {
		tx.s.orderItems = append(tx.s.orderItems, cp)
	})
	return nil
}

func (tx *memTx) DecrementInventory(_ context.Context, productID int64, qty int) (bool, error) {
	if tx.s.failDecrement {
		return false, nil
	}
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	available := tx.s.inventory[productID] - tx.invDelta[productID]
	if available < qty {
		return false, nil
	}
	tx.invDelta[productID] += qty
	tx.apply = append(tx.apply, func() {
		tx.s.inventory[productID] -= qty
	})
	return true, nil
}

func (tx *memTx) ConsumePledges(_ context.Context, pledgeIDs []int64, orderID int64) error {
	ids := append([]int64(nil), pledgeIDs...)
	tx.apply = append(tx.apply, func() {
		for _, id := range ids {
			if p, ok := tx.s.pledges[id]; ok && p.Status == models.PledgeStatusSettled {
				p.Status = models.PledgeStatusConsumed
				oid := orderID
				p.OrderID = &oid
				p.UpdatedAt = time.Now()
			}
		}
	})
	return nil
}

func (tx *memTx) CloseGoal(_ context.Context) error {
	goalID := tx.goal.ID
	tx.apply = append(tx.apply, func() {
		if g, ok := tx.s.goals[goalID]; ok {
			g.Status = models.GoalStatusClosed
			g.ContributionsEnabled = false
			g.UpdatedAt = time.Now()
		}
	})
	return nil
}

func (tx *memTx) CreateConversion(_ context.Context, conv *models.ConversionResult) error {
	tx.s.mu.Lock()
	conv.ID = tx.s.id()
	tx.s.mu.Unlock()
	conv.CreatedAt = time.Now()
	cp := *conv
	tx.apply = append(tx.apply, func() {
		tx.s.conversions = append(tx.s.conversions, cp)
	})
	return nil
}

func (tx *memTx) Commit() error {
	if tx.done {
		return errors.New("transaction already finished")
	}
	tx.s.mu.Lock()
	for _, fn := range tx.apply {
		fn()
	}
	tx.s.mu.Unlock()
	tx.done = true
	tx.gm.Unlock()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.gm.Unlock()
	return nil
}

// eventsRecorder captures published ledger events.
type eventsRecorder struct {
	mu        sync.Mutex
	submitted []*models.PledgeSubmittedEvent
	settled   []*models.PledgeSettledEvent
	cancelled []*models.PledgeCancelledEvent
}

func (r *eventsRecorder) PublishPledgeSubmitted(_ context.Context, e *models.PledgeSubmittedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, e)
	return nil
}

func (r *eventsRecorder) PublishPledgeSettled(_ context.Context, e *models.PledgeSettledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, e)
	return nil
}

func (r *eventsRecorder) PublishPledgeCancelled(_ context.Context, e *models.PledgeCancelledEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, e)
	return nil
}

// sinkRecorder captures notifications; fail makes every delivery error.
type sinkRecorder struct {
	mu     sync.Mutex
	funded []*models.GoalFundedEvent
	thanks []*models.ContributionThanksEvent
	fail   bool
}

func (r *sinkRecorder) NotifyGoalFunded(_ context.Context, e *models.GoalFundedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("notification sink unavailable")
	}
	r.funded = append(r.funded, e)
	return nil
}

func (r *sinkRecorder) NotifyContributionThanks(_ context.Context, e *models.ContributionThanksEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("notification sink unavailable")
	}
	r.thanks = append(r.thanks, e)
	return nil
}

// fakeLocker is an advisory lock that is either free or busy.
type fakeLocker struct {
	busy bool
}

func (l *fakeLocker) AcquireGoalLock(_ context.Context, _ int64, _ time.Duration) (string, bool, error) {
	if l.busy {
		return "", false, nil
	}
	return "token", true, nil
}

func (l *fakeLocker) ReleaseGoalLock(_ context.Context, _ int64, _ string) error {
	return nil
}

// test seed helpers

func seedProduct(s *memStore, id int64, price string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = &models.Product{
		ID:        id,
		SKU:       fmt.Sprintf("SKU-%d", id),
		Name:      fmt.Sprintf("Product %d", id),
		Price:     decimal.RequireFromString(price),
		CreatedAt: time.Now(),
	}
	s.inventory[id] = stock
}

func seedGoal(s *memStore, beneficiaryID, productID int64, target string) *models.FundingGoal {
	goal := &models.FundingGoal{
		BeneficiaryID:        beneficiaryID,
		ProductID:            productID,
		TargetAmount:         decimal.RequireFromString(target),
		ContributionsEnabled: true,
		Public:               true,
		Status:               models.GoalStatusOpen,
	}
	_ = s.CreateGoal(context.Background(), goal)
	return goal
}

func seedSettledPledge(s *memStore, goalID, contributorID int64, amount string) *models.Pledge {
	pledge := &models.Pledge{
		GoalID:        goalID,
		ContributorID: contributorID,
		Amount:        decimal.RequireFromString(amount),
		Status:        models.PledgeStatusPending,
	}
	_ = s.CreatePledge(context.Background(), pledge)
	settled, _ := s.MarkPledgeSettled(context.Background(), pledge.ID, fmt.Sprintf("TXN-%d", pledge.ID))
	return settled
}
