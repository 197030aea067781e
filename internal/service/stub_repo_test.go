package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
)

// stubRepo is an in-memory repository.Repository for service tests.
type stubRepo struct {
	mu      sync.Mutex
	wallets map[int64]*models.Wallet
	subs    []models.Subscription
	orders  map[uint64]*models.SwapOrder
	nextID  uint64

	createOrderErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		wallets: map[int64]*models.Wallet{},
		orders:  map[uint64]*models.SwapOrder{},
	}
}

func (s *stubRepo) CreateWallet(ctx context.Context, item *models.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = int64(len(s.wallets) + 1)
	}
	s.wallets[item.ID] = item
	return nil
}

func (s *stubRepo) GetWalletByID(ctx context.Context, id int64) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (s *stubRepo) ListWalletsByUser(ctx context.Context, userID int64) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Wallet
	for _, w := range s.wallets {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (s *stubRepo) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.Address == address {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) CreateSubscription(ctx context.Context, item *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == 0 {
		item.ID = uint64(len(s.subs) + 1)
	}
	s.subs = append(s.subs, *item)
	return nil
}

func (s *stubRepo) UpdateSubscription(ctx context.Context, item *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].ID == item.ID {
			s.subs[i] = *item
		}
	}
	return nil
}

func (s *stubRepo) GetSubscriptionByID(ctx context.Context, id uint64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].ID == id {
			cp := s.subs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubRepo) ResetSubscription(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].ID == id {
			s.subs[i] = models.Subscription{
				ID:         id,
				UserID:     s.subs[i].UserID,
				SizingMode: models.SizingSmart,
				Status:     models.SubscriptionIdle,
			}
		}
	}
	return nil
}

func (s *stubRepo) SetSubscriptionStatus(ctx context.Context, id uint64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.subs {
		if s.subs[i].ID == id {
			s.subs[i].Status = status
		}
	}
	return nil
}

func (s *stubRepo) ListRunningLeaderAddresses(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, sub := range s.subs {
		if sub.Status != models.SubscriptionRunning || sub.LeaderAddress == nil {
			continue
		}
		if !seen[*sub.LeaderAddress] {
			seen[*sub.LeaderAddress] = true
			out = append(out, *sub.LeaderAddress)
		}
	}
	return out, nil
}

func (s *stubRepo) ListRunningSubscriptionsByLeader(ctx context.Context, leaderAddress string) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.Status == models.SubscriptionRunning && sub.LeaderAddress != nil && *sub.LeaderAddress == leaderAddress {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, item *models.SwapOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createOrderErr != nil {
		return s.createOrderErr
	}
	s.nextID++
	item.ID = s.nextID
	item.CreatedAt = time.Now().UTC()
	cp := *item
	s.orders[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, id uint64) (*models.SwapOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *stubRepo) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.SwapOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SwapOrder
	for _, o := range s.orders {
		if params.UserID != nil && o.UserID != *params.UserID {
			continue
		}
		if params.Status != nil && o.Status != *params.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (s *stubRepo) ClaimNextOrder(ctx context.Context) (*models.SwapOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *models.SwapOrder
	for _, o := range s.orders {
		if o.Status != models.OrderQueued {
			continue
		}
		if oldest == nil || o.ID < oldest.ID {
			oldest = o
		}
	}
	if oldest == nil {
		return nil, nil
	}
	now := time.Now().UTC()
	oldest.Status = models.OrderProcessing
	oldest.ClaimedAt = &now
	cp := *oldest
	return &cp, nil
}

func (s *stubRepo) FinishOrder(ctx context.Context, id uint64, status string, failCode string, errText *string, txHash *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != models.OrderProcessing || !models.CanTransition(models.OrderProcessing, status) {
		return repository.ErrNotClaimable
	}
	now := time.Now().UTC()
	o.Status = status
	o.FailCode = failCode
	o.Error = errText
	o.TxHash = txHash
	o.FinishedAt = &now
	return nil
}

func (s *stubRepo) ReleaseStuckOrders(ctx context.Context, claimedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, o := range s.orders {
		if o.Status == models.OrderProcessing && o.ClaimedAt != nil && o.ClaimedAt.Before(claimedBefore) {
			o.Status = models.OrderQueued
			o.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

// The claim transition hands each queued order to exactly one claimant,
// no matter how many workers poll the queue at once.
func TestClaimNextOrder_ExclusiveAcrossWorkers(t *testing.T) {
	repo := newStubRepo()
	ctx := context.Background()
	const queued = 40
	for i := 0; i < queued; i++ {
		if err := repo.CreateOrder(ctx, &models.SwapOrder{
			UserID:       1,
			WalletID:     1,
			TokenAddress: testToken,
			Direction:    models.DirectionBuy,
			Status:       models.OrderQueued,
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	const workers = 4
	var mu sync.Mutex
	claims := make(map[uint64]int)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				o, err := repo.ClaimNextOrder(ctx)
				if err != nil {
					t.Errorf("claim: %v", err)
					return
				}
				if o == nil {
					return
				}
				mu.Lock()
				claims[o.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claims) != queued {
		t.Fatalf("claimed %d distinct orders, want %d", len(claims), queued)
	}
	for id, n := range claims {
		if n != 1 {
			t.Fatalf("order %d claimed %d times", id, n)
		}
	}
	if left := repo.ordersByStatus(models.OrderQueued); len(left) != 0 {
		t.Fatalf("%d orders left queued", len(left))
	}
}

func (s *stubRepo) ordersByStatus(status string) []models.SwapOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SwapOrder
	for _, o := range s.orders {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return out
}
