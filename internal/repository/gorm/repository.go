package gormrepository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
	"github.com/namewasntdrown/ton-bot-sub000/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Wallets ----------------------------------------------------------------

func (s *Store) CreateWallet(ctx context.Context, item *models.Wallet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetWalletByID(ctx context.Context, id int64) (*models.Wallet, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Wallet
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListWalletsByUser(ctx context.Context, userID int64) ([]models.Wallet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Wallet
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error) {
	if s == nil || s.db == nil || address == "" {
		return nil, nil
	}
	var item models.Wallet
	err := s.db.WithContext(ctx).First(&item, "address = ?", address).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Subscriptions ----------------------------------------------------------

func (s *Store) CreateSubscription(ctx context.Context, item *models.Subscription) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpdateSubscription(ctx context.Context, item *models.Subscription) error {
	if s == nil || s.db == nil || item == nil || item.ID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) GetSubscriptionByID(ctx context.Context, id uint64) (*models.Subscription, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Subscription
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Subscription
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ResetSubscription soft-resets a profile: clears its configuration and
// returns it to idle. Rows are never hard-deleted.
func (s *Store) ResetSubscription(ctx context.Context, id uint64) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"leader_address": nil,
			"name":           nil,
			"sizing_mode":    models.SizingSmart,
			"ton_amount":     "0",
			"sell_percent":   nil,
			"copy_buy":       true,
			"copy_sell":      true,
			"platforms":      nil,
			"status":         models.SubscriptionIdle,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (s *Store) SetSubscriptionStatus(ctx context.Context, id uint64, status string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (s *Store) ListRunningLeaderAddresses(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var addrs []string
	if err := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Distinct("leader_address").
		Where("status = ?", models.SubscriptionRunning).
		Where("leader_address IS NOT NULL").
		Pluck("leader_address", &addrs).Error; err != nil {
		return nil, err
	}
	return addrs, nil
}

func (s *Store) ListRunningSubscriptionsByLeader(ctx context.Context, leaderAddress string) ([]models.Subscription, error) {
	if s == nil || s.db == nil || leaderAddress == "" {
		return nil, nil
	}
	var items []models.Subscription
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.SubscriptionRunning).
		Where("leader_address = ?", leaderAddress).
		Order("id asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- Swap order queue -------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, item *models.SwapOrder) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.Status == "" {
		item.Status = models.OrderQueued
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetOrderByID(ctx context.Context, id uint64) (*models.SwapOrder, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.SwapOrder
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.SwapOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SwapOrder{})
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.Status != nil && *params.Status != "" {
		query = query.Where("status = ?", *params.Status)
	}
	limit := params.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.SwapOrder
	if err := query.Order("created_at desc, id desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ClaimNextOrder selects the oldest queued order FOR UPDATE SKIP LOCKED and
// transitions it to processing inside one transaction. Concurrent claimants
// skip each other's locked rows, so a row is handed to exactly one caller.
func (s *Store) ClaimNextOrder(ctx context.Context) (*models.SwapOrder, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var claimed *models.SwapOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.SwapOrder
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", models.OrderQueued).
			Order("created_at asc, id asc").
			Take(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		res := tx.Model(&models.SwapOrder{}).
			Where("id = ? AND status = ?", order.ID, models.OrderQueued).
			Updates(map[string]any{
				"status":     models.OrderProcessing,
				"claimed_at": now,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		order.Status = models.OrderProcessing
		order.ClaimedAt = &now
		claimed = &order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) FinishOrder(ctx context.Context, id uint64, status string, failCode string, errText *string, txHash *string) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if !models.CanTransition(models.OrderProcessing, status) {
		return repository.ErrNotClaimable
	}
	now := time.Now().UTC()
	updates := map[string]any{
		"status":      status,
		"finished_at": now,
		"updated_at":  now,
	}
	if failCode != "" {
		updates["fail_code"] = failCode
	}
	if errText != nil {
		updates["error"] = *errText
	}
	if txHash != nil {
		updates["tx_hash"] = *txHash
	}
	res := s.db.WithContext(ctx).
		Model(&models.SwapOrder{}).
		Where("id = ? AND status = ?", id, models.OrderProcessing).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotClaimable
	}
	return nil
}

func (s *Store) ReleaseStuckOrders(ctx context.Context, claimedBefore time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.SwapOrder{}).
		Where("status = ?", models.OrderProcessing).
		Where("claimed_at < ?", claimedBefore).
		Updates(map[string]any{
			"status":     models.OrderQueued,
			"claimed_at": nil,
			"updated_at": now,
		})
	return res.RowsAffected, res.Error
}
