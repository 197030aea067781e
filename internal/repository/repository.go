package repository

import (
	"context"
	"errors"
	"time"

	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
)

// ErrNotClaimable is returned by FinishOrder when the order is not held in
// processing, which would otherwise allow a backward status transition.
var ErrNotClaimable = errors.New("order is not in processing")

type ListOrdersParams struct {
	UserID *int64
	Status *string
	Limit  int
	Offset int
}

type Repository interface {
	// Wallets.
	CreateWallet(ctx context.Context, item *models.Wallet) error
	GetWalletByID(ctx context.Context, id int64) (*models.Wallet, error)
	ListWalletsByUser(ctx context.Context, userID int64) ([]models.Wallet, error)
	GetWalletByAddress(ctx context.Context, address string) (*models.Wallet, error)

	// Subscriptions.
	CreateSubscription(ctx context.Context, item *models.Subscription) error
	UpdateSubscription(ctx context.Context, item *models.Subscription) error
	GetSubscriptionByID(ctx context.Context, id uint64) (*models.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error)
	ResetSubscription(ctx context.Context, id uint64) error
	SetSubscriptionStatus(ctx context.Context, id uint64, status string) error
	// ListRunningLeaderAddresses returns leader addresses with at least one
	// running subscription, for the watcher's tracked-leader refresh.
	ListRunningLeaderAddresses(ctx context.Context) ([]string, error)
	ListRunningSubscriptionsByLeader(ctx context.Context, leaderAddress string) ([]models.Subscription, error)

	// Swap order queue.
	CreateOrder(ctx context.Context, item *models.SwapOrder) error
	GetOrderByID(ctx context.Context, id uint64) (*models.SwapOrder, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.SwapOrder, error)
	// ClaimNextOrder atomically claims the oldest queued order, skipping
	// rows locked by concurrent claimants. Returns nil when the queue is
	// empty.
	ClaimNextOrder(ctx context.Context) (*models.SwapOrder, error)
	// FinishOrder performs the terminal transition; it only succeeds from
	// processing and only into completed or failed.
	FinishOrder(ctx context.Context, id uint64, status string, failCode string, errText *string, txHash *string) error
	// ReleaseStuckOrders requeues orders claimed before the cutoff. Only
	// used when a processing lease is explicitly enabled.
	ReleaseStuckOrders(ctx context.Context, claimedBefore time.Time) (int64, error)
}
