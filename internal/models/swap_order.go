package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

const (
	OrderQueued     = "queued"
	OrderProcessing = "processing"
	OrderCompleted  = "completed"
	OrderFailed     = "failed"
)

// Machine-readable failure codes recorded on terminally failed orders.
const (
	FailInsufficientTON        = "insufficient_ton_balance"
	FailInsufficientTONForFees = "insufficient_ton_for_fees"
	FailPriceExceedsLimit      = "price_exceeds_limit"
	FailJettonBalanceZero      = "jetton_balance_zero"
	FailInvalidPercent         = "invalid_percent"
	FailPoolNotFound           = "pool_not_found"
	FailSubmit                 = "submit_error"
)

// SwapOrder is one unit of swap work. Orders are created by the fan-out
// engine or directly by a user action, claimed exclusively by one worker,
// and kept forever as an audit trail.
type SwapOrder struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   int64  `gorm:"not null;index" json:"user_id"`
	WalletID int64  `gorm:"not null" json:"wallet_id"`

	TokenAddress string          `gorm:"type:varchar(80);not null;index" json:"token_address"`
	Direction    string          `gorm:"type:varchar(4);not null" json:"direction"`
	TonAmount    decimal.Decimal `gorm:"type:numeric(30,9);not null" json:"ton_amount"`
	LimitPrice   *string         `gorm:"type:varchar(40)" json:"limit_price,omitempty"`
	SellPercent  *string         `gorm:"type:varchar(20)" json:"sell_percent,omitempty"`

	Status   string  `gorm:"type:varchar(12);not null;default:'queued';index" json:"status"`
	FailCode string  `gorm:"type:varchar(40)" json:"fail_code,omitempty"`
	Error    *string `gorm:"type:text" json:"error,omitempty"`
	TxHash   *string `gorm:"type:varchar(80)" json:"tx_hash,omitempty"`

	// ParentOrderID is set when this order was derived from another order's
	// execution. Derived orders are never fanned out again.
	ParentOrderID *uint64 `gorm:"index" json:"parent_order_id,omitempty"`

	ClaimedAt  *time.Time `gorm:"type:timestamptz" json:"claimed_at,omitempty"`
	FinishedAt *time.Time `gorm:"type:timestamptz" json:"finished_at,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (SwapOrder) TableName() string {
	return "swap_orders"
}

// Derived reports whether the order came out of fan-out.
func (o *SwapOrder) Derived() bool {
	return o != nil && o.ParentOrderID != nil
}

// CanTransition encodes the forward-only order lifecycle:
// queued -> processing -> {completed, failed}.
func CanTransition(from, to string) bool {
	switch from {
	case OrderQueued:
		return to == OrderProcessing
	case OrderProcessing:
		return to == OrderCompleted || to == OrderFailed
	}
	return false
}
