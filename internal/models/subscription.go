package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SizingSmart  = "smart"
	SizingManual = "manual"
)

const (
	SubscriptionIdle    = "idle"
	SubscriptionRunning = "running"
)

// Subscription is one follower's copytrade profile for a single leader.
// Profiles are never hard-deleted; Reset clears them back to idle.
type Subscription struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64  `gorm:"not null;index" json:"user_id"`

	LeaderAddress *string `gorm:"type:varchar(80);index" json:"leader_address,omitempty"`
	Name          *string `gorm:"type:varchar(100)" json:"name,omitempty"`

	SizingMode  string          `gorm:"type:varchar(10);not null;default:'smart'" json:"sizing_mode"`
	TonAmount   decimal.Decimal `gorm:"type:numeric(30,9);not null;default:0" json:"ton_amount"`
	SellPercent *string         `gorm:"type:varchar(20)" json:"sell_percent,omitempty"`
	SlippageBps int             `gorm:"not null;default:100" json:"slippage_bps"`

	CopyBuy  bool `gorm:"not null;default:true" json:"copy_buy"`
	CopySell bool `gorm:"not null;default:true" json:"copy_sell"`

	// Platforms is a JSON array of venue tags; empty means all venues.
	Platforms datatypes.JSON `gorm:"type:jsonb" json:"platforms,omitempty"`

	Status string `gorm:"type:varchar(10);not null;default:'idle';index" json:"status"`

	// WalletIDs is the ordered JSON array of follower wallet ids.
	WalletIDs datatypes.JSON `gorm:"type:jsonb" json:"wallet_ids,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// CanRun reports whether the profile satisfies the running-status invariant:
// a subscription may only be running with a leader address set.
func (s *Subscription) CanRun() bool {
	return s != nil && s.LeaderAddress != nil && *s.LeaderAddress != ""
}

func (s *Subscription) PlatformList() []Platform {
	if s == nil || len(s.Platforms) == 0 {
		return nil
	}
	var raw []string
	if err := json.Unmarshal(s.Platforms, &raw); err != nil {
		return nil
	}
	out := make([]Platform, 0, len(raw))
	for _, v := range raw {
		p := Platform(v)
		if p.Valid() {
			out = append(out, p)
		}
	}
	return out
}

// PlatformAllowed reports whether a venue passes the allow-list.
// An empty allow-list permits every venue.
func (s *Subscription) PlatformAllowed(p Platform) bool {
	list := s.PlatformList()
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func (s *Subscription) WalletList() []int64 {
	if s == nil || len(s.WalletIDs) == 0 {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal(s.WalletIDs, &ids); err != nil {
		return nil
	}
	return ids
}
