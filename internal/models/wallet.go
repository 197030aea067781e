package models

import "time"

// Wallet maps a follower wallet id to its on-chain address. Key material
// lives in the custody service; this table carries addresses only.
type Wallet struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID  int64  `gorm:"not null;index" json:"user_id"`
	Address string `gorm:"type:varchar(80);not null;uniqueIndex" json:"address"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Wallet) TableName() string {
	return "wallets"
}
