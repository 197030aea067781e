package db

import (
	"github.com/namewasntdrown/ton-bot-sub000/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Wallet{},
		&models.Subscription{},
		&models.SwapOrder{},
	)
}
