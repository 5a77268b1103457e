package database

import (
	"context"

	"lendingapp/models"

	"gorm.io/gorm"
)

// GetProfileByUserID возвращает анкету пользователя
func (d *Database) GetProfileByUserID(ctx context.Context, userID uint) (*models.Profile, error) {
	var profile models.Profile
	if err := d.DB.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, translate(err, "get profile")
	}
	return &profile, nil
}

// SaveProfile сохраняет анкету и, если передана, запись журнала в одной транзакции
func (d *Database) SaveProfile(ctx context.Context, profile *models.Profile, entry *models.ActivityLogEntry) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(profile).Error; err != nil {
			return translate(err, "save profile")
		}
		if entry == nil {
			return nil
		}
		if err := tx.Create(entry).Error; err != nil {
			return translate(err, "append activity")
		}
		return nil
	})
}
