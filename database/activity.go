package database

import (
	"context"

	"lendingapp/models"
)

// AppendActivity добавляет запись в журнал активности
func (d *Database) AppendActivity(ctx context.Context, entry *models.ActivityLogEntry) error {
	if err := d.DB.WithContext(ctx).Create(entry).Error; err != nil {
		return translate(err, "append activity")
	}
	return nil
}

// ListActivityByUser возвращает последние записи журнала пользователя
func (d *Database) ListActivityByUser(ctx context.Context, userID uint, limit int) ([]models.ActivityLogEntry, error) {
	var entries []models.ActivityLogEntry
	query := d.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, translate(err, "list activity")
	}
	return entries, nil
}
