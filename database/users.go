package database

import (
	"context"

	"lendingapp/models"

	"gorm.io/gorm"
)

// CreateUserWithProfile создает учетную запись и пустую анкету в одной транзакции
func (d *Database) CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return translate(err, "create user")
		}

		profile.UserID = user.ID
		profile.Email = user.Email
		if err := tx.Create(profile).Error; err != nil {
			return translate(err, "create profile")
		}

		return nil
	})
}

// GetUserByID ищет пользователя по ID
func (d *Database) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := d.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, "get user")
	}
	return &user, nil
}

// GetUserByEmail ищет пользователя по email (игнорируя регистр и пробелы)
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := d.DB.WithContext(ctx).
		Where("LOWER(TRIM(email)) = LOWER(TRIM(?))", email).
		First(&user).Error; err != nil {
		return nil, translate(err, "get user by email")
	}
	return &user, nil
}
