package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Role определяет права пользователя
type Role string

const (
	RoleBorrower Role = "borrower"
	RoleAdmin    Role = "admin"
)

// User - учетная запись для аутентификации
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Email     string    `gorm:"column:email;unique;not null;size:100;index"`
	Password  string    `gorm:"column:password;not null;size:100"`
	Role      Role      `gorm:"column:role;type:varchar(20);not null;default:'borrower'"`
	CreatedAt time.Time `gorm:"column:created_at;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;default:CURRENT_TIMESTAMP"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate хук для валидации перед созданием
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if len(u.Email) < 3 || len(u.Email) > 100 {
		return errors.New("email must be between 3 and 100 characters")
	}
	if u.Role == "" {
		u.Role = RoleBorrower
	}
	return nil
}

// IsAdmin сообщает, может ли пользователь управлять заявками
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
