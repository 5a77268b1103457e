package models

import (
	"time"
)

// ActivityType - тег записи журнала активности
type ActivityType string

const (
	ActivityLoanApplication     ActivityType = "loan_application"
	ActivityLoanApproved        ActivityType = "loan_approved"
	ActivityLoanRejected        ActivityType = "loan_rejected"
	ActivityLoanDisbursed       ActivityType = "loan_disbursed"
	ActivityLoanCompleted       ActivityType = "loan_completed"
	ActivityProfileUpdated      ActivityType = "profile_updated"
	ActivityDocumentUploaded    ActivityType = "document_uploaded"
	ActivityVerificationUpdated ActivityType = "verification_updated"
	ActivitySignIn              ActivityType = "sign_in"
)

// ActivityLogEntry - запись журнала аудита, только добавление
type ActivityLogEntry struct {
	ID           uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint         `gorm:"column:user_id;not null;index" json:"user_id"`
	ActivityType ActivityType `gorm:"column:activity_type;type:varchar(50);not null" json:"activity_type"`
	Description  string       `gorm:"column:description;size:255;not null" json:"description"`
	Amount       *float64     `gorm:"column:amount;type:decimal(20,2)" json:"amount,omitempty"`
	LoanID       *uint        `gorm:"column:loan_id;index" json:"loan_id,omitempty"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null;index" json:"created_at"`
}

func (ActivityLogEntry) TableName() string {
	return "activity_log"
}
