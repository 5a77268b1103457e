package models

import (
	"strings"
	"time"
)

// VerificationStatus - состояние проверки документа, удостоверяющего личность
type VerificationStatus string

const (
	VerificationNotUploaded VerificationStatus = "not_uploaded"
	VerificationPending     VerificationStatus = "pending"
	VerificationVerified    VerificationStatus = "verified"
	VerificationRejected    VerificationStatus = "rejected"
)

// Valid проверяет, что статус входит в перечисление
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationNotUploaded, VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// Шаги заполнения профиля
const (
	ProfileStepPersonal = 1
	ProfileStepAddress  = 2
	ProfileStepIncome   = 3
	ProfileStepDocument = 4
	ProfileStepReview   = 5
)

// Profile содержит анкетные данные заемщика
type Profile struct {
	ID                    uint               `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                uint               `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Email                 string             `gorm:"column:email;not null;size:100" json:"email"`
	FullName              *string            `gorm:"column:full_name;size:100" json:"full_name,omitempty"`
	Phone                 *string            `gorm:"column:phone;size:30" json:"phone,omitempty"`
	CreditScore           int                `gorm:"column:credit_score;not null;default:0" json:"credit_score"`
	LoanLimit             float64            `gorm:"column:loan_limit;type:decimal(20,2);not null;default:0" json:"loan_limit"`
	Address               string             `gorm:"column:address;size:255" json:"address"`
	City                  string             `gorm:"column:city;size:100" json:"city"`
	State                 string             `gorm:"column:state;size:100" json:"state"`
	ZipCode               string             `gorm:"column:zip_code;size:20" json:"zip_code"`
	IncomeSource          string             `gorm:"column:income_source;size:50" json:"income_source"`
	EmployerName          string             `gorm:"column:employer_name;size:100" json:"employer_name"`
	MonthlyIncome         float64            `gorm:"column:monthly_income;type:decimal(20,2);not null;default:0" json:"monthly_income"`
	IDDocumentURL         string             `gorm:"column:id_document_url;size:512" json:"id_document_url"`
	IDVerificationStatus  VerificationStatus `gorm:"column:id_verification_status;type:varchar(20);not null;default:'not_uploaded'" json:"id_verification_status"`
	ProfileCompletionStep int                `gorm:"column:profile_completion_step;not null;default:1" json:"profile_completion_step"`
	ProfileCompleted      bool               `gorm:"column:profile_completed;not null;default:false" json:"profile_completed"`
	CreatedAt             time.Time          `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Profile) TableName() string {
	return "profiles"
}

// StepComplete проверяет обязательные поля конкретного шага анкеты
func (p *Profile) StepComplete(step int) bool {
	switch step {
	case ProfileStepPersonal:
		return nonEmpty(p.FullName) && nonEmpty(p.Phone)
	case ProfileStepAddress:
		return notBlank(p.Address) && notBlank(p.City) && notBlank(p.State) && notBlank(p.ZipCode)
	case ProfileStepIncome:
		return notBlank(p.IncomeSource) && p.MonthlyIncome > 0
	case ProfileStepDocument:
		return notBlank(p.IDDocumentURL)
	case ProfileStepReview:
		return true
	}
	return false
}

// IsProfileComplete - все шаги заполнены и указан доход
func (p *Profile) IsProfileComplete() bool {
	for step := ProfileStepPersonal; step <= ProfileStepReview; step++ {
		if !p.StepComplete(step) {
			return false
		}
	}
	return p.MonthlyIncome > 0
}

func nonEmpty(s *string) bool {
	return s != nil && notBlank(*s)
}

func notBlank(s string) bool {
	return strings.TrimSpace(s) != ""
}
