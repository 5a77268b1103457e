package models

import (
	"time"
)

// LoanStatus представляет статус заявки на кредит
type LoanStatus string

const (
	LoanStatusPending   LoanStatus = "pending"
	LoanStatusApproved  LoanStatus = "approved"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusActive    LoanStatus = "active"
	LoanStatusCompleted LoanStatus = "completed"
)

// LoanStatuses - все статусы в порядке жизненного цикла
var LoanStatuses = []LoanStatus{
	LoanStatusPending,
	LoanStatusApproved,
	LoanStatusRejected,
	LoanStatusActive,
	LoanStatusCompleted,
}

// Valid проверяет, что статус входит в перечисление
func (s LoanStatus) Valid() bool {
	for _, known := range LoanStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal - из этих статусов переходов нет
func (s LoanStatus) Terminal() bool {
	return s == LoanStatusRejected || s == LoanStatusCompleted
}

// Loan представляет заявку на кредит
type Loan struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID           uint       `gorm:"column:user_id;not null;index" json:"user_id"`
	Amount           float64    `gorm:"column:amount;type:decimal(20,2);not null" json:"amount"`
	InterestRate     float64    `gorm:"column:interest_rate;type:decimal(10,6);not null" json:"interest_rate"`
	TermMonths       int        `gorm:"column:term_months;not null" json:"term_months"`
	MonthlyPayment   float64    `gorm:"column:monthly_payment;type:double precision;not null" json:"monthly_payment"`
	TotalAmount      float64    `gorm:"column:total_amount;type:double precision;not null" json:"total_amount"`
	InterestAmount   float64    `gorm:"column:interest_amount;type:double precision;not null" json:"interest_amount"`
	Purpose          string     `gorm:"column:purpose;size:255;not null" json:"purpose"`
	EmploymentType   string     `gorm:"column:employment_type;size:50;not null" json:"employment_type"`
	MonthlyIncome    float64    `gorm:"column:monthly_income;type:decimal(20,2);not null" json:"monthly_income"`
	Status           LoanStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	ApplicationDate  time.Time  `gorm:"column:application_date;not null" json:"application_date"`
	ApprovalDate     *time.Time `gorm:"column:approval_date" json:"approval_date,omitempty"`
	DisbursementDate *time.Time `gorm:"column:disbursement_date" json:"disbursement_date,omitempty"`
	CompletionDate   *time.Time `gorm:"column:completion_date" json:"completion_date,omitempty"`
	CreatedAt        time.Time  `gorm:"column:created_at;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName возвращает имя таблицы для модели Loan
func (Loan) TableName() string {
	return "loans"
}
