package database

import (
	"context"
	"time"

	"lendingapp/models"

	"gorm.io/gorm"
)

// LoanFilter - параметры выборки кредитов для админки
type LoanFilter struct {
	Status models.LoanStatus
	UserID uint
	Offset int
	Limit  int
}

// TransitionUpdate описывает условное изменение статуса кредита
type TransitionUpdate struct {
	LoanID uint
	From   models.LoanStatus
	To     models.LoanStatus
	// StampColumn - колонка с датой перехода (approval_date, disbursement_date, ...)
	StampColumn string
	At          time.Time
	Entry       *models.ActivityLogEntry
}

// StatusSummary - сводка по статусам для админки
type StatusSummary struct {
	Counts         map[models.LoanStatus]int64
	TotalDisbursed float64
}

// CreateLoan сохраняет заявку и запись журнала о подаче в одной транзакции
func (d *Database) CreateLoan(ctx context.Context, loan *models.Loan, entry *models.ActivityLogEntry) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(loan).Error; err != nil {
			return translate(err, "create loan")
		}

		if entry != nil {
			entry.LoanID = &loan.ID
			if err := tx.Create(entry).Error; err != nil {
				return translate(err, "append activity")
			}
		}

		return nil
	})
}

// GetLoan возвращает кредит по ID
func (d *Database) GetLoan(ctx context.Context, id uint) (*models.Loan, error) {
	var loan models.Loan
	if err := d.DB.WithContext(ctx).First(&loan, id).Error; err != nil {
		return nil, translate(err, "get loan")
	}
	return &loan, nil
}

// ListLoansByUser возвращает кредиты пользователя, новые первыми
func (d *Database) ListLoansByUser(ctx context.Context, userID uint, offset, limit int) ([]models.Loan, error) {
	var loans []models.Loan
	query := d.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("application_date DESC").
		Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&loans).Error; err != nil {
		return nil, translate(err, "list loans")
	}
	return loans, nil
}

// ListLoans возвращает страницу кредитов и общее число подходящих под фильтр
func (d *Database) ListLoans(ctx context.Context, filter LoanFilter) ([]models.Loan, int64, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.UserID != 0 {
			db = db.Where("user_id = ?", filter.UserID)
		}
		return db
	}

	var total int64
	if err := d.DB.WithContext(ctx).Model(&models.Loan{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count loans")
	}

	var loans []models.Loan
	page := d.DB.WithContext(ctx).Scopes(scope).Order("application_date DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	if err := page.Find(&loans).Error; err != nil {
		return nil, 0, translate(err, "list loans")
	}

	return loans, total, nil
}

// ApplyTransition меняет статус, только если кредит все еще в статусе From,
// и в той же транзакции, после обновления, добавляет запись журнала.
// Ноль затронутых строк: ErrNotFound, если кредита нет, иначе ErrStaleStatus.
func (d *Database) ApplyTransition(ctx context.Context, upd TransitionUpdate) error {
	return d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Loan{}).
			Where("id = ? AND status = ?", upd.LoanID, upd.From).
			Updates(map[string]interface{}{
				"status":        upd.To,
				upd.StampColumn: upd.At,
				"updated_at":    upd.At,
			})
		if result.Error != nil {
			return translate(result.Error, "update loan status")
		}

		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Loan{}).Where("id = ?", upd.LoanID).Count(&count).Error; err != nil {
				return translate(err, "check loan")
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrStaleStatus
		}

		if upd.Entry != nil {
			if err := tx.Create(upd.Entry).Error; err != nil {
				return translate(err, "append activity")
			}
		}

		return nil
	})
}

// LoanStatusSummary считает кредиты по статусам и сумму выданных
func (d *Database) LoanStatusSummary(ctx context.Context) (*StatusSummary, error) {
	var rows []struct {
		Status models.LoanStatus
		Count  int64
	}
	if err := d.DB.WithContext(ctx).Model(&models.Loan{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, translate(err, "count loan statuses")
	}

	summary := &StatusSummary{Counts: make(map[models.LoanStatus]int64)}
	for _, row := range rows {
		summary.Counts[row.Status] = row.Count
	}

	if err := d.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("status IN ?", []models.LoanStatus{models.LoanStatusActive, models.LoanStatusCompleted}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&summary.TotalDisbursed).Error; err != nil {
		return nil, translate(err, "sum disbursed")
	}

	return summary, nil
}
