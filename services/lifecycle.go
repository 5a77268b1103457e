package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lendingapp/database"
	"lendingapp/events"
	"lendingapp/models"
	"lendingapp/utils"
)

// LoanAction - действие администратора над заявкой
type LoanAction string

const (
	ActionApprove  LoanAction = "approve"
	ActionReject   LoanAction = "reject"
	ActionDisburse LoanAction = "disburse"
	ActionComplete LoanAction = "complete"
)

// loanTransition - строка таблицы переходов
type loanTransition struct {
	From        models.LoanStatus
	To          models.LoanStatus
	StampColumn string
	Activity    models.ActivityType
	RoutingKey  string
}

// Таблица допустимых переходов; все, чего здесь нет, запрещено
var loanTransitions = map[LoanAction]loanTransition{
	ActionApprove: {
		From:        models.LoanStatusPending,
		To:          models.LoanStatusApproved,
		StampColumn: "approval_date",
		Activity:    models.ActivityLoanApproved,
		RoutingKey:  events.RoutingLoanApproved,
	},
	ActionReject: {
		From: models.LoanStatusPending,
		To:   models.LoanStatusRejected,
		// Время отказа хранится в той же колонке, что и время одобрения
		StampColumn: "approval_date",
		Activity:    models.ActivityLoanRejected,
		RoutingKey:  events.RoutingLoanRejected,
	},
	ActionDisburse: {
		From:        models.LoanStatusApproved,
		To:          models.LoanStatusActive,
		StampColumn: "disbursement_date",
		Activity:    models.ActivityLoanDisbursed,
		RoutingKey:  events.RoutingLoanDisbursed,
	},
	ActionComplete: {
		From:        models.LoanStatusActive,
		To:          models.LoanStatusCompleted,
		StampColumn: "completion_date",
		Activity:    models.ActivityLoanCompleted,
		RoutingKey:  events.RoutingLoanCompleted,
	},
}

// ParseLoanAction разбирает действие из URL
func ParseLoanAction(raw string) (LoanAction, bool) {
	action := LoanAction(raw)
	_, ok := loanTransitions[action]
	return action, ok
}

// NextStatus возвращает статус после действия, если переход допустим
func NextStatus(from models.LoanStatus, action LoanAction) (models.LoanStatus, bool) {
	rule, ok := loanTransitions[action]
	if !ok || rule.From != from {
		return "", false
	}
	return rule.To, true
}

// AllowedActions - действия, доступные из статуса, в фиксированном порядке
func AllowedActions(from models.LoanStatus) []LoanAction {
	actions := []LoanAction{}
	for _, action := range []LoanAction{ActionApprove, ActionReject, ActionDisburse, ActionComplete} {
		if _, ok := NextStatus(from, action); ok {
			actions = append(actions, action)
		}
	}
	return actions
}

// LoanTransitionStore - операции хранилища, нужные для смены статуса
type LoanTransitionStore interface {
	GetLoan(ctx context.Context, id uint) (*models.Loan, error)
	ApplyTransition(ctx context.Context, upd database.TransitionUpdate) error
}

// LifecycleService выполняет переходы жизненного цикла кредита
type LifecycleService struct {
	store     LoanTransitionStore
	publisher events.Publisher
	notifier  LoanNotifier
	metrics   *utils.Metrics
	now       func() time.Time
}

// NewLifecycleService создает новый экземпляр LifecycleService
func NewLifecycleService(store LoanTransitionStore, publisher events.Publisher, notifier LoanNotifier, metrics *utils.Metrics) *LifecycleService {
	if publisher == nil {
		publisher = &events.FallbackPublisher{}
	}
	if metrics == nil {
		metrics = utils.GetMetrics()
	}
	return &LifecycleService{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		metrics:   metrics,
		now:       time.Now,
	}
}

// TransitionLoan применяет действие к кредиту и возвращает обновленный кредит.
// Ошибки: *IllegalTransitionError, *NotFoundError, *BackendUnavailableError.
func (s *LifecycleService) TransitionLoan(ctx context.Context, loanID uint, action LoanAction) (*models.Loan, error) {
	startTime := time.Now()
	loan, err := s.transition(ctx, loanID, action)
	s.metrics.RecordTransition(string(action), err)
	utils.LogOperation(fmt.Sprintf("Переход %s кредита %d", action, loanID), startTime, err)
	if err != nil {
		return nil, err
	}

	rule := loanTransitions[action]
	s.afterCommit(ctx, loan, rule)
	return loan, nil
}

func (s *LifecycleService) transition(ctx context.Context, loanID uint, action LoanAction) (*models.Loan, error) {
	loan, err := s.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	rule, ok := loanTransitions[action]
	if !ok || rule.From != loan.Status {
		return nil, &IllegalTransitionError{LoanID: loanID, From: loan.Status, Action: action}
	}

	now := s.now().UTC()
	amount := loan.Amount
	entry := &models.ActivityLogEntry{
		UserID:       loan.UserID,
		ActivityType: rule.Activity,
		Description:  fmt.Sprintf("Loan application %s", rule.To),
		Amount:       &amount,
		LoanID:       &loan.ID,
		CreatedAt:    now,
	}

	// Обновление условное: пройдет, только если статус не изменился с момента чтения
	err = s.store.ApplyTransition(ctx, database.TransitionUpdate{
		LoanID:      loanID,
		From:        rule.From,
		To:          rule.To,
		StampColumn: rule.StampColumn,
		At:          now,
		Entry:       entry,
	})
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		return nil, &NotFoundError{Resource: "loan", ID: loanID}
	case errors.Is(err, database.ErrStaleStatus):
		// Другой администратор успел раньше, сообщаем актуальный статус
		current := loan.Status
		if fresh, getErr := s.store.GetLoan(ctx, loanID); getErr == nil {
			current = fresh.Status
		}
		return nil, &IllegalTransitionError{LoanID: loanID, From: current, Action: action}
	default:
		return nil, unavailable("transition loan", err)
	}

	loan.Status = rule.To
	loan.UpdatedAt = now
	stampLoan(loan, rule.StampColumn, now)
	return loan, nil
}

func (s *LifecycleService) loadLoan(ctx context.Context, loanID uint) (*models.Loan, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, &NotFoundError{Resource: "loan", ID: loanID}
		}
		return nil, unavailable("get loan", err)
	}
	return loan, nil
}

// afterCommit - побочные каналы; их сбой не отменяет переход
func (s *LifecycleService) afterCommit(ctx context.Context, loan *models.Loan, rule loanTransition) {
	event := events.NewLoanEvent(loan.ID, loan.UserID, string(loan.Status), loan.Amount, loan.UpdatedAt)
	if err := s.publisher.PublishLoanEvent(ctx, rule.RoutingKey, event); err != nil {
		utils.LogError("Ошибка публикации события %s по кредиту %d: %v", rule.RoutingKey, loan.ID, err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyLoanStatus(ctx, loan); err != nil {
			utils.LogError("Ошибка уведомления по кредиту %d: %v", loan.ID, err)
		}
	}
}

func stampLoan(loan *models.Loan, column string, at time.Time) {
	stamp := at
	switch column {
	case "approval_date":
		loan.ApprovalDate = &stamp
	case "disbursement_date":
		loan.DisbursementDate = &stamp
	case "completion_date":
		loan.CompletionDate = &stamp
	}
}
