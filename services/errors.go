package services

import (
	"fmt"
	"strings"

	"lendingapp/models"
)

// FieldViolation - нарушение правила для одного поля заявки
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError перечисляет все нарушенные поля, а не только первое
type ValidationError struct {
	Violations []FieldViolation `json:"violations"`
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// HasField сообщает, есть ли нарушение для поля
func (e *ValidationError) HasField(field string) bool {
	for _, v := range e.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

// HasRule сообщает, нарушено ли правило
func (e *ValidationError) HasRule(rule string) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// IneligibleError - заемщик не прошел проверку допуска
type IneligibleError struct {
	MissingRequirements []string `json:"missing_requirements"`
}

func (e *IneligibleError) Error() string {
	return "borrower is not eligible: " + strings.Join(e.MissingRequirements, ", ")
}

// IllegalTransitionError - действие недопустимо из текущего статуса
type IllegalTransitionError struct {
	LoanID uint
	From   models.LoanStatus
	Action LoanAction
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s loan %d in status %s", e.Action, e.LoanID, e.From)
}

// NotFoundError - запись не найдена (в том числе ноль затронутых строк)
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// ConflictError - операция противоречит текущему состоянию записи
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// BackendUnavailableError - хранилище не ответило или вернуло мусор
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

func invalidField(field, rule, message string) *ValidationError {
	return &ValidationError{Violations: []FieldViolation{{Field: field, Rule: rule, Message: message}}}
}

func unavailable(op string, err error) error {
	return &BackendUnavailableError{Op: op, Err: err}
}
