package services

import (
	"context"
	"fmt"
	"time"

	"lendingapp/config"
	"lendingapp/models"

	"gopkg.in/gomail.v2"
)

// LoanNotifier сообщает заемщику об изменении статуса кредита
type LoanNotifier interface {
	NotifyLoanStatus(ctx context.Context, loan *models.Loan) error
}

// UserDirectory находит адрес получателя уведомления
type UserDirectory interface {
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
}

// mailSender - отправка готового письма, в тестах подменяется
type mailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailService предоставляет методы для отправки email
type EmailService struct {
	sender  mailSender
	from    string
	enabled bool
	users   UserDirectory
}

// NewEmailService создает новый экземпляр EmailService
func NewEmailService(cfg *config.Config, users UserDirectory) *EmailService {
	dialer := gomail.NewDialer(
		cfg.SMTP.Host,
		cfg.SMTP.Port,
		cfg.SMTP.Username,
		cfg.SMTP.Password,
	)

	return &EmailService{
		sender:  dialer,
		from:    cfg.SMTP.From,
		enabled: cfg.SMTP.Enabled,
		users:   users,
	}
}

// SendEmail отправляет email
func (s *EmailService) SendEmail(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("ошибка отправки email: %w", err)
	}

	return nil
}

// NotifyLoanStatus отправляет письмо о новом статусе кредита
func (s *EmailService) NotifyLoanStatus(ctx context.Context, loan *models.Loan) error {
	// Без SMTP-настроек уведомления выключены
	if s == nil || !s.enabled {
		return nil
	}

	user, err := s.users.GetUserByID(ctx, loan.UserID)
	if err != nil {
		return fmt.Errorf("ошибка поиска получателя: %w", err)
	}

	subject, body := loanStatusMessage(loan, time.Now())
	return s.SendEmail(user.Email, subject, body)
}

func loanStatusMessage(loan *models.Loan, now time.Time) (string, string) {
	var subject, headline string
	switch loan.Status {
	case models.LoanStatusApproved:
		subject = "Your loan application was approved"
		headline = "Good news! Your loan application has been approved."
	case models.LoanStatusRejected:
		subject = "Your loan application was declined"
		headline = "Unfortunately, your loan application has been declined."
	case models.LoanStatusActive:
		subject = "Your loan has been disbursed"
		headline = "The funds of your loan have been disbursed."
	case models.LoanStatusCompleted:
		subject = "Congratulations! Your loan is fully repaid"
		headline = "Your loan has been fully repaid. Thank you for choosing us!"
	default:
		subject = "Loan application update"
		headline = "The status of your loan application has changed."
	}

	body := fmt.Sprintf(`
		<h2>%s</h2>
		<p>Loan #%d</p>
		<p>Amount: %s</p>
		<p>Monthly payment: %s</p>
		<p>Term: %d months</p>
		<p>Status: %s</p>
		<p>Date: %s</p>
	`, headline, loan.ID, FormatMoney(loan.Amount), FormatMoney(loan.MonthlyPayment),
		loan.TermMonths, loan.Status, now.Format("02.01.2006 15:04:05"))

	return subject, body
}
