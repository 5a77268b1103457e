package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"lendingapp/database"
	"lendingapp/events"
	"lendingapp/models"
	"lendingapp/utils"

	"github.com/xuri/excelize/v2"
)

// Размер страницы списков кредитов
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// LoanStore - операции хранилища для заявок
type LoanStore interface {
	GetProfileByUserID(ctx context.Context, userID uint) (*models.Profile, error)
	CreateLoan(ctx context.Context, loan *models.Loan, entry *models.ActivityLogEntry) error
	GetLoan(ctx context.Context, id uint) (*models.Loan, error)
	ListLoansByUser(ctx context.Context, userID uint, offset, limit int) ([]models.Loan, error)
	ListLoans(ctx context.Context, filter database.LoanFilter) ([]models.Loan, int64, error)
	LoanStatusSummary(ctx context.Context) (*database.StatusSummary, error)
}

// LoanHistory - история заявок заемщика
type LoanHistory struct {
	Status FeedStatus    `json:"status"`
	Loans  []models.Loan `json:"loans"`
	Sample bool          `json:"sample"`
}

// LoanPage - страница списка для администратора
type LoanPage struct {
	Loans  []models.Loan `json:"loans"`
	Total  int64         `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// Dashboard - сводка для администратора
type Dashboard struct {
	Counts         map[models.LoanStatus]int64 `json:"counts"`
	TotalLoans     int64                       `json:"total_loans"`
	TotalDisbursed float64                     `json:"total_disbursed"`
}

// LoanService предоставляет методы для работы с заявками
type LoanService struct {
	store     LoanStore
	validator *ApplicationValidator
	publisher events.Publisher
	metrics   *utils.Metrics
	now       func() time.Time
}

// NewLoanService создает новый экземпляр LoanService
func NewLoanService(store LoanStore, publisher events.Publisher, metrics *utils.Metrics) *LoanService {
	if publisher == nil {
		publisher = &events.FallbackPublisher{}
	}
	if metrics == nil {
		metrics = utils.GetMetrics()
	}
	return &LoanService{
		store:     store,
		validator: NewApplicationValidator(),
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Submit подает заявку: проверка допуска, валидация, расчет условий, сохранение.
// Ошибки: *IneligibleError, *ValidationError, *BackendUnavailableError.
func (s *LoanService) Submit(ctx context.Context, userID uint, req LoanApplicationRequest) (*models.Loan, error) {
	startTime := time.Now()
	loan, err := s.submit(ctx, userID, req)
	s.metrics.RecordLoanApplication(err)
	utils.LogOperation(fmt.Sprintf("Подача заявки пользователем %d", userID), startTime, err)
	if err != nil {
		return nil, err
	}

	event := events.NewLoanEvent(loan.ID, loan.UserID, string(loan.Status), loan.Amount, loan.ApplicationDate)
	if err := s.publisher.PublishLoanEvent(ctx, events.RoutingLoanSubmitted, event); err != nil {
		utils.LogError("Ошибка публикации события о заявке %d: %v", loan.ID, err)
	}

	return loan, nil
}

func (s *LoanService) submit(ctx context.Context, userID uint, req LoanApplicationRequest) (*models.Loan, error) {
	profile, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, unavailable("get profile", err)
	}

	// Без профиля заемщик не проходит ни одного требования
	eligibility := EvaluateEligibility(profile)
	if !eligibility.CanApply {
		return nil, &IneligibleError{MissingRequirements: eligibility.MissingRequirements}
	}

	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	amount, income := req.ParsedAmounts()
	terms := ComputeFlatLoanTerms(amount, req.Term())
	now := s.now().UTC()

	loan := &models.Loan{
		UserID:          userID,
		Amount:          amount,
		InterestRate:    terms.InterestRate,
		TermMonths:      terms.TermMonths,
		MonthlyPayment:  terms.MonthlyPayment,
		TotalAmount:     terms.TotalAmount,
		InterestAmount:  terms.InterestAmount,
		Purpose:         req.Purpose,
		EmploymentType:  req.EmploymentType,
		MonthlyIncome:   income,
		Status:          models.LoanStatusPending,
		ApplicationDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	entry := &models.ActivityLogEntry{
		UserID:       userID,
		ActivityType: models.ActivityLoanApplication,
		Description:  fmt.Sprintf("Loan application submitted for %s", FormatMoney(amount)),
		Amount:       &amount,
		CreatedAt:    now,
	}

	if err := s.store.CreateLoan(ctx, loan, entry); err != nil {
		return nil, unavailable("create loan", err)
	}

	return loan, nil
}

// History возвращает заявки заемщика, новые первыми
func (s *LoanService) History(ctx context.Context, userID uint, offset, limit int) (LoanHistory, error) {
	offset, limit = normalizePage(offset, limit)

	loans, err := s.store.ListLoansByUser(ctx, userID, offset, limit)
	if err != nil {
		return LoanHistory{}, unavailable("list loans", err)
	}
	if len(loans) == 0 {
		return LoanHistory{Status: FeedStatusEmpty, Loans: []models.Loan{}}, nil
	}
	return LoanHistory{Status: FeedStatusOK, Loans: loans}, nil
}

// Get возвращает кредит заемщика; чужой кредит считается ненайденным
func (s *LoanService) Get(ctx context.Context, userID, loanID uint) (*models.Loan, error) {
	loan, err := s.store.GetLoan(ctx, loanID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, &NotFoundError{Resource: "loan", ID: loanID}
		}
		return nil, unavailable("get loan", err)
	}
	if loan.UserID != userID {
		return nil, &NotFoundError{Resource: "loan", ID: loanID}
	}
	return loan, nil
}

// List возвращает страницу кредитов для администратора
func (s *LoanService) List(ctx context.Context, filter database.LoanFilter) (LoanPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return LoanPage{}, invalidField("status", "oneof", fmt.Sprintf("unknown loan status %q", filter.Status))
	}
	filter.Offset, filter.Limit = normalizePage(filter.Offset, filter.Limit)

	loans, total, err := s.store.ListLoans(ctx, filter)
	if err != nil {
		return LoanPage{}, unavailable("list loans", err)
	}

	return LoanPage{Loans: loans, Total: total, Offset: filter.Offset, Limit: filter.Limit}, nil
}

// Dashboard считает кредиты по статусам
func (s *LoanService) Dashboard(ctx context.Context) (*Dashboard, error) {
	summary, err := s.store.LoanStatusSummary(ctx)
	if err != nil {
		return nil, unavailable("loan summary", err)
	}

	dashboard := &Dashboard{
		Counts:         make(map[models.LoanStatus]int64, len(models.LoanStatuses)),
		TotalDisbursed: summary.TotalDisbursed,
	}
	// Статусы без кредитов тоже попадают в сводку с нулем
	for _, status := range models.LoanStatuses {
		dashboard.Counts[status] = summary.Counts[status]
		dashboard.TotalLoans += summary.Counts[status]
	}

	return dashboard, nil
}

var exportHeader = []interface{}{
	"ID", "User ID", "Amount", "Term (months)", "Monthly payment", "Total amount",
	"Interest", "Purpose", "Employment", "Monthly income", "Status",
	"Applied at", "Decided at", "Disbursed at", "Completed at",
}

// ExportLoansXLSX выгружает кредиты под фильтр в XLSX
func (s *LoanService) ExportLoansXLSX(ctx context.Context, filter database.LoanFilter, w io.Writer) error {
	filter.Offset, filter.Limit = 0, 0
	loans, _, err := s.store.ListLoans(ctx, filter)
	if err != nil {
		return unavailable("export loans", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Loans"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("ошибка подготовки листа: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return fmt.Errorf("ошибка записи заголовка: %w", err)
	}

	for i, loan := range loans {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			loan.ID, loan.UserID, FormatMoney(loan.Amount), loan.TermMonths,
			FormatMoney(loan.MonthlyPayment), FormatMoney(loan.TotalAmount),
			FormatMoney(loan.InterestAmount), loan.Purpose, loan.EmploymentType,
			FormatMoney(loan.MonthlyIncome), string(loan.Status),
			formatDate(&loan.ApplicationDate), formatDate(loan.ApprovalDate),
			formatDate(loan.DisbursementDate), formatDate(loan.CompletionDate),
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("ошибка записи строки %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("ошибка записи файла: %w", err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return offset, limit
}
