package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"lendingapp/models"
)

// Лимиты ленты активности
const (
	SummaryFeedLimit  = 5
	ActivityFeedLimit = 10
)

// ActivityItem - элемент объединенной ленты
type ActivityItem struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Amount      *float64  `json:"amount,omitempty"`
	LoanID      *uint     `json:"loan_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Badge       Badge     `json:"badge"`
}

// ProjectActivity объединяет записи журнала и кредиты пользователя в одну ленту:
// новые первыми, при равном времени записи журнала идут раньше кредитов.
func ProjectActivity(entries []models.ActivityLogEntry, loans []models.Loan, limit int) []ActivityItem {
	items := make([]ActivityItem, 0, len(entries)+len(loans))

	for _, e := range entries {
		items = append(items, ActivityItem{
			ID:          fmt.Sprintf("activity-%d", e.ID),
			Kind:        string(e.ActivityType),
			Description: e.Description,
			Amount:      e.Amount,
			LoanID:      e.LoanID,
			Timestamp:   e.CreatedAt,
			Badge:       PresentationFor(string(e.ActivityType)),
		})
	}

	// Кредит превращается в синтетическую запись о заявке
	for _, l := range loans {
		amount := l.Amount
		loanID := l.ID
		items = append(items, ActivityItem{
			ID:          fmt.Sprintf("loan-%d", l.ID),
			Kind:        string(l.Status),
			Description: fmt.Sprintf("Loan application %s", l.Status),
			Amount:      &amount,
			LoanID:      &loanID,
			Timestamp:   l.ApplicationDate,
			Badge:       PresentationFor(string(l.Status)),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})

	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// FeedStatus различает пустую ленту и ленту с данными; сбой загрузки - это ошибка
type FeedStatus string

const (
	FeedStatusOK          FeedStatus = "ok"
	FeedStatusEmpty       FeedStatus = "empty"
	// FeedStatusUnavailable ставит только слой представления, когда подменяет ленту
	FeedStatusUnavailable FeedStatus = "unavailable"
)

// Feed - результат загрузки ленты
type Feed struct {
	Status FeedStatus     `json:"status"`
	Items  []ActivityItem `json:"items"`
}

// ActivitySource - чтение исходных данных ленты
type ActivitySource interface {
	ListActivityByUser(ctx context.Context, userID uint, limit int) ([]models.ActivityLogEntry, error)
	ListLoansByUser(ctx context.Context, userID uint, offset, limit int) ([]models.Loan, error)
}

// ActivityService собирает ленту активности пользователя
type ActivityService struct {
	source ActivitySource
}

// NewActivityService создает новый экземпляр ActivityService
func NewActivityService(source ActivitySource) *ActivityService {
	return &ActivityService{source: source}
}

// Feed загружает не более limit последних событий.
// Сбой хранилища возвращается как *BackendUnavailableError, подмену данных решает вызывающий.
func (s *ActivityService) Feed(ctx context.Context, userID uint, limit int) (Feed, error) {
	// Каждого источника достаточно limit записей: остальное все равно отрежется
	entries, err := s.source.ListActivityByUser(ctx, userID, limit)
	if err != nil {
		return Feed{}, unavailable("list activity", err)
	}
	loans, err := s.source.ListLoansByUser(ctx, userID, 0, limit)
	if err != nil {
		return Feed{}, unavailable("list loans", err)
	}

	items := ProjectActivity(entries, loans, limit)
	if len(items) == 0 {
		return Feed{Status: FeedStatusEmpty, Items: items}, nil
	}
	return Feed{Status: FeedStatusOK, Items: items}, nil
}

// SampleActivity - фиксированный демонстрационный набор, который показывается
// вместо пустой ленты. Время отсчитывается от now.
func SampleActivity(now time.Time, limit int) []ActivityItem {
	amount := func(v float64) *float64 { return &v }
	samples := []ActivityItem{
		{
			ID:          "sample-1",
			Kind:        string(models.ActivityLoanApproved),
			Description: "Loan application approved",
			Amount:      amount(2500),
			Timestamp:   now.Add(-2 * time.Hour),
		},
		{
			ID:          "sample-2",
			Kind:        string(models.ActivityDocumentUploaded),
			Description: "ID document uploaded",
			Timestamp:   now.Add(-26 * time.Hour),
		},
		{
			ID:          "sample-3",
			Kind:        string(models.ActivityLoanApplication),
			Description: "Loan application submitted",
			Amount:      amount(2500),
			Timestamp:   now.Add(-50 * time.Hour),
		},
		{
			ID:          "sample-4",
			Kind:        string(models.ActivityProfileUpdated),
			Description: "Profile information updated",
			Timestamp:   now.Add(-74 * time.Hour),
		},
	}

	for i := range samples {
		samples[i].Badge = PresentationFor(samples[i].Kind)
	}
	if limit > 0 && len(samples) > limit {
		samples = samples[:limit]
	}
	return samples
}

// SampleLoans - демонстрационная история заявок вместо пустой
func SampleLoans(now time.Time) []models.Loan {
	approved := now.Add(-2 * time.Hour)
	samples := []struct {
		amount float64
		term   int
		status models.LoanStatus
		date   time.Time
	}{
		{2500, 2, models.LoanStatusApproved, now.Add(-50 * time.Hour)},
		{1000, 1, models.LoanStatusCompleted, now.Add(-30 * 24 * time.Hour)},
	}

	loans := make([]models.Loan, 0, len(samples))
	for _, sample := range samples {
		terms := ComputeFlatLoanTerms(sample.amount, sample.term)
		loan := models.Loan{
			Amount:          sample.amount,
			InterestRate:    FlatMonthlyRate,
			TermMonths:      sample.term,
			MonthlyPayment:  terms.MonthlyPayment,
			TotalAmount:     terms.TotalAmount,
			InterestAmount:  terms.InterestAmount,
			Purpose:         "Sample loan",
			Status:          sample.status,
			ApplicationDate: sample.date,
		}
		if sample.status == models.LoanStatusApproved {
			loan.ApprovalDate = &approved
		}
		loans = append(loans, loan)
	}
	return loans
}

// Badge - иконка, цвет и подпись записи ленты
type Badge struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Label string `json:"label"`
}

var neutralBadge = Badge{Icon: "activity", Color: "gray", Label: "Activity"}

// Единая таблица отображения: типы журнала и статусы кредитов
var badges = map[string]Badge{
	string(models.ActivityLoanApplication):     {Icon: "file-text", Color: "blue", Label: "Application submitted"},
	string(models.ActivityLoanApproved):        {Icon: "check-circle", Color: "green", Label: "Approved"},
	string(models.ActivityLoanRejected):        {Icon: "x-circle", Color: "red", Label: "Rejected"},
	string(models.ActivityLoanDisbursed):       {Icon: "banknote", Color: "emerald", Label: "Disbursed"},
	string(models.ActivityLoanCompleted):       {Icon: "award", Color: "purple", Label: "Completed"},
	string(models.ActivityProfileUpdated):      {Icon: "user", Color: "slate", Label: "Profile updated"},
	string(models.ActivityDocumentUploaded):    {Icon: "upload", Color: "indigo", Label: "Document uploaded"},
	string(models.ActivityVerificationUpdated): {Icon: "shield-check", Color: "teal", Label: "Verification updated"},
	string(models.ActivitySignIn):              {Icon: "log-in", Color: "gray", Label: "Signed in"},

	string(models.LoanStatusPending):   {Icon: "clock", Color: "yellow", Label: "Pending"},
	string(models.LoanStatusApproved):  {Icon: "check-circle", Color: "green", Label: "Approved"},
	string(models.LoanStatusRejected):  {Icon: "x-circle", Color: "red", Label: "Rejected"},
	string(models.LoanStatusActive):    {Icon: "trending-up", Color: "blue", Label: "Active"},
	string(models.LoanStatusCompleted): {Icon: "award", Color: "purple", Label: "Completed"},
}

// PresentationFor возвращает оформление для типа активности или статуса кредита;
// неизвестный тег получает нейтральное оформление.
func PresentationFor(kind string) Badge {
	if badge, ok := badges[kind]; ok {
		return badge
	}
	return neutralBadge
}
