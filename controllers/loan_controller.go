package controllers

import (
	"errors"
	"net/http"
	"time"

	"lendingapp/middleware"
	"lendingapp/models"
	"lendingapp/services"
	"lendingapp/utils"
)

// LoanController обрабатывает заявки и ленту активности заемщика
type LoanController struct {
	loans    *services.LoanService
	activity *services.ActivityService
	metrics  *utils.Metrics
	now      func() time.Time
}

func NewLoanController(loans *services.LoanService, activity *services.ActivityService, metrics *utils.Metrics) *LoanController {
	return &LoanController{
		loans:    loans,
		activity: activity,
		metrics:  metrics,
		now:      time.Now,
	}
}

type submitResponse struct {
	Loan    *models.Loan      `json:"loan"`
	Display map[string]string `json:"display"`
}

type activityResponse struct {
	Status services.FeedStatus     `json:"status"`
	Items  []services.ActivityItem `json:"items"`
	Sample bool                    `json:"sample"`
}

// Submit подает заявку на кредит
func (c *LoanController) Submit(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req services.LoanApplicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	loan, err := c.loans.Submit(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Loan: loan,
		Display: map[string]string{
			"amount":          services.FormatMoney(loan.Amount),
			"monthly_payment": services.FormatMoney(loan.MonthlyPayment),
			"total_amount":    services.FormatMoney(loan.TotalAmount),
			"interest_amount": services.FormatMoney(loan.InterestAmount),
		},
	})
}

// History возвращает заявки заемщика
func (c *LoanController) History(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	offset, okOffset := queryInt(r, "offset", 0)
	limit, okLimit := queryInt(r, "limit", services.DefaultPageSize)
	if !okOffset || !okLimit {
		writeMessage(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	history, err := c.loans.History(r.Context(), userID, offset, limit)
	if err != nil {
		var unavailable *services.BackendUnavailableError
		if !errors.As(err, &unavailable) || offset > 0 {
			writeServiceError(w, err)
			return
		}
		utils.LogError("История заявок пользователя %d недоступна: %v", userID, err)
		c.metrics.RecordError(err)
		history.Status = services.FeedStatusUnavailable
	}

	// Первая страница без заявок заменяется демонстрационной историей
	if offset == 0 && (err != nil || history.Status == services.FeedStatusEmpty) {
		c.metrics.RecordSampleFeed()
		history.Loans = services.SampleLoans(c.now())
		history.Sample = true
	}

	writeJSON(w, http.StatusOK, history)
}

// GetLoan возвращает кредит заемщика
func (c *LoanController) GetLoan(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	loanID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid loan ID")
		return
	}

	loan, err := c.loans.Get(r.Context(), userID, loanID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// Activity возвращает ленту: scope=summary для главного экрана, full для полной истории.
// Пустая лента и недоступное хранилище заменяются демонстрационными данными с флагом sample.
func (c *LoanController) Activity(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := middleware.GetUserFromContext(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	limit := services.SummaryFeedLimit
	switch r.URL.Query().Get("scope") {
	case "", "summary":
	case "full":
		limit = services.ActivityFeedLimit
	default:
		writeServiceError(w, fieldError("scope", "oneof", "scope must be one of: summary full"))
		return
	}

	feed, err := c.activity.Feed(r.Context(), userID, limit)
	if err != nil {
		var unavailable *services.BackendUnavailableError
		if !errors.As(err, &unavailable) {
			writeServiceError(w, err)
			return
		}
		utils.LogError("Лента активности пользователя %d недоступна: %v", userID, err)
		c.metrics.RecordError(err)
	}

	if err != nil || feed.Status == services.FeedStatusEmpty {
		c.metrics.RecordSampleFeed()
		status := services.FeedStatusEmpty
		if err != nil {
			status = services.FeedStatusUnavailable
		}
		writeJSON(w, http.StatusOK, activityResponse{
			Status: status,
			Items:  services.SampleActivity(c.now(), limit),
			Sample: true,
		})
		return
	}

	writeJSON(w, http.StatusOK, activityResponse{Status: feed.Status, Items: feed.Items})
}
