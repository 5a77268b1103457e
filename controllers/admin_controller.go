package controllers

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"lendingapp/database"
	"lendingapp/models"
	"lendingapp/services"
	"lendingapp/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminController - рассмотрение заявок и проверка документов
type AdminController struct {
	loans     *services.LoanService
	lifecycle *services.LifecycleService
	profiles  *services.ProfileService
	metrics   *utils.Metrics
}

func NewAdminController(loans *services.LoanService, lifecycle *services.LifecycleService, profiles *services.ProfileService, metrics *utils.Metrics) *AdminController {
	return &AdminController{
		loans:     loans,
		lifecycle: lifecycle,
		profiles:  profiles,
		metrics:   metrics,
	}
}

type verificationRequest struct {
	Status models.VerificationStatus `json:"status"`
}

type transitionResponse struct {
	Loan           *models.Loan          `json:"loan"`
	AllowedActions []services.LoanAction `json:"allowed_actions"`
}

// ListLoans возвращает страницу кредитов с фильтром по статусу и пользователю
func (c *AdminController) ListLoans(w http.ResponseWriter, r *http.Request) {
	filter, ok := readLoanFilter(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	page, err := c.loans.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

// ExportLoans выгружает кредиты под фильтр в XLSX
func (c *AdminController) ExportLoans(w http.ResponseWriter, r *http.Request) {
	filter, ok := readLoanFilter(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid query parameters")
		return
	}

	// Собираем файл целиком, чтобы при ошибке отдать нормальный ответ
	var buf bytes.Buffer
	if err := c.loans.ExportLoansXLSX(r.Context(), filter, &buf); err != nil {
		writeServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("loans-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		utils.LogError("Ошибка отправки выгрузки: %v", err)
	}
}

// TransitionLoan выполняет действие жизненного цикла: approve, reject, disburse, complete
func (c *AdminController) TransitionLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := pathID(r, "id")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid loan ID")
		return
	}

	action, ok := services.ParseLoanAction(muxVar(r, "action"))
	if !ok {
		writeServiceError(w, fieldError("action", "oneof", "action must be one of: approve reject disburse complete"))
		return
	}

	loan, err := c.lifecycle.TransitionLoan(r.Context(), loanID, action)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transitionResponse{
		Loan:           loan,
		AllowedActions: services.AllowedActions(loan.Status),
	})
}

// SetVerification принимает решение по документу заемщика
func (c *AdminController) SetVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(r, "userID")
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	var req verificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	profile, err := c.profiles.SetVerification(r.Context(), userID, req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Dashboard - количество кредитов по статусам и сумма выдач
func (c *AdminController) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := c.loans.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dashboard)
}

// Metrics возвращает снимок метрик процесса
func (c *AdminController) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.metrics.GetMetricsSnapshot())
}

func readLoanFilter(r *http.Request) (database.LoanFilter, bool) {
	offset, okOffset := queryInt(r, "offset", 0)
	limit, okLimit := queryInt(r, "limit", services.DefaultPageSize)
	userID, okUser := queryInt(r, "user_id", 0)
	if !okOffset || !okLimit || !okUser || userID < 0 {
		return database.LoanFilter{}, false
	}

	return database.LoanFilter{
		Status: models.LoanStatus(r.URL.Query().Get("status")),
		UserID: uint(userID),
		Offset: offset,
		Limit:  limit,
	}, true
}
