package controllers

import (
	"net/http"
	"strconv"
	"time"

	"lendingapp/services"
)

// RateSource - годовая ставка по умолчанию для калькулятора
type RateSource interface {
	Current() (float64, bool)
}

// CalculatorController считает условия кредита без сохранения
type CalculatorController struct {
	rates RateSource
	now   func() time.Time
}

func NewCalculatorController(rates RateSource) *CalculatorController {
	return &CalculatorController{rates: rates, now: time.Now}
}

type flatResponse struct {
	services.FlatTerms
	Display map[string]string `json:"display"`
}

type amortizedResponse struct {
	services.AmortizedTerms
	RateSource string                 `json:"rate_source"`
	Display    map[string]string      `json:"display"`
	Schedule   []services.ScheduleRow `json:"schedule,omitempty"`
}

// Flat считает условия основного продукта (15% в месяц)
func (c *CalculatorController) Flat(w http.ResponseWriter, r *http.Request) {
	amount, term, ok := c.readAmountAndTerm(w, r, services.MaxApplicationTermMonths)
	if !ok {
		return
	}

	terms := services.ComputeFlatLoanTerms(amount, term)
	writeJSON(w, http.StatusOK, flatResponse{FlatTerms: terms, Display: services.DisplayFlatTerms(terms)})
}

// Amortized считает аннуитетный платеж. Без rate берется ключевая ставка
// центрального банка, а если ее нет, ставка из конфигурации.
func (c *CalculatorController) Amortized(w http.ResponseWriter, r *http.Request) {
	amount, term, ok := c.readAmountAndTerm(w, r, services.MaxCalculatorTermMonths)
	if !ok {
		return
	}

	rate, live := c.rates.Current()
	source := "default"
	if live {
		source = "central_bank"
	}
	if raw := r.URL.Query().Get("rate"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed < 0 {
			writeServiceError(w, fieldError("rate", "min", "must be a non-negative number"))
			return
		}
		rate, source = parsed, "request"
	}

	terms := services.ComputeAmortizedTerms(amount, term, rate)
	resp := amortizedResponse{
		AmortizedTerms: terms,
		RateSource:     source,
		Display:        services.DisplayAmortizedTerms(terms),
	}
	if r.URL.Query().Get("schedule") == "true" {
		resp.Schedule = services.BuildAmortizationSchedule(amount, term, rate, c.now())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (c *CalculatorController) readAmountAndTerm(w http.ResponseWriter, r *http.Request, maxTerm int) (float64, int, bool) {
	var violations []services.FieldViolation

	amount, err := strconv.ParseFloat(r.URL.Query().Get("amount"), 64)
	if err != nil {
		violations = append(violations, services.FieldViolation{Field: "amount", Rule: "numeric", Message: "must be a valid number"})
	}

	term, ok := queryInt(r, "term", 1)
	if !ok || term < 1 || term > maxTerm {
		violations = append(violations, services.FieldViolation{
			Field:   "term",
			Rule:    "max",
			Message: "must be between 1 and " + strconv.Itoa(maxTerm) + " months",
		})
	}

	if len(violations) > 0 {
		writeServiceError(w, &services.ValidationError{Violations: violations})
		return 0, 0, false
	}
	return amount, term, true
}

func fieldError(field, rule, message string) error {
	return &services.ValidationError{Violations: []services.FieldViolation{{Field: field, Rule: rule, Message: message}}}
}
