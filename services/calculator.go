package services

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// FlatMonthlyRate - фиксированная ставка основного продукта, 15% в месяц
	FlatMonthlyRate = 0.15

	MinLoanAmount = 500.0
	MaxLoanAmount = 500000.0

	// IncomeMultiple - сумма кредита не больше пяти месячных доходов
	IncomeMultiple = 5.0

	MaxApplicationTermMonths = 3
	MaxCalculatorTermMonths  = 36
)

// FlatTerms - условия по модели фиксированной месячной ставки
type FlatTerms struct {
	Amount         float64 `json:"amount"`
	TermMonths     int     `json:"term_months"`
	InterestRate   float64 `json:"interest_rate"`
	MonthlyPayment float64 `json:"monthly_payment"`
	TotalAmount    float64 `json:"total_amount"`
	InterestAmount float64 `json:"interest_amount"`
}

// AmortizedTerms - условия по аннуитетной модели (результат калькулятора)
type AmortizedTerms struct {
	Amount            float64 `json:"amount"`
	TermMonths        int     `json:"term_months"`
	AnnualRatePercent float64 `json:"annual_rate_percent"`
	MonthlyPayment    float64 `json:"monthly_payment"`
	TotalAmount       float64 `json:"total_amount"`
	InterestAmount    float64 `json:"interest_amount"`
	TotalInterest     float64 `json:"total_interest"`
}

// ScheduleRow - строка графика платежей
type ScheduleRow struct {
	Number    int       `json:"number"`
	DueDate   time.Time `json:"due_date"`
	Payment   float64   `json:"payment"`
	Principal float64   `json:"principal"`
	Interest  float64   `json:"interest"`
	Remaining float64   `json:"remaining"`
}

// ComputeFlatLoanTerms считает условия заявки: проценты начисляются на всю сумму
// за каждый месяц срока. Вырожденный ввод дает нули, а не ошибку.
func ComputeFlatLoanTerms(amount float64, termMonths int) FlatTerms {
	if !(amount > 0) || termMonths <= 0 || math.IsInf(amount, 0) {
		return FlatTerms{}
	}

	interest := amount * FlatMonthlyRate * float64(termMonths)
	total := amount + interest
	if math.IsInf(total, 0) {
		return FlatTerms{}
	}

	return FlatTerms{
		Amount:         amount,
		TermMonths:     termMonths,
		InterestRate:   FlatMonthlyRate,
		MonthlyPayment: total / float64(termMonths),
		TotalAmount:    total,
		InterestAmount: interest,
	}
}

// ComputeAmortizedTerms считает аннуитетный платеж для калькулятора.
// Годовая ставка задается в процентах. NaN и бесконечности превращаются в 0.
func ComputeAmortizedTerms(amount float64, termMonths int, annualRatePercent float64) AmortizedTerms {
	if !(amount > 0) || termMonths <= 0 || annualRatePercent < 0 || math.IsNaN(annualRatePercent) {
		return AmortizedTerms{}
	}

	// Конвертируем годовую ставку в месячную (в долях)
	monthlyRate := annualRatePercent / 100 / 12
	months := float64(termMonths)

	var monthlyPayment float64
	if monthlyRate == 0 {
		monthlyPayment = amount / months
	} else {
		// Рассчитываем коэффициент аннуитета
		growth := math.Pow(1+monthlyRate, months)
		monthlyPayment = amount * monthlyRate * growth / (growth - 1)
	}
	// Численно вырожденная комбинация срока и ставки
	if math.IsNaN(monthlyPayment) || math.IsInf(monthlyPayment, 0) {
		return AmortizedTerms{}
	}

	totalInterest := 0.0
	if monthlyRate != 0 {
		totalInterest = finiteOrZero(monthlyPayment*months - amount)
	}
	totalAmount := finiteOrZero(amount + totalInterest)

	return AmortizedTerms{
		Amount:            amount,
		TermMonths:        termMonths,
		AnnualRatePercent: annualRatePercent,
		MonthlyPayment:    monthlyPayment,
		TotalAmount:       totalAmount,
		InterestAmount:    totalInterest,
		TotalInterest:     totalInterest,
	}
}

// BuildAmortizationSchedule генерирует график платежей по аннуитетной модели
func BuildAmortizationSchedule(amount float64, termMonths int, annualRatePercent float64, start time.Time) []ScheduleRow {
	terms := ComputeAmortizedTerms(amount, termMonths, annualRatePercent)
	if terms.MonthlyPayment == 0 {
		return []ScheduleRow{}
	}

	monthlyRate := annualRatePercent / 100 / 12
	remaining := amount
	rows := make([]ScheduleRow, termMonths)

	for i := 0; i < termMonths; i++ {
		// Рассчитываем проценты за текущий месяц
		interest := remaining * monthlyRate
		principal := terms.MonthlyPayment - interest
		payment := terms.MonthlyPayment

		// Последний платеж закрывает остаток целиком
		if i == termMonths-1 {
			principal = remaining
			payment = principal + interest
		}
		remaining -= principal

		rows[i] = ScheduleRow{
			Number:    i + 1,
			DueDate:   start.AddDate(0, i+1, 0),
			Payment:   payment,
			Principal: principal,
			Interest:  interest,
			Remaining: math.Max(remaining, 0),
		}
	}

	return rows
}

// FormatMoney округляет сумму до копеек только для отображения
func FormatMoney(value float64) string {
	return decimal.NewFromFloat(finiteOrZero(value)).StringFixed(2)
}

// DisplayFlatTerms - условия заявки в виде строк для клиента
func DisplayFlatTerms(t FlatTerms) map[string]string {
	return map[string]string{
		"amount":          FormatMoney(t.Amount),
		"monthly_payment": FormatMoney(t.MonthlyPayment),
		"total_amount":    FormatMoney(t.TotalAmount),
		"interest_amount": FormatMoney(t.InterestAmount),
	}
}

// DisplayAmortizedTerms - результат калькулятора в виде строк для клиента
func DisplayAmortizedTerms(t AmortizedTerms) map[string]string {
	return map[string]string{
		"amount":          FormatMoney(t.Amount),
		"monthly_payment": FormatMoney(t.MonthlyPayment),
		"total_amount":    FormatMoney(t.TotalAmount),
		"total_interest":  FormatMoney(t.TotalInterest),
	}
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
