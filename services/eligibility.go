package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"lendingapp/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Требования допуска к подаче заявки, порядок фиксирован
const (
	RequirementCompleteProfile = "Complete profile information"
	RequirementUploadID        = "Upload ID document"
	RequirementIDVerified      = "ID verification approved"
)

var requirementLabels = []string{
	RequirementCompleteProfile,
	RequirementUploadID,
	RequirementIDVerified,
}

// Eligibility - результат проверки допуска
type Eligibility struct {
	CanApply            bool     `json:"can_apply"`
	Requirements        []string `json:"requirements"`
	MissingRequirements []string `json:"missing_requirements"`
}

// Completed - сколько требований уже выполнено (для индикатора прогресса)
func (e Eligibility) Completed() int {
	return len(e.Requirements) - len(e.MissingRequirements)
}

// EvaluateEligibility определяет, может ли заемщик подать заявку
func EvaluateEligibility(profile *models.Profile) Eligibility {
	requirements := make([]string, len(requirementLabels))
	copy(requirements, requirementLabels)

	missing := []string{}
	if profile == nil || !profile.ProfileCompleted {
		missing = append(missing, RequirementCompleteProfile)
	}
	if profile == nil || strings.TrimSpace(profile.IDDocumentURL) == "" {
		missing = append(missing, RequirementUploadID)
	}
	if profile == nil || profile.IDVerificationStatus != models.VerificationVerified {
		missing = append(missing, RequirementIDVerified)
	}

	return Eligibility{
		CanApply:            len(missing) == 0,
		Requirements:        requirements,
		MissingRequirements: missing,
	}
}

// EmploymentTypes - типы занятости, доступные в форме заявки (правило employment_type)
var EmploymentTypes = []string{
	"employed",
	"self_employed",
	"business_owner",
	"unemployed",
	"student",
	"retired",
}

// AmountInput - сумма из формы. Клиент присылает ее строкой или JSON-числом,
// формат проверяет правило numeric, поэтому декодирование не падает.
type AmountInput string

func (a *AmountInput) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(raw, []byte("null")):
		*a = ""
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
	default:
		// Число записываем без экспоненты, остальное оставляем как есть
		if d, err := decimal.NewFromString(string(raw)); err == nil {
			*a = AmountInput(d.String())
		} else {
			*a = AmountInput(raw)
		}
	}
	return nil
}

// LoanApplicationRequest - поля формы заявки как они пришли от клиента
type LoanApplicationRequest struct {
	Amount         AmountInput `json:"amount" validate:"required,numeric,loan_amount"`
	TermMonths     int         `json:"term_months" validate:"omitempty,min=1,max=3"`
	Purpose        string      `json:"purpose" validate:"required,notblank"`
	MonthlyIncome  AmountInput `json:"monthly_income" validate:"required,numeric,positive_amount"`
	EmploymentType string      `json:"employment_type" validate:"required,employment_type"`
	AcceptTerms    bool        `json:"accept_terms" validate:"required"`
}

// ParsedAmounts возвращает суммы заявки; вызывать после успешной валидации
func (r LoanApplicationRequest) ParsedAmounts() (amount float64, income float64) {
	amount, _ = parseAmount(string(r.Amount))
	income, _ = parseAmount(string(r.MonthlyIncome))
	return amount, income
}

// Term - срок заявки, по умолчанию один месяц
func (r LoanApplicationRequest) Term() int {
	if r.TermMonths == 0 {
		return 1
	}
	return r.TermMonths
}

// ApplicationValidator проверяет поля заявки
type ApplicationValidator struct {
	validate *validator.Validate
}

// newValidator создает валидатор с общими правилами сервиса
func newValidator() *validator.Validate {
	v := validator.New()

	// Имена полей берем из json-тегов, их же видит клиент
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Суммы хранятся до копейки
	v.RegisterValidation("loan_amount", func(fl validator.FieldLevel) bool {
		amount, err := parseAmount(fl.Field().String())
		return err == nil && amount >= MinLoanAmount && amount <= MaxLoanAmount && hasCentsPrecision(fl.Field().String())
	})
	v.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
		amount, err := parseAmount(fl.Field().String())
		return err == nil && amount > 0 && hasCentsPrecision(fl.Field().String())
	})
	v.RegisterValidation("employment_type", func(fl validator.FieldLevel) bool {
		for _, known := range EmploymentTypes {
			if fl.Field().String() == known {
				return true
			}
		}
		return false
	})
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		password := fl.Field().String()
		// Цифра, заглавная, строчная буква и спецсимвол
		return passwordDigit.MatchString(password) &&
			passwordUpper.MatchString(password) &&
			passwordLower.MatchString(password) &&
			passwordSpecial.MatchString(password)
	})

	return v
}

var (
	passwordDigit   = regexp.MustCompile(`[0-9]`)
	passwordUpper   = regexp.MustCompile(`[A-Z]`)
	passwordLower   = regexp.MustCompile(`[a-z]`)
	passwordSpecial = regexp.MustCompile(`[!@#$%^&*]`)
)

// NewApplicationValidator создает валидатор с правилами заявки
func NewApplicationValidator() *ApplicationValidator {
	v := newValidator()

	// Правило кратности дохода проверяется на уровне структуры, после полей
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(LoanApplicationRequest)
		amount, errAmount := parseAmount(string(req.Amount))
		income, errIncome := parseAmount(string(req.MonthlyIncome))
		if errAmount != nil || errIncome != nil || income <= 0 {
			return
		}
		if amount > income*IncomeMultiple {
			sl.ReportError(req.Amount, "amount", "Amount", "income_multiple", "")
		}
	}, LoanApplicationRequest{})

	return &ApplicationValidator{validate: v}
}

// Validate возвращает *ValidationError со всеми нарушенными полями
func (a *ApplicationValidator) Validate(req LoanApplicationRequest) error {
	err := a.validate.Struct(req)
	if err == nil {
		return nil
	}

	return toValidationError(err)
}

// toValidationError собирает все ошибки валидатора в *ValidationError
func toValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	result := &ValidationError{}
	for _, e := range validationErrors {
		result.Violations = append(result.Violations, FieldViolation{
			Field:   e.Field(),
			Rule:    e.Tag(),
			Message: violationMessage(e),
		})
	}
	return result
}

var defaultApplicationValidator = NewApplicationValidator()

// ValidateApplication проверяет заявку валидатором по умолчанию
func ValidateApplication(req LoanApplicationRequest) error {
	return defaultApplicationValidator.Validate(req)
}

func violationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		if e.Field() == "accept_terms" {
			return "terms and conditions must be accepted"
		}
		return "field " + e.Field() + " is required"
	case "notblank":
		return "field " + e.Field() + " must not be blank"
	case "numeric":
		return "field " + e.Field() + " must be a number"
	case "loan_amount":
		return "amount must be between " + FormatMoney(MinLoanAmount) + " and " + FormatMoney(MaxLoanAmount) + " with at most 2 decimal places"
	case "positive_amount":
		return "field " + e.Field() + " must be greater than 0 with at most 2 decimal places"
	case "employment_type":
		return "field " + e.Field() + " must be one of: " + strings.Join(EmploymentTypes, " ")
	case "oneof":
		return "field " + e.Field() + " must be one of: " + e.Param()
	case "income_multiple":
		return "amount must not exceed " + strconv.Itoa(int(IncomeMultiple)) + " times the monthly income"
	case "min", "max":
		if e.Field() == "term_months" {
			return "field term_months must be between 1 and " + strconv.Itoa(MaxApplicationTermMonths)
		}
		return "field " + e.Field() + " must have " + e.Tag() + " length " + e.Param()
	case "email":
		return "field " + e.Field() + " must be a valid email"
	case "password":
		return "password must contain a digit, an upper and a lower case letter and one of !@#$%^&*"
	case "alphanum":
		return "field " + e.Field() + " must contain only letters and digits"
	}
	return "field " + e.Field() + " is invalid"
}

func parseAmount(raw string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(raw), 64)
}

// hasCentsPrecision - не больше двух знаков после запятой
func hasCentsPrecision(raw string) bool {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	return err == nil && d.Equal(d.Truncate(2))
}
