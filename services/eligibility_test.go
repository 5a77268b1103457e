package services

import (
	"encoding/json"
	"errors"
	"testing"

	"lendingapp/models"
)

func strPtr(s string) *string { return &s }

func completeProfile() *models.Profile {
	return &models.Profile{
		UserID:               1,
		Email:                "borrower@example.com",
		FullName:             strPtr("Jane Doe"),
		Phone:                strPtr("+15550100"),
		Address:              "1 Main St",
		City:                 "Springfield",
		State:                "IL",
		ZipCode:              "62701",
		IncomeSource:         "salary",
		MonthlyIncome:        3000,
		IDDocumentURL:        "http://files/id-documents/1/doc.png",
		IDVerificationStatus: models.VerificationVerified,
		ProfileCompleted:     true,
	}
}

func TestEvaluateEligibility_AllSatisfied(t *testing.T) {
	got := EvaluateEligibility(completeProfile())

	if !got.CanApply {
		t.Fatal("expected borrower to be eligible")
	}
	if len(got.MissingRequirements) != 0 {
		t.Fatalf("expected no missing requirements, got %v", got.MissingRequirements)
	}
	if len(got.Requirements) != 3 || got.Completed() != 3 {
		t.Fatalf("expected all three requirements completed, got %+v", got)
	}
}

func TestEvaluateEligibility_IncompleteProfile(t *testing.T) {
	profile := completeProfile()
	profile.ProfileCompleted = false

	got := EvaluateEligibility(profile)
	if got.CanApply {
		t.Fatal("incomplete profile must not be eligible")
	}
	if len(got.MissingRequirements) != 1 || got.MissingRequirements[0] != RequirementCompleteProfile {
		t.Fatalf("unexpected missing requirements %v", got.MissingRequirements)
	}
}

func TestEvaluateEligibility_OrderAndProgress(t *testing.T) {
	profile := completeProfile()
	profile.IDDocumentURL = ""
	profile.IDVerificationStatus = models.VerificationPending

	got := EvaluateEligibility(profile)
	want := []string{RequirementUploadID, RequirementIDVerified}
	if len(got.MissingRequirements) != len(want) {
		t.Fatalf("expected %v, got %v", want, got.MissingRequirements)
	}
	for i := range want {
		if got.MissingRequirements[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got.MissingRequirements)
		}
	}
	if got.Requirements[0] != RequirementCompleteProfile || got.Requirements[2] != RequirementIDVerified {
		t.Fatalf("requirement labels must keep their order, got %v", got.Requirements)
	}
	if got.Completed() != 1 {
		t.Fatalf("expected 1 completed requirement, got %d", got.Completed())
	}
}

func TestEvaluateEligibility_NilProfile(t *testing.T) {
	got := EvaluateEligibility(nil)
	if got.CanApply || len(got.MissingRequirements) != 3 {
		t.Fatalf("nil profile must miss every requirement, got %+v", got)
	}
}

func validApplication() LoanApplicationRequest {
	return LoanApplicationRequest{
		Amount:         "5000",
		TermMonths:     2,
		Purpose:        "Car repair",
		MonthlyIncome:  "3000",
		EmploymentType: "employed",
		AcceptTerms:    true,
	}
}

func asValidationError(t *testing.T, err error) *ValidationError {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	return verr
}

func TestValidateApplication_Valid(t *testing.T) {
	if err := ValidateApplication(validApplication()); err != nil {
		t.Fatalf("expected valid application, got %v", err)
	}

	req := validApplication()
	req.TermMonths = 0
	if err := ValidateApplication(req); err != nil {
		t.Fatalf("omitted term must be accepted, got %v", err)
	}
	if req.Term() != 1 {
		t.Fatalf("omitted term must default to 1, got %d", req.Term())
	}
}

func TestValidateApplication_AmountAboveMaximum(t *testing.T) {
	req := validApplication()
	req.Amount = "600000"
	req.MonthlyIncome = "200000"

	verr := asValidationError(t, ValidateApplication(req))
	if !verr.HasField("amount") || !verr.HasRule("loan_amount") {
		t.Fatalf("expected amount violation, got %+v", verr.Violations)
	}
}

func TestValidateApplication_IncomeMultiple(t *testing.T) {
	req := validApplication()
	req.Amount = "5000"
	req.MonthlyIncome = "500"

	verr := asValidationError(t, ValidateApplication(req))
	if !verr.HasRule("income_multiple") {
		t.Fatalf("expected income multiple violation, got %+v", verr.Violations)
	}
	if !verr.HasField("amount") {
		t.Fatalf("income multiple violation must point at amount, got %+v", verr.Violations)
	}

	req.MonthlyIncome = "1000"
	if err := ValidateApplication(req); err != nil {
		t.Fatalf("amount equal to five incomes must pass, got %v", err)
	}
}

func TestValidateApplication_EnumeratesEveryField(t *testing.T) {
	req := LoanApplicationRequest{
		Amount:         "abc",
		TermMonths:     7,
		Purpose:        "   ",
		MonthlyIncome:  "0",
		EmploymentType: "",
		AcceptTerms:    false,
	}

	verr := asValidationError(t, ValidateApplication(req))
	for _, field := range []string{"amount", "term_months", "purpose", "monthly_income", "employment_type", "accept_terms"} {
		if !verr.HasField(field) {
			t.Errorf("expected violation for %s, got %+v", field, verr.Violations)
		}
	}
	if verr.Error() == "" {
		t.Fatal("expected error message")
	}
}

func TestValidateApplication_Boundaries(t *testing.T) {
	cases := []struct {
		amount string
		ok     bool
	}{
		{"499.99", false},
		{"500", true},
		{"500000", true},
		{"500000.01", false},
		{"-1000", false},
	}
	for _, tc := range cases {
		req := validApplication()
		req.Amount = AmountInput(tc.amount)
		req.MonthlyIncome = "200000"
		err := ValidateApplication(req)
		if tc.ok && err != nil {
			t.Errorf("amount %s: expected valid, got %v", tc.amount, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("amount %s: expected violation", tc.amount)
		}
	}
}

func TestValidateApplication_UnknownEmploymentType(t *testing.T) {
	req := validApplication()
	req.EmploymentType = "astronaut"

	verr := asValidationError(t, ValidateApplication(req))
	if !verr.HasField("employment_type") || !verr.HasRule("employment_type") {
		t.Fatalf("expected employment type violation, got %+v", verr.Violations)
	}
}

func TestValidateApplication_RejectsFractionsOfCents(t *testing.T) {
	req := validApplication()
	req.Amount = "2500.005"
	req.MonthlyIncome = "500.001"

	verr := asValidationError(t, ValidateApplication(req))
	if !verr.HasRule("loan_amount") || !verr.HasRule("positive_amount") {
		t.Fatalf("expected precision violations for both sums, got %+v", verr.Violations)
	}

	req.Amount = "2500.50"
	req.MonthlyIncome = "500.10"
	if err := ValidateApplication(req); err != nil {
		t.Fatalf("two decimal places must pass, got %v", err)
	}
}

func TestLoanApplicationRequest_DecodesNumbersAndStrings(t *testing.T) {
	var req LoanApplicationRequest
	body := `{"amount":600000,"monthly_income":"500","purpose":"Car","employment_type":"employed","accept_terms":true}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("numeric amount must decode, got %v", err)
	}
	if req.Amount != "600000" || req.MonthlyIncome != "500" {
		t.Fatalf("unexpected decoded sums %q / %q", req.Amount, req.MonthlyIncome)
	}

	verr := asValidationError(t, ValidateApplication(req))
	if !verr.HasField("amount") || !verr.HasRule("loan_amount") {
		t.Fatalf("expected amount violation, got %+v", verr.Violations)
	}

	tests := []struct {
		raw  string
		want AmountInput
	}{
		{`1.5e3`, "1500"},
		{`"1200.50"`, "1200.50"},
		{`null`, ""},
		{`true`, "true"},
	}
	for _, tt := range tests {
		var got AmountInput
		if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
			t.Fatalf("%s: unexpected error %v", tt.raw, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.raw, got, tt.want)
		}
	}

	req.Amount = "true"
	verr = asValidationError(t, ValidateApplication(req))
	if !verr.HasRule("numeric") {
		t.Fatalf("non-numeric amount must be reported as numeric, got %+v", verr.Violations)
	}
}
