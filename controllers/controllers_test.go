package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"lendingapp/database"
	"lendingapp/events"
	"lendingapp/models"
	"lendingapp/services"
	"lendingapp/storage"
	"lendingapp/utils"

	"github.com/spf13/afero"
)

var errBackendDown = errors.New("connection refused")

// memStore - хранилище в памяти со всеми операциями, нужными сервисам
type memStore struct {
	mu       sync.Mutex
	users    map[uint]*models.User
	profiles map[uint]*models.Profile
	loans    map[uint]*models.Loan
	entries  []models.ActivityLogEntry
	down     bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uint]*models.User),
		profiles: make(map[uint]*models.Profile),
		loans:    make(map[uint]*models.Loan),
	}
}

func (s *memStore) CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return database.ErrDuplicate
		}
	}
	user.ID = uint(len(s.users) + 1)
	profile.UserID = user.ID
	profile.Email = user.Email
	u, p := *user, *profile
	s.users[user.ID] = &u
	s.profiles[user.ID] = &p
	return nil
}

func (s *memStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == strings.ToLower(strings.TrimSpace(email)) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memStore) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *memStore) AppendActivity(ctx context.Context, entry *models.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uint(len(s.entries) + 1)
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memStore) GetProfileByUserID(ctx context.Context, userID uint) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errBackendDown
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *memStore) SaveProfile(ctx context.Context, profile *models.Profile, entry *models.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *profile
	s.profiles[profile.UserID] = &copied
	if entry != nil {
		entry.ID = uint(len(s.entries) + 1)
		s.entries = append(s.entries, *entry)
	}
	return nil
}

func (s *memStore) CreateLoan(ctx context.Context, loan *models.Loan, entry *models.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan.ID = uint(len(s.loans) + 1)
	copied := *loan
	s.loans[loan.ID] = &copied
	if entry != nil {
		entry.LoanID = &loan.ID
		entry.ID = uint(len(s.entries) + 1)
		s.entries = append(s.entries, *entry)
	}
	return nil
}

func (s *memStore) GetLoan(ctx context.Context, id uint) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	copied := *loan
	return &copied, nil
}

func (s *memStore) sortedLoans(match func(*models.Loan) bool) []models.Loan {
	loans := make([]models.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		if match(loan) {
			loans = append(loans, *loan)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID > loans[j].ID })
	return loans
}

func (s *memStore) ListLoansByUser(ctx context.Context, userID uint, offset, limit int) ([]models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errBackendDown
	}
	loans := s.sortedLoans(func(l *models.Loan) bool { return l.UserID == userID })
	return page(loans, offset, limit), nil
}

func (s *memStore) ListLoans(ctx context.Context, filter database.LoanFilter) ([]models.Loan, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loans := s.sortedLoans(func(l *models.Loan) bool {
		return (filter.Status == "" || l.Status == filter.Status) && (filter.UserID == 0 || l.UserID == filter.UserID)
	})
	return page(loans, filter.Offset, filter.Limit), int64(len(loans)), nil
}

func (s *memStore) LoanStatusSummary(ctx context.Context) (*database.StatusSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := &database.StatusSummary{Counts: make(map[models.LoanStatus]int64)}
	for _, loan := range s.loans {
		summary.Counts[loan.Status]++
		if loan.Status == models.LoanStatusActive || loan.Status == models.LoanStatusCompleted {
			summary.TotalDisbursed += loan.Amount
		}
	}
	return summary, nil
}

func (s *memStore) ApplyTransition(ctx context.Context, upd database.TransitionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, ok := s.loans[upd.LoanID]
	if !ok {
		return database.ErrNotFound
	}
	if loan.Status != upd.From {
		return database.ErrStaleStatus
	}
	loan.Status = upd.To
	if upd.Entry != nil {
		upd.Entry.ID = uint(len(s.entries) + 1)
		s.entries = append(s.entries, *upd.Entry)
	}
	return nil
}

func (s *memStore) ListActivityByUser(ctx context.Context, userID uint, limit int) ([]models.ActivityLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errBackendDown
	}
	var entries []models.ActivityLogEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].UserID == userID {
			entries = append(entries, s.entries[i])
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func page(loans []models.Loan, offset, limit int) []models.Loan {
	if offset >= len(loans) {
		return []models.Loan{}
	}
	loans = loans[offset:]
	if limit > 0 && len(loans) > limit {
		loans = loans[:limit]
	}
	return loans
}

type fixedRate struct {
	rate float64
	live bool
}

func (f fixedRate) Current() (float64, bool) { return f.rate, f.live }

type testServer struct {
	handler http.Handler
	store   *memStore
	tokens  *services.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := newMemStore()
	tokens := services.NewTokenService("test-secret", time.Hour)
	metrics := utils.NewMetrics()
	bucket := storage.NewBucket(afero.NewMemMapFs(), "http://files.test", []byte("bucket-key"))
	publisher := &events.FallbackPublisher{}

	users := services.NewUserService(store, tokens)
	profiles := services.NewProfileService(store, bucket, 0, metrics)
	loans := services.NewLoanService(store, publisher, metrics)
	lifecycle := services.NewLifecycleService(store, publisher, nil, metrics)
	activity := services.NewActivityService(store)

	router := &Router{
		Auth:        NewAuthController(users),
		Calculator:  NewCalculatorController(fixedRate{rate: 12}),
		Profile:     NewProfileController(profiles, 0),
		Loans:       NewLoanController(loans, activity, metrics),
		Admin:       NewAdminController(loans, lifecycle, profiles, metrics),
		Files:       NewFileController(bucket),
		Health:      store,
		Tokens:      tokens,
		Limiter:     utils.NewRateLimiter(1000, time.Minute),
		Metrics:     metrics,
		CORSOrigins: []string{"*"},
	}

	return &testServer{handler: router.Handler(), store: store, tokens: tokens}
}

func (s *memStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("connection refused")
	}
	return nil
}

func (ts *testServer) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func (ts *testServer) signUp(t *testing.T, email string) (uint, string) {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/auth/signUp", "", services.SignUpRequest{Email: email, Password: "Secret1!x"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("sign up: status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp services.AuthResponse
	decode(t, rr, &resp)
	return resp.User.ID, resp.Token.Token
}

func (ts *testServer) adminToken(t *testing.T) string {
	t.Helper()
	admin := &models.User{Email: "admin@example.com", Password: "-", Role: models.RoleAdmin}
	if err := ts.store.CreateUserWithProfile(context.Background(), admin, &models.Profile{}); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	token, err := ts.tokens.Issue(admin)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	return token.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func uploadDocument(t *testing.T, ts *testServer, token string, content []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("document", "passport.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(content)
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/profile/document", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

func completeProfileSteps(t *testing.T, ts *testServer, token string) {
	t.Helper()

	steps := []struct {
		step string
		req  services.ProfileStepRequest
	}{
		{"1", services.ProfileStepRequest{FullName: "Jane Doe", Phone: "+15550001111"}},
		{"2", services.ProfileStepRequest{Address: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701"}},
		{"3", services.ProfileStepRequest{IncomeSource: "salary", EmployerName: "Acme", MonthlyIncome: "4000"}},
	}
	for _, s := range steps {
		if rr := ts.do(t, http.MethodPut, "/api/profile/steps/"+s.step, token, s.req); rr.Code != http.StatusOK {
			t.Fatalf("step %s: status %d, body %s", s.step, rr.Code, rr.Body.String())
		}
	}

	if rr := uploadDocument(t, ts, token, pngHeader); rr.Code != http.StatusOK {
		t.Fatalf("upload: status %d, body %s", rr.Code, rr.Body.String())
	}

	for _, step := range []string{"4", "5"} {
		if rr := ts.do(t, http.MethodPut, "/api/profile/steps/"+step, token, services.ProfileStepRequest{}); rr.Code != http.StatusOK {
			t.Fatalf("step %s: status %d, body %s", step, rr.Code, rr.Body.String())
		}
	}
}

func validApplication() services.LoanApplicationRequest {
	return services.LoanApplicationRequest{
		Amount:         "1000",
		TermMonths:     2,
		Purpose:        "Car repair",
		MonthlyIncome:  "4000",
		EmploymentType: "employed",
		AcceptTerms:    true,
	}
}

func TestLoanJourney(t *testing.T) {
	ts := newTestServer(t)
	userID, token := ts.signUp(t, "jane@example.com")
	admin := ts.adminToken(t)

	completeProfileSteps(t, ts, token)

	// Документ еще не проверен
	rr := ts.do(t, http.MethodPost, "/api/loans", token, validApplication())
	if rr.Code != http.StatusForbidden {
		t.Fatalf("submit before verification: status %d, body %s", rr.Code, rr.Body.String())
	}
	var ineligible errorResponse
	decode(t, rr, &ineligible)
	if len(ineligible.MissingRequirements) != 1 || ineligible.MissingRequirements[0] != services.RequirementIDVerified {
		t.Fatalf("unexpected missing requirements %v", ineligible.MissingRequirements)
	}

	rr = ts.do(t, http.MethodPut, "/api/admin/profiles/"+itoa(userID)+"/verification", admin, verificationRequest{Status: models.VerificationVerified})
	if rr.Code != http.StatusOK {
		t.Fatalf("verification: status %d, body %s", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodGet, "/api/eligibility", token, nil)
	var eligibility eligibilityResponse
	decode(t, rr, &eligibility)
	if !eligibility.CanApply || eligibility.Completed != 3 || eligibility.Total != 3 {
		t.Fatalf("unexpected eligibility %+v", eligibility)
	}

	rr = ts.do(t, http.MethodPost, "/api/loans", token, validApplication())
	if rr.Code != http.StatusCreated {
		t.Fatalf("submit: status %d, body %s", rr.Code, rr.Body.String())
	}
	var submitted submitResponse
	decode(t, rr, &submitted)
	if submitted.Loan.Status != models.LoanStatusPending || submitted.Display["total_amount"] != "1300.00" {
		t.Fatalf("unexpected submitted loan %+v, display %v", submitted.Loan, submitted.Display)
	}
	loanID := itoa(submitted.Loan.ID)

	for _, action := range []string{"approve", "disburse", "complete"} {
		rr = ts.do(t, http.MethodPost, "/api/admin/loans/"+loanID+"/"+action, admin, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status %d, body %s", action, rr.Code, rr.Body.String())
		}
	}

	rr = ts.do(t, http.MethodPost, "/api/admin/loans/"+loanID+"/approve", admin, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("approve completed loan: status %d", rr.Code)
	}
	var conflict errorResponse
	decode(t, rr, &conflict)
	if conflict.CurrentStatus != string(models.LoanStatusCompleted) {
		t.Fatalf("conflict must report current status, got %+v", conflict)
	}

	rr = ts.do(t, http.MethodGet, "/api/loans/"+loanID, token, nil)
	var loan models.Loan
	decode(t, rr, &loan)
	if loan.Status != models.LoanStatusCompleted {
		t.Fatalf("expected completed loan, got %s", loan.Status)
	}

	rr = ts.do(t, http.MethodGet, "/api/activity?scope=full", token, nil)
	var feed activityResponse
	decode(t, rr, &feed)
	if feed.Sample || feed.Status != services.FeedStatusOK || len(feed.Items) != services.ActivityFeedLimit {
		t.Fatalf("unexpected feed: sample=%v status=%s items=%d", feed.Sample, feed.Status, len(feed.Items))
	}

	rr = ts.do(t, http.MethodGet, "/api/activity", token, nil)
	decode(t, rr, &feed)
	if len(feed.Items) != services.SummaryFeedLimit {
		t.Fatalf("summary feed must hold %d items, got %d", services.SummaryFeedLimit, len(feed.Items))
	}

	rr = ts.do(t, http.MethodGet, "/api/admin/dashboard", admin, nil)
	var dashboard services.Dashboard
	decode(t, rr, &dashboard)
	if dashboard.TotalLoans != 1 || dashboard.Counts[models.LoanStatusCompleted] != 1 || dashboard.TotalDisbursed != 1000 {
		t.Fatalf("unexpected dashboard %+v", dashboard)
	}
}

func TestSubmitReportsEveryViolation(t *testing.T) {
	ts := newTestServer(t)
	userID, token := ts.signUp(t, "val@example.com")
	completeProfileSteps(t, ts, token)
	ts.store.profiles[userID].IDVerificationStatus = models.VerificationVerified

	rr := ts.do(t, http.MethodPost, "/api/loans", token, services.LoanApplicationRequest{Amount: "100"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	var resp errorResponse
	decode(t, rr, &resp)
	fields := make(map[string]bool)
	for _, v := range resp.Violations {
		fields[v.Field] = true
	}
	for _, field := range []string{"amount", "purpose", "monthly_income", "employment_type", "accept_terms"} {
		if !fields[field] {
			t.Errorf("missing violation for %s in %+v", field, resp.Violations)
		}
	}
}

func TestSubmitAcceptsNumericSums(t *testing.T) {
	ts := newTestServer(t)
	userID, token := ts.signUp(t, "numbers@example.com")
	completeProfileSteps(t, ts, token)
	ts.store.profiles[userID].IDVerificationStatus = models.VerificationVerified

	// Шаг дохода тоже принимает число
	rr := ts.do(t, http.MethodPut, "/api/profile/steps/3", token, map[string]interface{}{
		"income_source": "salary", "monthly_income": 4500.5,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("income step: status %d, body %s", rr.Code, rr.Body.String())
	}
	if got := ts.store.profiles[userID].MonthlyIncome; got != 4500.5 {
		t.Fatalf("monthly income = %v, want 4500.5", got)
	}

	application := map[string]interface{}{
		"amount":          600000,
		"term_months":     1,
		"purpose":         "Car repair",
		"monthly_income":  500,
		"employment_type": "employed",
		"accept_terms":    true,
	}
	rr = ts.do(t, http.MethodPost, "/api/loans", token, application)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp errorResponse
	decode(t, rr, &resp)
	found := false
	for _, v := range resp.Violations {
		if v.Field == "amount" && v.Rule == "loan_amount" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected amount violation, got %+v", resp.Violations)
	}

	application["amount"] = 1500
	rr = ts.do(t, http.MethodPost, "/api/loans", token, application)
	if rr.Code != http.StatusCreated {
		t.Fatalf("numeric application: status %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestActivityFallsBackToSample(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.signUp(t, "empty@example.com")

	rr := ts.do(t, http.MethodGet, "/api/activity", token, nil)
	var feed activityResponse
	decode(t, rr, &feed)
	if !feed.Sample || feed.Status != services.FeedStatusEmpty || len(feed.Items) == 0 {
		t.Fatalf("empty feed must be replaced by sample, got %+v", feed)
	}

	ts.store.down = true
	rr = ts.do(t, http.MethodGet, "/api/activity", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("feed must not fail when the store is down, got %d", rr.Code)
	}
	decode(t, rr, &feed)
	if !feed.Sample || feed.Status != services.FeedStatusUnavailable {
		t.Fatalf("failed feed must be flagged as sample, got %+v", feed)
	}

	rr = ts.do(t, http.MethodGet, "/api/loans", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history must not fail when the store is down, got %d", rr.Code)
	}
	var history services.LoanHistory
	decode(t, rr, &history)
	if !history.Sample || history.Status != services.FeedStatusUnavailable || len(history.Loans) == 0 {
		t.Fatalf("failed history must be flagged as sample, got %+v", history)
	}

	// Дальние страницы не подменяются
	rr = ts.do(t, http.MethodGet, "/api/loans?offset=10", token, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("later page must report unavailable store, got %d", rr.Code)
	}

	ts.store.down = false
	rr = ts.do(t, http.MethodGet, "/api/loans", token, nil)
	history = services.LoanHistory{}
	decode(t, rr, &history)
	if !history.Sample || history.Status != services.FeedStatusEmpty {
		t.Fatalf("empty history must be replaced by sample, got %+v", history)
	}
}

func TestReadinessFollowsStore(t *testing.T) {
	ts := newTestServer(t)

	if rr := ts.do(t, http.MethodGet, "/health/ready", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("ready: status %d", rr.Code)
	}

	ts.store.down = true
	if rr := ts.do(t, http.MethodGet, "/health/ready", "", nil); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with store down: status %d, want 503", rr.Code)
	}
}

func TestCalculatorEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/api/calculator/flat?amount=1000&term=2", "", nil)
	var flat flatResponse
	decode(t, rr, &flat)
	if flat.Display["monthly_payment"] != "650.00" || flat.Display["interest_amount"] != "300.00" {
		t.Fatalf("unexpected flat terms %+v", flat.Display)
	}

	rr = ts.do(t, http.MethodGet, "/api/calculator/amortized?amount=10000&term=12&rate=12&schedule=true", "", nil)
	var amortized amortizedResponse
	decode(t, rr, &amortized)
	if amortized.Display["monthly_payment"] != "888.49" || amortized.RateSource != "request" || len(amortized.Schedule) != 12 {
		t.Fatalf("unexpected amortized result %+v", amortized)
	}

	rr = ts.do(t, http.MethodGet, "/api/calculator/amortized?amount=10000&term=12", "", nil)
	decode(t, rr, &amortized)
	if amortized.RateSource != "default" || amortized.AnnualRatePercent != 12 {
		t.Fatalf("expected configured default rate, got %+v", amortized)
	}

	rr = ts.do(t, http.MethodGet, "/api/calculator/flat?amount=-5&term=1", "", nil)
	decode(t, rr, &flat)
	if rr.Code != http.StatusOK || flat.TotalAmount != 0 {
		t.Fatalf("non-positive amount must yield zero terms, got %d %+v", rr.Code, flat)
	}

	for _, target := range []string{
		"/api/calculator/flat?amount=abc&term=1",
		"/api/calculator/flat?amount=1000&term=4",
		"/api/calculator/amortized?amount=1000&term=12&rate=-1",
	} {
		if rr := ts.do(t, http.MethodGet, target, "", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, rr.Code)
		}
	}
}

func TestDocumentLinkIsSigned(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.signUp(t, "doc@example.com")

	rr := uploadDocument(t, ts, token, pngHeader)
	if rr.Code != http.StatusOK {
		t.Fatalf("upload: status %d, body %s", rr.Code, rr.Body.String())
	}
	var profile models.Profile
	decode(t, rr, &profile)
	if profile.IDVerificationStatus != models.VerificationPending {
		t.Fatalf("expected pending verification, got %s", profile.IDVerificationStatus)
	}

	link, err := url.Parse(profile.IDDocumentURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}

	rr = ts.do(t, http.MethodGet, link.RequestURI(), "", nil)
	if rr.Code != http.StatusOK || !bytes.Equal(rr.Body.Bytes(), pngHeader) {
		t.Fatalf("signed link: status %d", rr.Code)
	}

	rr = ts.do(t, http.MethodGet, link.Path+"?sig=forged", "", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("forged signature: status %d, want 403", rr.Code)
	}

	if rr := uploadDocument(t, ts, token, []byte("plain text, not a document")); rr.Code != http.StatusBadRequest {
		t.Fatalf("text upload: status %d, want 400", rr.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.signUp(t, "borrower@example.com")

	if rr := ts.do(t, http.MethodGet, "/api/admin/dashboard", token, nil); rr.Code != http.StatusForbidden {
		t.Fatalf("borrower on admin route: status %d, want 403", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/admin/dashboard", "", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous on admin route: status %d, want 401", rr.Code)
	}

	admin := ts.adminToken(t)
	if rr := ts.do(t, http.MethodPost, "/api/admin/loans/1/launch", admin, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: status %d, want 400", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/admin/loans/99/approve", admin, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing loan: status %d, want 404", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/admin/loans?status=frozen", admin, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown status filter: status %d, want 400", rr.Code)
	}

	rr := ts.do(t, http.MethodGet, "/api/admin/loans/export", admin, nil)
	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("export: status %d, content type %q", rr.Code, rr.Header().Get("Content-Type"))
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.signUp(t, "session@example.com")

	if rr := ts.do(t, http.MethodPost, "/api/auth/signUp", "", services.SignUpRequest{Email: "session@example.com", Password: "Secret1!x"}); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate sign up: status %d, want 409", rr.Code)
	}
	if rr := ts.do(t, http.MethodPost, "/api/auth/signIn", "", services.SignInRequest{Email: "session@example.com", Password: "Wrong1!x"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password: status %d, want 401", rr.Code)
	}

	rr := ts.do(t, http.MethodGet, "/api/me", token, nil)
	var me services.UserResponse
	decode(t, rr, &me)
	if me.Email != "session@example.com" || me.Role != models.RoleBorrower {
		t.Fatalf("unexpected me %+v", me)
	}

	if rr := ts.do(t, http.MethodPost, "/api/auth/signOut", token, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("sign out: status %d", rr.Code)
	}
	if rr := ts.do(t, http.MethodGet, "/api/me", token, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("token after sign out: status %d, want 401", rr.Code)
	}
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
