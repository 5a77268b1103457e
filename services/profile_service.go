package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"lendingapp/database"
	"lendingapp/models"
	"lendingapp/storage"
	"lendingapp/utils"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultMaxDocumentBytes - предельный размер скана документа
const DefaultMaxDocumentBytes int64 = 5 << 20

// Допустимые форматы документа, удостоверяющего личность
var allowedDocumentTypes = []string{"image/jpeg", "image/png", "application/pdf"}

// ProfileStore - операции хранилища для анкеты
type ProfileStore interface {
	GetProfileByUserID(ctx context.Context, userID uint) (*models.Profile, error)
	SaveProfile(ctx context.Context, profile *models.Profile, entry *models.ActivityLogEntry) error
}

// ProfileStepRequest - данные шага анкеты; каждый шаг читает только свои поля
type ProfileStepRequest struct {
	FullName      string      `json:"full_name"`
	Phone         string      `json:"phone"`
	Address       string      `json:"address"`
	City          string      `json:"city"`
	State         string      `json:"state"`
	ZipCode       string      `json:"zip_code"`
	IncomeSource  string      `json:"income_source"`
	EmployerName  string      `json:"employer_name"`
	MonthlyIncome AmountInput `json:"monthly_income"`
}

type personalStep struct {
	FullName string `json:"full_name" validate:"required,notblank,max=100"`
	Phone    string `json:"phone" validate:"required,min=7,max=30"`
}

type addressStep struct {
	Address string `json:"address" validate:"required,notblank,max=255"`
	City    string `json:"city" validate:"required,notblank,max=100"`
	State   string `json:"state" validate:"required,notblank,max=100"`
	ZipCode string `json:"zip_code" validate:"required,alphanum,max=20"`
}

type incomeStep struct {
	IncomeSource  string `json:"income_source" validate:"required,notblank,max=50"`
	EmployerName  string `json:"employer_name" validate:"max=100"`
	MonthlyIncome string `json:"monthly_income" validate:"required,numeric,positive_amount"`
}

// ProfileService ведет анкету заемщика и документы
type ProfileService struct {
	store    ProfileStore
	bucket   storage.Bucket
	validate *validator.Validate
	maxBytes int64
	metrics  *utils.Metrics
	now      func() time.Time
}

// NewProfileService создает новый экземпляр ProfileService
func NewProfileService(store ProfileStore, bucket storage.Bucket, maxBytes int64, metrics *utils.Metrics) *ProfileService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDocumentBytes
	}
	if metrics == nil {
		metrics = utils.GetMetrics()
	}
	return &ProfileService{
		store:    store,
		bucket:   bucket,
		validate: newValidator(),
		maxBytes: maxBytes,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Get возвращает анкету пользователя
func (s *ProfileService) Get(ctx context.Context, userID uint) (*models.Profile, error) {
	profile, err := s.store.GetProfileByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, &NotFoundError{Resource: "profile", ID: userID}
		}
		return nil, unavailable("get profile", err)
	}
	return profile, nil
}

// UpdateStep сохраняет шаг анкеты и продвигает пользователя к следующему
func (s *ProfileService) UpdateStep(ctx context.Context, userID uint, step int, req ProfileStepRequest) (*models.Profile, error) {
	if step < models.ProfileStepPersonal || step > models.ProfileStepReview {
		return nil, invalidField("step", "range", fmt.Sprintf("step must be between %d and %d", models.ProfileStepPersonal, models.ProfileStepReview))
	}

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	switch step {
	case models.ProfileStepPersonal:
		fields := personalStep{FullName: strings.TrimSpace(req.FullName), Phone: strings.TrimSpace(req.Phone)}
		if err := s.validateStep(fields); err != nil {
			return nil, err
		}
		profile.FullName = &fields.FullName
		profile.Phone = &fields.Phone

	case models.ProfileStepAddress:
		fields := addressStep{
			Address: strings.TrimSpace(req.Address),
			City:    strings.TrimSpace(req.City),
			State:   strings.TrimSpace(req.State),
			ZipCode: strings.TrimSpace(req.ZipCode),
		}
		if err := s.validateStep(fields); err != nil {
			return nil, err
		}
		profile.Address = fields.Address
		profile.City = fields.City
		profile.State = fields.State
		profile.ZipCode = fields.ZipCode

	case models.ProfileStepIncome:
		fields := incomeStep{
			IncomeSource:  strings.TrimSpace(req.IncomeSource),
			EmployerName:  strings.TrimSpace(req.EmployerName),
			MonthlyIncome: strings.TrimSpace(string(req.MonthlyIncome)),
		}
		if err := s.validateStep(fields); err != nil {
			return nil, err
		}
		income, _ := parseAmount(fields.MonthlyIncome)
		profile.IncomeSource = fields.IncomeSource
		profile.EmployerName = fields.EmployerName
		profile.MonthlyIncome = income

	case models.ProfileStepDocument:
		// Сам документ загружается отдельным запросом
		if !profile.StepComplete(models.ProfileStepDocument) {
			return nil, invalidField("id_document_url", "required", "upload an ID document first")
		}

	case models.ProfileStepReview:
		if verr := incompleteSteps(profile); verr != nil {
			return nil, verr
		}
		profile.ProfileCompleted = true
	}

	if next := step + 1; next > profile.ProfileCompletionStep {
		profile.ProfileCompletionStep = min(next, models.ProfileStepReview)
	}
	// Анкета, испорченная правкой, снова требует проверки
	if profile.ProfileCompleted && !profile.IsProfileComplete() {
		profile.ProfileCompleted = false
	}

	entry := s.entry(userID, models.ActivityProfileUpdated, fmt.Sprintf("Profile step %d updated", step))
	if err := s.store.SaveProfile(ctx, profile, entry); err != nil {
		return nil, unavailable("save profile", err)
	}

	return profile, nil
}

// UploadIDDocument сохраняет скан документа и отправляет его на проверку
func (s *ProfileService) UploadIDDocument(ctx context.Context, userID uint, filename string, r io.Reader) (*models.Profile, error) {
	// Читаем на байт больше лимита, чтобы отличить "ровно лимит" от "больше"
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, invalidField("file", "readable", "failed to read uploaded file")
	}
	if len(data) == 0 {
		return nil, invalidField("file", "required", "file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, invalidField("file", "max_size", fmt.Sprintf("file must not exceed %d bytes", s.maxBytes))
	}

	mtype := mimetype.Detect(data)
	if !mimetype.EqualsAny(mtype.String(), allowedDocumentTypes...) {
		return nil, invalidField("file", "content_type", fmt.Sprintf("unsupported file type %s, use JPEG, PNG or PDF", mtype.String()))
	}

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("id-documents/%d/%s%s", userID, uuid.NewString(), mtype.Extension())
	if err := s.bucket.Upload(key, bytes.NewReader(data)); err != nil {
		return nil, unavailable("upload document", err)
	}

	profile.IDDocumentURL = s.bucket.PublicURL(key)
	profile.IDVerificationStatus = models.VerificationPending

	entry := s.entry(userID, models.ActivityDocumentUploaded, "ID document uploaded")
	if err := s.store.SaveProfile(ctx, profile, entry); err != nil {
		return nil, unavailable("save profile", err)
	}

	s.metrics.RecordDocumentUpload()
	utils.LogInfo("Пользователь %d загрузил документ %s (%s, %d байт)", userID, filename, mtype.String(), len(data))
	return profile, nil
}

// SetVerification - решение администратора по документу; возможно только из pending
func (s *ProfileService) SetVerification(ctx context.Context, userID uint, status models.VerificationStatus) (*models.Profile, error) {
	if status != models.VerificationVerified && status != models.VerificationRejected {
		return nil, invalidField("status", "oneof", "status must be one of: verified rejected")
	}

	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.IDVerificationStatus != models.VerificationPending {
		return nil, &ConflictError{Message: fmt.Sprintf("verification is %s, only pending documents can be reviewed", profile.IDVerificationStatus)}
	}

	profile.IDVerificationStatus = status
	entry := s.entry(userID, models.ActivityVerificationUpdated, fmt.Sprintf("ID verification %s", status))
	if err := s.store.SaveProfile(ctx, profile, entry); err != nil {
		return nil, unavailable("save profile", err)
	}

	return profile, nil
}

func (s *ProfileService) validateStep(fields interface{}) error {
	err := s.validate.Struct(fields)
	if err == nil {
		return nil
	}

	return toValidationError(err)
}

func (s *ProfileService) entry(userID uint, kind models.ActivityType, description string) *models.ActivityLogEntry {
	return &models.ActivityLogEntry{
		UserID:       userID,
		ActivityType: kind,
		Description:  description,
		CreatedAt:    s.now().UTC(),
	}
}

// incompleteSteps перечисляет незаполненные шаги анкеты
func incompleteSteps(profile *models.Profile) *ValidationError {
	result := &ValidationError{}
	for step := models.ProfileStepPersonal; step < models.ProfileStepReview; step++ {
		if !profile.StepComplete(step) {
			result.Violations = append(result.Violations, FieldViolation{
				Field:   fmt.Sprintf("step_%d", step),
				Rule:    "incomplete",
				Message: fmt.Sprintf("step %d is not completed", step),
			})
		}
	}
	if len(result.Violations) == 0 {
		return nil
	}
	return result
}
