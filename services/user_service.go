package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lendingapp/database"
	"lendingapp/models"
	"lendingapp/utils"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials - неверный email или пароль
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserStore - операции хранилища для учетных записей
type UserStore interface {
	CreateUserWithProfile(ctx context.Context, user *models.User, profile *models.Profile) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	AppendActivity(ctx context.Context, entry *models.ActivityLogEntry) error
}

type SignUpRequest struct {
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UserResponse - публичные данные учетной записи
type UserResponse struct {
	ID    uint        `json:"id"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

// AuthResponse - ответ на вход и регистрацию
type AuthResponse struct {
	Token Token        `json:"token"`
	User  UserResponse `json:"user"`
}

// UserService регистрирует пользователей и открывает сессии
type UserService struct {
	store    UserStore
	tokens   *TokenService
	validate *validator.Validate
}

func NewUserService(store UserStore, tokens *TokenService) *UserService {
	return &UserService{
		store:    store,
		tokens:   tokens,
		validate: newValidator(),
	}
}

// SignUp создает учетную запись заемщика с пустой анкетой и сразу открывает сессию
func (s *UserService) SignUp(ctx context.Context, req SignUpRequest) (*AuthResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	// Хешируем пароль
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("ошибка хеширования пароля: %w", err)
	}

	user := &models.User{
		Email:    req.Email,
		Password: string(hashedPassword),
		Role:     models.RoleBorrower,
	}
	profile := &models.Profile{
		IDVerificationStatus:  models.VerificationNotUploaded,
		ProfileCompletionStep: models.ProfileStepPersonal,
	}

	if err := s.store.CreateUserWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, &ConflictError{Message: "user with this email already exists"}
		}
		return nil, unavailable("create user", err)
	}

	return s.openSession(user)
}

// SignIn проверяет пароль и выдает токен
func (s *UserService) SignIn(ctx context.Context, req SignInRequest) (*AuthResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, toValidationError(err)
	}

	// Ищем пользователя по email
	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, unavailable("get user", err)
	}

	// Проверяем пароль
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	entry := &models.ActivityLogEntry{
		UserID:       user.ID,
		ActivityType: models.ActivitySignIn,
		Description:  "Signed in",
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.AppendActivity(ctx, entry); err != nil {
		utils.LogError("Ошибка записи входа пользователя %d: %v", user.ID, err)
	}

	return s.openSession(user)
}

// SignOut отзывает токен текущей сессии
func (s *UserService) SignOut(claims *Claims) {
	s.tokens.Revoke(claims)
}

// Me возвращает учетную запись текущей сессии
func (s *UserService) Me(ctx context.Context, userID uint) (*UserResponse, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, &NotFoundError{Resource: "user", ID: userID}
		}
		return nil, unavailable("get user", err)
	}
	return &UserResponse{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (s *UserService) openSession(user *models.User) (*AuthResponse, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		Token: *token,
		User:  UserResponse{ID: user.ID, Email: user.Email, Role: user.Role},
	}, nil
}
