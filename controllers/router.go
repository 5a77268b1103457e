package controllers

import (
	"context"
	"net/http"

	"lendingapp/middleware"
	"lendingapp/utils"

	"github.com/gorilla/mux"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router - все обработчики и общие зависимости маршрутизации
type Router struct {
	Auth       *AuthController
	Calculator *CalculatorController
	Profile    *ProfileController
	Loans      *LoanController
	Admin      *AdminController
	Files      *FileController

	Health      Pinger
	Tokens      middleware.TokenParser
	Limiter     middleware.Limiter
	Metrics     *utils.Metrics
	CORSOrigins []string
}

// Handler собирает маршруты API
func (rt *Router) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Recovery(rt.Metrics))
	router.Use(middleware.Logger(rt.Metrics))
	router.Use(middleware.RateLimit(rt.Limiter))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", rt.ready).Methods(http.MethodGet)

	// Публичные маршруты для аутентификации
	router.HandleFunc("/api/auth/signUp", rt.Auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/signIn", rt.Auth.SignIn).Methods(http.MethodPost)

	// Калькулятор доступен без входа
	router.HandleFunc("/api/calculator/flat", rt.Calculator.Flat).Methods(http.MethodGet)
	router.HandleFunc("/api/calculator/amortized", rt.Calculator.Amortized).Methods(http.MethodGet)

	// Документы защищены подписью ссылки
	router.HandleFunc("/files/{key:.+}", rt.Files.Serve).Methods(http.MethodGet)

	// Маршруты администратора
	admin := router.PathPrefix("/api/admin").Subrouter()
	admin.Use(middleware.AuthMiddleware(rt.Tokens))
	admin.Use(middleware.AdminOnly)
	admin.HandleFunc("/loans", rt.Admin.ListLoans).Methods(http.MethodGet)
	admin.HandleFunc("/loans/export", rt.Admin.ExportLoans).Methods(http.MethodGet)
	admin.HandleFunc("/loans/{id:[0-9]+}/{action}", rt.Admin.TransitionLoan).Methods(http.MethodPost)
	admin.HandleFunc("/profiles/{userID:[0-9]+}/verification", rt.Admin.SetVerification).Methods(http.MethodPut)
	admin.HandleFunc("/dashboard", rt.Admin.Dashboard).Methods(http.MethodGet)
	admin.HandleFunc("/metrics", rt.Admin.Metrics).Methods(http.MethodGet)

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware(rt.Tokens))
	protected.HandleFunc("/auth/signOut", rt.Auth.SignOut).Methods(http.MethodPost)
	protected.HandleFunc("/me", rt.Auth.Me).Methods(http.MethodGet)

	// Анкета и документы
	protected.HandleFunc("/profile", rt.Profile.GetProfile).Methods(http.MethodGet)
	protected.HandleFunc("/profile/steps/{step:[0-9]+}", rt.Profile.UpdateStep).Methods(http.MethodPut)
	protected.HandleFunc("/profile/document", rt.Profile.UploadDocument).Methods(http.MethodPost)
	protected.HandleFunc("/eligibility", rt.Profile.Eligibility).Methods(http.MethodGet)

	// Маршруты для работы с кредитами
	protected.HandleFunc("/loans", rt.Loans.Submit).Methods(http.MethodPost)
	protected.HandleFunc("/loans", rt.Loans.History).Methods(http.MethodGet)
	protected.HandleFunc("/loans/{id:[0-9]+}", rt.Loans.GetLoan).Methods(http.MethodGet)
	protected.HandleFunc("/activity", rt.Loans.Activity).Methods(http.MethodGet)

	return middleware.CORS(rt.CORSOrigins)(router)
}

// ready отвечает 503, пока база данных не принимает подключения
func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	if rt.Health != nil {
		if err := rt.Health.Ping(r.Context()); err != nil {
			utils.LogError("База данных недоступна: %v", err)
			writeMessage(w, http.StatusServiceUnavailable, "Database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
