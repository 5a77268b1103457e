package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lendingapp/config"
	"lendingapp/controllers"
	"lendingapp/database"
	"lendingapp/events"
	"lendingapp/middleware"
	"lendingapp/services"
	"lendingapp/storage"
	"lendingapp/utils"
)

const (
	brokerDialTimeout = 5 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// app - собранные зависимости процесса
type app struct {
	router        *controllers.Router
	rates         *services.RateProvider
	notifications *services.NotificationQueue
}

// newApp собирает сервисы и контроллеры поверх хранилища
func newApp(cfg *config.Config, db *database.Database, bucket storage.Bucket, publisher events.Publisher, limiter middleware.Limiter) *app {
	metrics := utils.GetMetrics()
	tokens := services.NewTokenService(cfg.JWT.SecretKey, time.Duration(cfg.JWT.ExpiresIn)*time.Hour)
	rates := services.NewRateProvider(cfg.Rates.CentralBankURL, cfg.Rates.DefaultAnnualRate, cfg.Rates.Timeout)

	// Инициализируем сервисы
	emailService := services.NewEmailService(cfg, db)
	notifications := services.NewNotificationQueue(emailService, cfg.SMTP.QueueSize, cfg.SMTP.SendTimeout)
	userService := services.NewUserService(db, tokens)
	profileService := services.NewProfileService(db, bucket, cfg.Storage.MaxUploadBytes, metrics)
	loanService := services.NewLoanService(db, publisher, metrics)
	lifecycleService := services.NewLifecycleService(db, publisher, notifications, metrics)
	activityService := services.NewActivityService(db)

	// Инициализируем контроллеры
	router := &controllers.Router{
		Auth:        controllers.NewAuthController(userService),
		Calculator:  controllers.NewCalculatorController(rates),
		Profile:     controllers.NewProfileController(profileService, cfg.Storage.MaxUploadBytes),
		Loans:       controllers.NewLoanController(loanService, activityService, metrics),
		Admin:       controllers.NewAdminController(loanService, lifecycleService, profileService, metrics),
		Files:       controllers.NewFileController(bucket),
		Health:      db,
		Tokens:      tokens,
		Limiter:     limiter,
		Metrics:     metrics,
		CORSOrigins: cfg.Server.CORSOrigins,
	}

	return &app{router: router, rates: rates, notifications: notifications}
}

func main() {
	// Инициализируем конфигурацию
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	if err := utils.InitLogger(cfg.Log.Dir, cfg.Log.Debug); err != nil {
		log.Fatalf("Ошибка инициализации логгера: %v", err)
	}

	// Инициализируем подключение к базе данных
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer db.Close()

	bucket, err := storage.NewFSBucket(cfg.Storage.Root, cfg.Storage.PublicBaseURL, []byte(cfg.Storage.SigningKey))
	if err != nil {
		log.Fatalf("Ошибка инициализации хранилища: %v", err)
	}

	publisher := events.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, brokerDialTimeout)
	defer publisher.Close()

	limiter, closeLimiter := newLimiter(cfg)
	defer closeLimiter()

	application := newApp(cfg, db, bucket, publisher, limiter)

	// Запускаем обновление ключевой ставки
	scheduler := services.NewSchedulerService(application.rates, cfg.Rates.RefreshSchedule, cfg.Rates.Timeout)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Ошибка запуска планировщика: %v", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           application.router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Запускаем сервер
	go func() {
		utils.LogInfo("Сервер запущен на порту %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	utils.LogInfo("Остановка сервера...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		utils.LogError("Ошибка остановки сервера: %v", err)
	}

	// Отправляем письма, поставленные до остановки
	application.notifications.Close()

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		utils.LogError("Планировщик не остановился за %v", shutdownTimeout)
	}

	utils.LogInfo("Сервер остановлен")
}

// newLimiter выбирает Redis, если он настроен и отвечает, иначе лимит в памяти процесса
func newLimiter(cfg *config.Config) (middleware.Limiter, func()) {
	local := utils.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)

	ctx, cancel := context.WithTimeout(context.Background(), brokerDialTimeout)
	defer cancel()

	client, err := utils.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		utils.LogError("Лимит запросов считается в памяти процесса: %v", err)
		return local, func() {}
	}
	if client == nil {
		return local, func() {}
	}

	utils.LogInfo("Лимит запросов хранится в Redis")
	limiter := utils.NewRedisRateLimiter(client, cfg.Redis.RateLimitPrefix, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	return limiter, func() { client.Close() }
}
