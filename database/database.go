package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lendingapp/config"
	"lendingapp/models"
	"lendingapp/utils"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrNotFound - запись не найдена
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus - условное обновление не затронуло ни одной строки, статус уже изменен
	ErrStaleStatus = errors.New("loan status changed concurrently")
	// ErrDuplicate - нарушено ограничение уникальности
	ErrDuplicate = errors.New("record already exists")
)

// Database представляет подключение к базе данных
type Database struct {
	DB *gorm.DB
}

// Connect устанавливает соединение с базой данных и выполняет миграции
func Connect(cfg *config.Config) (*Database, error) {
	// Настраиваем логгер
	logLevel := logger.Warn
	if cfg.Log.Debug {
		logLevel = logger.Info
	}
	newLogger := logger.New(
		utils.NewStdLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	// Устанавливаем соединение
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Настраиваем пул соединений
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пула соединений: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Выполняем SQL миграции
	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("ошибка выполнения SQL миграций: %w", err)
	}

	// Автомиграция моделей только для локальной разработки
	if cfg.DB.AutoMigrate {
		if err := autoMigrate(db); err != nil {
			return nil, fmt.Errorf("ошибка автоматической миграции моделей: %w", err)
		}
	}

	return &Database{DB: db}, nil
}

// New оборачивает уже открытое подключение
func New(db *gorm.DB) *Database {
	return &Database{DB: db}
}

// Close закрывает подключение к базе данных
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping проверяет доступность базы данных
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// runMigrations выполняет SQL миграции
func runMigrations(cfg *config.Config) error {
	// Создаем экземпляр миграции
	m, err := migrate.New(
		"file://"+cfg.DB.MigrationsDir,
		cfg.MigrationURL(),
	)
	if err != nil {
		return fmt.Errorf("ошибка создания миграции: %w", err)
	}
	defer m.Close()

	// Выполняем миграции
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка выполнения миграций: %w", err)
	}

	return nil
}

// autoMigrate выполняет автоматическую миграцию моделей
func autoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Profile{},
		&models.Loan{},
		&models.ActivityLogEntry{},
	)
	if err != nil {
		return fmt.Errorf("ошибка автоматической миграции: %w", err)
	}

	return nil
}

// translate приводит ошибки gorm к ошибкам пакета
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return fmt.Errorf("%s: %w", op, err)
}
