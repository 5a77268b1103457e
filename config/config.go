package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port        int      `mapstructure:"port"`
		CORSOrigins []string `mapstructure:"cors_origins"`
	} `mapstructure:"server"`
	DB struct {
		Host          string `mapstructure:"host"`
		Port          int    `mapstructure:"port"`
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		DBName        string `mapstructure:"name"`
		SSLMode       string `mapstructure:"sslmode"`
		MigrationsDir string `mapstructure:"migrations_dir"`
		AutoMigrate   bool   `mapstructure:"auto_migrate"`
	} `mapstructure:"db"`
	JWT struct {
		SecretKey string `mapstructure:"secret_key"`
		ExpiresIn int    `mapstructure:"expires_in"` // в часах
	} `mapstructure:"jwt"`
	SMTP struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`

		// Уведомления сверх QueueSize отбрасываются
		QueueSize   int           `mapstructure:"queue_size"`
		SendTimeout time.Duration `mapstructure:"send_timeout"`
	} `mapstructure:"smtp"`
	Storage struct {
		Root           string `mapstructure:"root"`
		PublicBaseURL  string `mapstructure:"public_base_url"`
		SigningKey     string `mapstructure:"signing_key"`
		MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	} `mapstructure:"storage"`
	RabbitMQ struct {
		URL      string `mapstructure:"url"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"rabbitmq"`
	Rates struct {
		CentralBankURL    string        `mapstructure:"central_bank_url"`
		DefaultAnnualRate float64       `mapstructure:"default_annual_rate"`
		RefreshSchedule   string        `mapstructure:"refresh_schedule"`
		Timeout           time.Duration `mapstructure:"timeout"`
	} `mapstructure:"rates"`
	RateLimit struct {
		Requests int           `mapstructure:"requests"`
		Window   time.Duration `mapstructure:"window"`
	} `mapstructure:"ratelimit"`
	Redis struct {
		URL             string `mapstructure:"url"`
		RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
	} `mapstructure:"redis"`
	Log struct {
		Dir   string `mapstructure:"dir"`
		Debug bool   `mapstructure:"debug"`
	} `mapstructure:"log"`
}

// NewConfig создает новый экземпляр конфигурации.
// Значения берутся из окружения (и файла .env, если он есть), ключ db.host
// читается из переменной DB_HOST и т.д.
func NewConfig() (*Config, error) {
	// .env нужен только для локальной разработки
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults задает значения по умолчанию; без них AutomaticEnv не видит ключи при Unmarshal
func setDefaults(v *viper.Viper) {
	// Настройки сервера
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Настройки базы данных
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "lending_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.migrations_dir", "migrations")
	v.SetDefault("db.auto_migrate", false)

	// Настройки JWT
	v.SetDefault("jwt.secret_key", "your-secret-key-here")
	v.SetDefault("jwt.expires_in", 24)

	// Настройки SMTP
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "your-email@gmail.com")
	v.SetDefault("smtp.password", "your-app-password")
	v.SetDefault("smtp.from", "your-email@gmail.com")
	v.SetDefault("smtp.queue_size", 100)
	v.SetDefault("smtp.send_timeout", "30s")

	// Хранилище документов
	v.SetDefault("storage.root", "uploads")
	v.SetDefault("storage.public_base_url", "http://localhost:8080")
	v.SetDefault("storage.signing_key", "your-storage-signing-key-here")
	v.SetDefault("storage.max_upload_bytes", 5<<20)

	// Брокер событий
	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "loan.events")

	// Ставка центрального банка для калькулятора
	v.SetDefault("rates.central_bank_url", "")
	v.SetDefault("rates.default_annual_rate", 12.0)
	v.SetDefault("rates.refresh_schedule", "@every 6h")
	v.SetDefault("rates.timeout", 10*time.Second)

	// Ограничение частоты запросов
	v.SetDefault("ratelimit.requests", 100)
	v.SetDefault("ratelimit.window", time.Minute)

	// Общий лимит для нескольких экземпляров; без адреса лимит считается в памяти
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.rate_limit_prefix", "lending:rate_limit")

	// Логирование
	v.SetDefault("log.dir", "")
	v.SetDefault("log.debug", false)
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("неверный порт сервера: %d", c.Server.Port)
	}
	if c.DB.Port <= 0 {
		return fmt.Errorf("неверный порт базы данных: %d", c.DB.Port)
	}
	if strings.TrimSpace(c.JWT.SecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY не задан")
	}
	if c.JWT.ExpiresIn <= 0 {
		return fmt.Errorf("неверное время жизни JWT: %d", c.JWT.ExpiresIn)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("неверные параметры ограничения частоты: %d за %v", c.RateLimit.Requests, c.RateLimit.Window)
	}
	if c.Rates.DefaultAnnualRate < 0 {
		return fmt.Errorf("ставка по умолчанию не может быть отрицательной")
	}
	return nil
}

// DSN формирует строку подключения для gorm
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.DBName,
		c.DB.SSLMode,
	)
}

// MigrationURL формирует URL базы данных для golang-migrate
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.DBName,
		c.DB.SSLMode,
	)
}
