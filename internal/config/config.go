package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

const (
	DBTypePostgres = "postgres"
	DBTypeMySQL    = "mysql"
	DBTypeSQLite   = "sqlite"
)

var ErrMissingCredentials = errors.New("missing_database_credentials")

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64
	EstateName  string

	// BootstrapAdmins are actor subjects ("user:<id>") granted role:admin at startup.
	BootstrapAdmins []string

	LogLevel  string
	LogFormat string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis RedisConfig
	Email EmailConfig
}

type RedisConfig struct {
	Addr                string
	Password            string
	DB                  int
	NotificationChannel string
	GenerationLockTTL   int
	APIRatePerSecond    float64
	APIBurst            int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

var Module = fx.Module("config",
	fx.Provide(Provide),
	fx.Provide(NewBillingConfigHolder),
)

// Provide loads and validates configuration; a validation failure aborts startup.
func Provide() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "estatebill"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		NodeID:            getenvInt64("SNOWFLAKE_NODE", 1),
		EstateName:        getenv("ESTATE_NAME", "Estate Management"),
		BootstrapAdmins:   splitList(getenv("BOOTSTRAP_ADMINS", "")),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFormat:         getenv("LOG_FORMAT", "json"),
		DBType:            strings.ToLower(getenv("DATABASE_TYPE", DBTypePostgres)),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "estatebill"),
		DBUser:            strings.TrimSpace(getenv("DATABASE_USER", "")),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 20)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),
		Redis: RedisConfig{
			Addr:                strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password:            getenv("REDIS_PASSWORD", ""),
			DB:                  int(getenvInt64("REDIS_DB", 0)),
			NotificationChannel: getenv("REDIS_NOTIFICATION_CHANNEL", "estatebill.notifications"),
			GenerationLockTTL:   int(getenvInt64("GENERATION_LOCK_TTL_SECONDS", 600)),
			APIRatePerSecond:    getenvFloat("API_RATE_LIMIT_PER_SECOND", 0),
			APIBurst:            int(getenvInt64("API_RATE_LIMIT_BURST", 20)),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@estate.local"),
		},
	}
}

// Validate reports configuration errors that must abort startup.
func (c Config) Validate() error {
	if c.DBType == DBTypeSQLite {
		return nil
	}
	if c.DBHost == "" || c.DBUser == "" || c.DBPassword == "" {
		return ErrMissingCredentials
	}
	return nil
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

func (c Config) EmailEnabled() bool {
	return c.Email.SMTPHost != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
