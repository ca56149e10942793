package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the API server settings read from the environment.
type Config struct {
	DatabaseURL     string        `validate:"required"`
	Addr            string        `validate:"required"`
	Workers         int           `validate:"min=1,max=64"`
	AcquireTimeout  time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`

	RedisAddr     string
	RedisPassword string
	RedisDB       int           `validate:"min=0"`
	UsersCacheTTL time.Duration `validate:"gte=0"`

	LogLevel      string `validate:"loglevel"`
	AppEnv        string `validate:"appenv"`
	VerboseErrors bool
}

// CacheEnabled reports whether a redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != "" && c.UsersCacheTTL > 0
}

// Accepted LOG_LEVEL and APP_ENV values, space separated.
const (
	LogLevels = "trace debug info warn warning error"
	AppEnvs   = "development production"
)

var (
	loadDotEnv = func() error { return godotenv.Load() }
	validate   = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterAlias("loglevel", "oneof="+LogLevels)
	v.RegisterAlias("appenv", "oneof="+AppEnvs)
	return v
}

// CheckLogLevel rejects levels the server would refuse at startup.
func CheckLogLevel(level string) error {
	if err := validate.Var(level, "loglevel"); err != nil {
		return fmt.Errorf("無效的 LOG_LEVEL %q (可用: %s)", level, LogLevels)
	}
	return nil
}

// CheckAppEnv rejects environments the server would refuse at startup.
func CheckAppEnv(env string) error {
	if err := validate.Var(env, "appenv"); err != nil {
		return fmt.Errorf("無效的 APP_ENV %q (可用: %s)", env, AppEnvs)
	}
	return nil
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// .env 不存在時只使用環境變數
	_ = loadDotEnv()

	cfg := &Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Addr:          getEnv("APP_ADDR", ":5000"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		AppEnv:        getEnv("APP_ENV", "development"),
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("環境變數 DATABASE_URL 未設定")
	}

	var err error
	if cfg.Workers, err = getInt("APP_WORKERS", 3); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AcquireTimeout, err = getDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.UsersCacheTTL, err = getDuration("USERS_CACHE_TTL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.VerboseErrors, err = getBool("API_VERBOSE_ERRORS", false); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("無效的 %s: %v", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("無效的 %s: %v", key, err)
	}
	return d, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("無效的 %s: %v", key, err)
	}
	return b, nil
}
