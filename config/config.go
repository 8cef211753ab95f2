package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/xo/dburl"
)

const (
	defaultServerPort   = 8080
	defaultSyncCron     = "0 0 */6 * * *"
	defaultFinalizeCron = "0 30 * * * *"
	seasonStartLayout   = "2006-01-02"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int
	LogLevel     string

	SeasonStart  time.Time
	ESPNBaseURL  string
	ESPNTimeout  time.Duration
	SyncCron     string
	FinalizeCron string

	CORSAllowedOrigins []string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// R2Enabled сообщает, заданы ли все параметры хранилища логотипов.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv читает конфигурацию только из окружения процесса.
func FromEnv() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if _, err := dburl.Parse(dbURL); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := strconv.Atoi(getEnv("SERVER_PORT", strconv.Itoa(defaultServerPort)))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	seasonStart, err := parseSeasonStart(os.Getenv("SEASON_START"), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	espnTimeout, err := time.ParseDuration(getEnv("ESPN_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ESPN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SeasonStart:       seasonStart,
		ESPNBaseURL:       getEnv("ESPN_BASE_URL", ""),
		ESPNTimeout:       espnTimeout,
		SyncCron:          getEnv("SYNC_CRON", defaultSyncCron),
		FinalizeCron:      getEnv("FINALIZE_CRON", defaultFinalizeCron),
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{"SYNC_CRON": cfg.SyncCron, "FINALIZE_CRON": cfg.FinalizeCron} {
		if _, err := parser.Parse(spec); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, spec, err)
		}
	}

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	return cfg, nil
}

// parseSeasonStart: без значения сезон начинается в первый четверг после Дня труда (первый понедельник сентября).
func parseSeasonStart(value string, now time.Time) (time.Time, error) {
	if value != "" {
		t, err := time.Parse(seasonStartLayout, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid SEASON_START %q (expected YYYY-MM-DD): %w", value, err)
		}
		return t.UTC(), nil
	}

	year := now.Year()
	if now.Month() < time.March {
		year--
	}
	day := time.Date(year, time.September, 1, 0, 0, 0, 0, time.UTC)
	for day.Weekday() != time.Monday {
		day = day.AddDate(0, 0, 1)
	}
	return day.AddDate(0, 0, 3), nil
}
