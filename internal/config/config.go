// Пакет config — загрузка и валидация конфигурации FlashFiles
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации FlashFiles.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Путь к директории хранения файлов
	DataDir string

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Общий секрет для локальной проверки HS256-токенов (опционально).
	// Пустая строка — локальная проверка отключена, запросы идут к authority.
	JWTSecret string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// URL JWKS endpoint для локальной проверки RS256-токенов (опционально)
	JWKSURL string
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration

	// Базовый URL identity authority (обязательный)
	AuthURL string
	// Service-ключ для административных запросов к authority (обязательный)
	AuthServiceKey string
	// Таймаут HTTP-запросов к authority
	AuthTimeout time.Duration
	// Разрешить деградированный режим: принимать токен без проверки подписи,
	// если authority недоступен, а владелец подтверждён административным API.
	AuthDegradedFallback bool

	// Срок хранения загруженного файла
	FileTTL time.Duration
	// Интервал запуска очистки истёкших файлов
	SweepInterval time.Duration
	// Максимальный размер файла в байтах
	MaxFileSize int64

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// FF_PORT — порт HTTP-сервера (по умолчанию 3000)
	port, err := getEnvInt("FF_PORT", 3000)
	if err != nil {
		return nil, fmt.Errorf("FF_PORT: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("FF_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// FF_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("FF_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// --- PostgreSQL ---

	cfg.DBHost, err = getEnvRequired("FF_DB_HOST")
	if err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("FF_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("FF_DB_PORT: %w", err)
	}
	cfg.DBUser, err = getEnvRequired("FF_DB_USER")
	if err != nil {
		return nil, err
	}
	cfg.DBPassword, err = getEnvRequired("FF_DB_PASSWORD")
	if err != nil {
		return nil, err
	}
	cfg.DBName, err = getEnvRequired("FF_DB_NAME")
	if err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("FF_DB_SSLMODE", "disable")

	// --- Аутентификация ---

	// FF_JWT_SECRET — общий секрет HS256 (опционально)
	cfg.JWTSecret = getEnvDefault("FF_JWT_SECRET", "")

	// FF_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("FF_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FF_JWT_LEEWAY: %w", err)
	}

	// FF_JWKS_URL — JWKS endpoint для RS256 (опционально)
	cfg.JWKSURL = getEnvDefault("FF_JWKS_URL", "")

	// FF_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 1h)
	cfg.JWKSRefreshInterval, err = getEnvDuration("FF_JWKS_REFRESH_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FF_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// FF_AUTH_URL — обязательный
	cfg.AuthURL, err = getEnvRequired("FF_AUTH_URL")
	if err != nil {
		return nil, err
	}

	// FF_AUTH_SERVICE_KEY — обязательный
	cfg.AuthServiceKey, err = getEnvRequired("FF_AUTH_SERVICE_KEY")
	if err != nil {
		return nil, err
	}

	// FF_AUTH_TIMEOUT — таймаут запросов к authority (по умолчанию 10s)
	cfg.AuthTimeout, err = getEnvDuration("FF_AUTH_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FF_AUTH_TIMEOUT: %w", err)
	}

	// FF_AUTH_DEGRADED_FALLBACK — деградированный режим (по умолчанию true)
	cfg.AuthDegradedFallback, err = getEnvBool("FF_AUTH_DEGRADED_FALLBACK", true)
	if err != nil {
		return nil, fmt.Errorf("FF_AUTH_DEGRADED_FALLBACK: %w", err)
	}

	// --- Жизненный цикл файлов ---

	// FF_FILE_TTL — срок хранения файла (по умолчанию 1h)
	cfg.FileTTL, err = getEnvDuration("FF_FILE_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FF_FILE_TTL: %w", err)
	}
	if cfg.FileTTL <= 0 {
		return nil, fmt.Errorf("FF_FILE_TTL: значение должно быть положительным")
	}

	// FF_SWEEP_INTERVAL — интервал очистки (по умолчанию 10m)
	cfg.SweepInterval, err = getEnvDuration("FF_SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FF_SWEEP_INTERVAL: %w", err)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("FF_SWEEP_INTERVAL: значение должно быть положительным")
	}

	// FF_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 100 MB)
	maxFileSize, err := getEnvInt64("FF_MAX_FILE_SIZE", 104857600)
	if err != nil {
		return nil, fmt.Errorf("FF_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("FF_MAX_FILE_SIZE: значение должно быть положительным")
	}
	cfg.MaxFileSize = maxFileSize

	// --- Логирование ---

	// FF_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FF_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FF_LOG_LEVEL: %w", err)
	}

	// FF_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FF_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FF_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP-сервер ---

	cfg.HTTPReadTimeout, err = getEnvDuration("FF_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FF_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("FF_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FF_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("FF_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FF_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("FF_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FF_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 10m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
