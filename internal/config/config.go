package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config - структура для хранения конфигурации клиента
type Config struct {
	APIBaseURL string `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	FeedURL    string `env:"FEED_URL"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP Config
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// Feed Config
	ReconnectBaseDelay time.Duration `env:"RECONNECT_BASE_DELAY" envDefault:"1s"`
	ReconnectMaxDelay  time.Duration `env:"RECONNECT_MAX_DELAY" envDefault:"30s"`

	// Stats Config
	StatsInterval time.Duration `env:"STATS_INTERVAL" envDefault:"30s"`

	// Учетные данные ответственной роли (необязательны, без них клиент только читает)
	ResponderUsername string `env:"RESPONDER_USERNAME"`
	ResponderPassword string `env:"RESPONDER_PASSWORD"`
}

// LoadConfig загружает конфигурацию из переменных окружения и .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла (если есть)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("ошибка загрузки файла .env: %w", err)
	}

	cfg := &Config{
		APIBaseURL:         getEnv("API_BASE_URL", "http://localhost:8000"),
		FeedURL:            os.Getenv("FEED_URL"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HTTPTimeout:        getEnvAsDuration("HTTP_TIMEOUT", 10*time.Second),
		ReconnectBaseDelay: getEnvAsDuration("RECONNECT_BASE_DELAY", time.Second),
		ReconnectMaxDelay:  getEnvAsDuration("RECONNECT_MAX_DELAY", 30*time.Second),
		StatsInterval:      getEnvAsDuration("STATS_INTERVAL", 30*time.Second),
		ResponderUsername:  os.Getenv("RESPONDER_USERNAME"),
		ResponderPassword:  os.Getenv("RESPONDER_PASSWORD"),
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	// Адрес потока выводится из базового URL, если не задан явно
	if cfg.FeedURL == "" {
		cfg.FeedURL = strings.Replace(cfg.APIBaseURL, "http", "ws", 1) + "/ws/incidents"
	}

	return cfg, nil
}

// getEnv возвращает значение переменной окружения или значение по умолчанию
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsDuration возвращает значение переменной окружения как time.Duration или значение по умолчанию
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if durationValue, err := time.ParseDuration(value); err == nil {
			return durationValue
		}
	}
	return defaultValue
}
