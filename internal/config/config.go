package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 汇总控制面运行时所需的全部配置。
type Config struct {
	Addr           string
	APIBaseURL     string
	SessionKey     []byte
	CSRFKey        []byte
	DBPath         string
	RequestTimeout time.Duration
}

// Load 从环境变量构建配置，并提供合理的默认值。
// 当前目录存在 .env 文件时会先行加载。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:           getenv("SCANEYES_HTTP_ADDR", ":8080"),
		APIBaseURL:     strings.TrimRight(getenv("SCANEYES_API_URL", "http://localhost:8001"), "/"),
		SessionKey:     []byte(getenv("SCANEYES_SESSION_KEY", "0123456789abcdef0123456789abcdef")),
		CSRFKey:        []byte(getenv("SCANEYES_CSRF_KEY", "abcdef0123456789abcdef0123456789")),
		DBPath:         getenv("SCANEYES_DB_PATH", "data/scannereyes.db"),
		RequestTimeout: durationEnv("SCANEYES_REQUEST_TIMEOUT", 10*time.Second),
	}

	if len(cfg.SessionKey) < 32 {
		return nil, fmt.Errorf("session key must be at least 32 bytes, got %d", len(cfg.SessionKey))
	}
	if len(cfg.CSRFKey) < 32 {
		return nil, fmt.Errorf("csrf key must be at least 32 bytes, got %d", len(cfg.CSRFKey))
	}
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("scanner API base URL must not be empty")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("request timeout must be positive")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
