package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	DatabasePath string

	JWTSecret         string
	IdentityTokenDays int
	EncryptKey        string

	UploadDir      string
	UploadBaseURL  string
	MaxUploadBytes int64
	AllowedMimes   []string

	CORSOrigins []string
	Debug       bool

	MaxContentRunes int

	TypingTTL      time.Duration
	PresenceWindow time.Duration

	SignalRPS   float64
	SignalBurst int

	WelcomeMessage string
	FAQSuggestions []string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppName: getEnv("APP_NAME", "SupportChat API"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "0.0.0.0"),
		Port:    getEnvAsInt("HTTP_PORT", 8000),

		DatabasePath: getEnv("DATABASE_PATH", "supportchat.db"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		IdentityTokenDays: getEnvAsInt("IDENTITY_TOKEN_EXPIRE_DAYS", 365),
		EncryptKey:        os.Getenv("ENCRYPTION_KEY"),

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		UploadBaseURL:  getEnv("UPLOAD_BASE_URL", "/api/uploads"),
		MaxUploadBytes: int64(getEnvAsInt("MAX_UPLOAD_BYTES", 10<<20)),

		Debug: getEnvAsBool("DEBUG", true),

		MaxContentRunes: getEnvAsInt("MAX_MESSAGE_CHARS", 5000),

		TypingTTL:      getEnvAsDuration("TYPING_TTL", 6*time.Second),
		PresenceWindow: getEnvAsDuration("PRESENCE_WINDOW", 45*time.Second),

		SignalRPS:   float64(getEnvAsInt("SIGNAL_RPS", 5)),
		SignalBurst: getEnvAsInt("SIGNAL_BURST", 10),

		WelcomeMessage: getEnv("WELCOME_MESSAGE", "Hi! How can we help you today?"),
	}

	cfg.CORSOrigins = getEnvAsList("CORS_ORIGINS",
		[]string{"http://localhost:3000", "http://localhost:5173"})
	cfg.AllowedMimes = getEnvAsList("UPLOAD_ALLOWED_MIMES", []string{
		"image/png", "image/jpeg", "image/gif", "image/webp",
		"application/pdf", "text/plain",
	})
	cfg.FAQSuggestions = getEnvAsList("FAQ_SUGGESTIONS", nil)

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	res := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			res = append(res, p)
		}
	}
	return res
}
