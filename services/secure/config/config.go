package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/jredh-dev/shroud/pkg/secret"
)

// Config holds all server configuration
type Config struct {
	Server   ServerConfig
	Secret   secret.Material
	JWT      JWTConfig
	Security SecurityConfig
	Log      LogConfig
	Audit    AuditConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type JWTConfig struct {
	SigningKey string        // HS256 key for issued credentials
	Issuer     string        // JWT issuer claim
	TTL        time.Duration // credential lifetime (default: 120m)
}

type SecurityConfig struct {
	ReplayWindow   time.Duration // accepted timestamp skew (default: 30s)
	ExcludedRoutes []string      // paths served without the secure layer
}

type LogConfig struct {
	Level  string
	Format string // json | console
}

type AuditConfig struct {
	KafkaBrokers []string // empty: audit events go to the log
	Topic        string
}

// LoadEnvFile loads path into the environment if it exists. Variables that
// are already set win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load returns server configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "5000"),
			Env:  getEnv("ENV", "development"),
		},
		Secret: secret.FromEnv(),
		JWT: JWTConfig{
			SigningKey: getEnv("JWT_SIGNING_KEY", ""),
			Issuer:     getEnv("JWT_ISSUER", "shroud"),
			TTL:        getEnvDuration("JWT_TTL", 120*time.Minute),
		},
		Security: SecurityConfig{
			ReplayWindow:   getEnvDuration("REPLAY_WINDOW", 30*time.Second),
			ExcludedRoutes: getEnvList("EXCLUDED_ROUTES", []string{"/health", "/metrics", "/public"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Audit: AuditConfig{
			KafkaBrokers: getEnvList("KAFKA_BROKERS", nil),
			Topic:        getEnv("AUDIT_TOPIC", "shroud-audit"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
