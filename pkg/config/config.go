package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Gateway    GatewayConfig
	Catalog    CatalogConfig
	Order      OrderConfig
	Session    SessionConfig
	Validation ValidationConfig
	Storage    StorageConfig
	Server     ServerConfig
	Mail       MailConfig
	Company    CompanyConfig
	Log        LogConfig
}

// GatewayConfig points at the remote action gateway (orders and admin).
type GatewayConfig struct {
	URL                string
	AdminURL           string
	Timeout            time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
}

type CatalogConfig struct {
	ClientsURL      string
	ProductsURL     string
	RefreshSchedule string
}

// OrderConfig selects how orders are sent: "lines" or "consolidated".
type OrderConfig struct {
	Mode string
}

type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	AdminTimeout time.Duration
	AdminKey     string
}

// ValidationConfig drives the token validation retry loop.
type ValidationConfig struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	BackoffUnit    time.Duration
}

type StorageConfig struct {
	StatePath    string
	ReceiptsPath string
	LedgerPath   string
	SessionsPath string
}

type ServerConfig struct {
	Host               string
	Port               int
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
	CookieSecure       bool
}

type MailConfig struct {
	ResendAPIKey string
	From         string
}

type CompanyConfig struct {
	Name    string
	LogoURL string
	Vendors []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	gatewayURL := getEnv("GATEWAY_URL", "")

	cfg := &Config{
		Gateway: GatewayConfig{
			URL:                gatewayURL,
			AdminURL:           getEnv("GATEWAY_ADMIN_URL", gatewayURL),
			Timeout:            getEnvAsDuration("GATEWAY_TIMEOUT", 30*time.Second),
			RateLimitPerSecond: getEnvAsFloat("GATEWAY_RATE_LIMIT_PER_SECOND", 5),
			RateLimitBurst:     getEnvAsInt("GATEWAY_RATE_LIMIT_BURST", 10),
		},
		Catalog: CatalogConfig{
			ClientsURL:      getEnv("CLIENTS_CSV_URL", ""),
			ProductsURL:     getEnv("PRODUCTS_CSV_URL", ""),
			RefreshSchedule: getEnv("CATALOG_REFRESH_SCHEDULE", "*/15 * * * *"),
		},
		Order: OrderConfig{
			Mode: getEnv("ORDER_SUBMIT_MODE", "lines"),
		},
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", ""),
			TTL:          getEnvAsDuration("SESSION_TTL", 8*time.Hour),
			AdminTimeout: getEnvAsDuration("ADMIN_SESSION_TIMEOUT", 10*time.Minute),
			AdminKey:     getEnv("ADMIN_SESSION_KEY", ""),
		},
		Validation: ValidationConfig{
			MaxAttempts:    getEnvAsInt("VALIDATION_MAX_ATTEMPTS", 3),
			AttemptTimeout: getEnvAsDuration("VALIDATION_ATTEMPT_TIMEOUT", 8*time.Second),
			BackoffUnit:    getEnvAsDuration("VALIDATION_BACKOFF_UNIT", time.Second),
		},
		Storage: StorageConfig{
			StatePath:    getEnv("STATE_PATH", "./pedidos.db"),
			ReceiptsPath: getEnv("RECEIPTS_PATH", "./receipts"),
			LedgerPath:   getEnv("LEDGER_PATH", "./pedidos-ledger.csv"),
			SessionsPath: getEnv("SESSIONS_PATH", "./sessions"),
		},
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			AllowedOrigins:     getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			CookieSecure:       getEnvAsBool("SERVER_COOKIE_SECURE", false),
		},
		Mail: MailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("RESEND_FROM_EMAIL", "Pedidos <pedidos@smartdata.app>"),
		},
		Company: CompanyConfig{
			Name:    getEnv("COMPANY_NAME", "SMARTDATA"),
			LogoURL: getEnv("COMPANY_LOGO_URL", ""),
			Vendors: getEnvAsList("VENDOR_NAMES", []string{"Vendedor 1", "Vendedor 2", "Vendedor 3", "Vendedor 4", "Vendedor 5"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if cfg.Gateway.URL == "" {
		return nil, errors.New("GATEWAY_URL is required")
	}

	if cfg.Session.Secret == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}

	if cfg.Session.AdminKey == "" {
		cfg.Session.AdminKey = cfg.Session.Secret
	}

	if cfg.Validation.MaxAttempts < 1 {
		cfg.Validation.MaxAttempts = 1
	}

	return cfg, nil
}

// Addr returns the listen address for the HTTP API
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
