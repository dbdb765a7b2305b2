package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the demo application configuration
type Config struct {
	// Environment (development, demo, production)
	Environment string

	// Server listening address
	ListenAddr string

	// Base URL for constructing absolute URLs
	BaseURL string

	// CAS server base URL (login, validation and proxy endpoints live under it)
	CASServerURL string

	// CAS protocol version: 1, 2 or 3
	CASVersion int

	// Run the embedded mock CAS server under /cas
	MockCASEnabled bool

	// Request a proxy-granting ticket during validation
	ProxyMode bool

	// Callback URL the CAS server delivers proxy-granting tickets to
	ProxyCallbackURL string

	// Proxy URLs allowed to carry tickets on our behalf
	TrustedProxies []string

	// Session backend: memory or sqlite
	SessionBackend string

	// Data directory holding the session database (sqlite backend only)
	DataDir string

	// Session signing secret
	SessionSecret string

	// Session lifetime
	SessionTTL time.Duration

	// CORS allowed origins
	CORSOrigins []string

	// Enable debug logging
	Debug bool
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() *Config {
	base := getEnv("CASCADE_BASE_URL", "http://localhost:8080")

	cfg := &Config{
		Environment:      getEnv("CASCADE_ENV", "development"),
		ListenAddr:       getEnv("CASCADE_LISTEN_ADDR", ":8080"),
		BaseURL:          base,
		CASServerURL:     getEnv("CASCADE_CAS_SERVER_URL", base+"/cas"),
		CASVersion:       getEnvInt("CASCADE_CAS_VERSION", 3),
		MockCASEnabled:   getEnvBool("CASCADE_MOCK_CAS", true),
		ProxyMode:        getEnvBool("CASCADE_PROXY_MODE", false),
		ProxyCallbackURL: getEnv("CASCADE_PROXY_CALLBACK_URL", ""),
		TrustedProxies:   getEnvList("CASCADE_TRUSTED_PROXIES", nil),
		SessionBackend:   getEnv("CASCADE_SESSION_BACKEND", "memory"),
		DataDir:          getEnv("CASCADE_DATA_DIR", "data"),
		SessionSecret:    getEnv("CASCADE_SESSION_SECRET", "cascade-demo-secret"),
		SessionTTL:       getEnvDuration("CASCADE_SESSION_TTL", 8*time.Hour),
		CORSOrigins:      getEnvList("CASCADE_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		Debug:            getEnvBool("CASCADE_DEBUG", false),
	}

	return cfg
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true" || value == "1"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.Split(value, ",")
}
