package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kowsik11/abhivan/pkg/apperr"
)

type Config struct {
	Port         string
	DatabaseURL  string
	StoreBackend string
	JWTSecret    string

	GoogleClientID     string
	GoogleClientSecret string

	GeminiAPIKeys        []string
	GeminiModel          string
	GeminiEndpoint       string
	GeminiTemperature    float64
	ExtractionMaxRetries int

	HubSpotClientID     string
	HubSpotClientSecret string
	HubSpotAPIBase      string
	HubSpotTokenURL     string

	ZohoClientID     string
	ZohoClientSecret string
	ZohoAccountsURL  string
	ZohoAPIBase      string

	CRMRetryPause     time.Duration
	MessageIndexLimit int
	PollInterval      time.Duration
	PollMaxMessages   int
	DefaultCRM        string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	keys := splitKeys(os.Getenv("GEMINI_API_KEYS"))
	if len(keys) == 0 {
		keys = splitKeys(os.Getenv("GEMINI_API_KEY"))
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		JWTSecret:    getEnv("JWT_SECRET", "your-secret-key-change-in-production"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),

		GeminiAPIKeys:        keys,
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiEndpoint:       strings.TrimRight(getEnv("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta/models"), "/"),
		GeminiTemperature:    getFloat("GEMINI_TEMPERATURE", 0.2),
		ExtractionMaxRetries: getInt("EXTRACTION_MAX_RETRIES", 3),

		HubSpotClientID:     getEnv("HUBSPOT_CLIENT_ID", ""),
		HubSpotClientSecret: getEnv("HUBSPOT_CLIENT_SECRET", ""),
		HubSpotAPIBase:      strings.TrimRight(getEnv("HUBSPOT_API_BASE", "https://api.hubapi.com"), "/"),
		HubSpotTokenURL:     getEnv("HUBSPOT_TOKEN_URL", "https://api.hubapi.com/oauth/v1/token"),

		ZohoClientID:     getEnv("ZOHO_CLIENT_ID", ""),
		ZohoClientSecret: getEnv("ZOHO_CLIENT_SECRET", ""),
		ZohoAccountsURL:  strings.TrimRight(getEnv("ZOHO_ACCOUNTS_URL", "https://accounts.zoho.com"), "/"),
		ZohoAPIBase:      strings.TrimRight(getEnv("ZOHO_API_BASE", "https://www.zohoapis.com"), "/"),

		CRMRetryPause:     getDuration("CRM_RETRY_PAUSE", time.Second),
		MessageIndexLimit: getInt("MESSAGE_INDEX_LIMIT", 10),
		PollInterval:      getDuration("POLL_INTERVAL", 5*time.Minute),
		PollMaxMessages:   getInt("POLL_MAX_MESSAGES", 10),
		DefaultCRM:        getEnv("DEFAULT_CRM", "hubspot"),
	}
}

// Validate reports settings the extraction pipeline cannot run without.
func (c *Config) Validate() error {
	if len(c.GeminiAPIKeys) == 0 {
		return &apperr.ConfigError{Reason: "GEMINI_API_KEYS is not configured"}
	}
	if c.ExtractionMaxRetries < 1 {
		return &apperr.ConfigError{Reason: "EXTRACTION_MAX_RETRIES must be at least 1"}
	}
	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		return &apperr.ConfigError{Reason: "DATABASE_URL is required for the postgres store"}
	}
	return nil
}

// splitKeys accepts comma or whitespace separated keys and keeps their order.
func splitKeys(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			keys = append(keys, f)
		}
	}
	return keys
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
