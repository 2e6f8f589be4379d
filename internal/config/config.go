package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr   string
	DBDriver   string
	DBPath     string
	PDFDir     string
	OutputDir  string
	RawMailDir string

	MongoURI      string
	MongoDatabase string

	AuthMode          string
	DemoUserEmail     string
	DemoUserName      string
	AzureTenantID     string
	AzureClientID     string
	AzureClientSecret string
	AzureRedirectURL  string
	GraphBaseURL      string
	SessionTTLMin     int
	CookieSecure      bool

	LLMProvider        string
	LLMAPIKey          string
	LLMBaseURL         string
	LLMModel           string
	LLMAPIVersion      string
	LLMTimeoutMs       int
	LLMRetryAttempts   int
	LLMRateLimitRPS    int
	SummaryCacheSize   int
	SummaryCacheTTLMin int

	LogLevel string
	LogJSON  bool

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider    string
	MailListenerLabel       string
	MailListenerIntervalSec int
	MailListenerFetchMax    int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		HTTPAddr:   getEnv("HTTP_ADDR", ":8080"),
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "invoices.db")),
		PDFDir:     getEnv("PDF_DIR", filepath.Join(cwd, "data", "pdf")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),

		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "invoices"),

		AuthMode:          strings.ToLower(getEnv("AUTH_MODE", "demo")),
		DemoUserEmail:     getEnv("DEMO_USER_EMAIL", "demo@example.com"),
		DemoUserName:      getEnv("DEMO_USER_NAME", "Demo User"),
		AzureTenantID:     getEnv("AZURE_TENANT_ID", ""),
		AzureClientID:     getEnv("AZURE_CLIENT_ID", ""),
		AzureClientSecret: getEnv("AZURE_CLIENT_SECRET", ""),
		AzureRedirectURL:  getEnv("AZURE_REDIRECT_URL", "http://localhost:8080/auth/callback"),
		GraphBaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0"),
		SessionTTLMin:     getEnvInt("SESSION_TTL_MIN", 480),
		CookieSecure:      getEnvBool("COOKIE_SECURE", false),

		LLMProvider:        strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMAPIKey:          getEnv("LLM_API_KEY", ""),
		LLMBaseURL:         getEnv("LLM_BASE_URL", ""),
		LLMModel:           getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIVersion:      getEnv("LLM_API_VERSION", "2024-06-01"),
		LLMTimeoutMs:       getEnvInt("LLM_TIMEOUT_MS", 30000),
		LLMRetryAttempts:   getEnvInt("LLM_RETRY_ATTEMPTS", 3),
		LLMRateLimitRPS:    getEnvInt("LLM_RATE_LIMIT_RPS", 2),
		SummaryCacheSize:   getEnvInt("SUMMARY_CACHE_SIZE", 256),
		SummaryCacheTTLMin: getEnvInt("SUMMARY_CACHE_TTL_MIN", 60),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:    getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:       getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec: getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:    getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutMs) * time.Millisecond
}

func (c Config) SummaryCacheTTL() time.Duration {
	return time.Duration(c.SummaryCacheTTLMin) * time.Minute
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
