package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/language"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 4000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Agent Configuration:
// - AGENT_MAX_TURNS: Max model round-trips per agent invocation (default: 5)
// - AGENT_HISTORY_WINDOW: Conversation turns kept in the model window (default: 10)
//
// Workspace Bridge Configuration:
// - WORKSPACE_API_URL: Base URL of the delegated Google Workspace bridge
// - WORKSPACE_TIMEOUT: Bridge request timeout in seconds (default: 30)
// - WORKSPACE_SERVICE_TOKEN: Token used by background jobs that run without a user session
//
// Weather Configuration:
// - SMHI_API_URL: SMHI point forecast base URL
//
// Storage Configuration:
// - DB_PATH: SQLite database file (default: /app/data/byggpilot.db)
//
// Jobs Configuration:
// - JOBS_MODE: "inline" or "queued" (default: queued)
// - JOBS_WORKERS: Worker goroutines for the queued mode (default: 2)
//
// Reminder Configuration:
// - REMINDER_CRON: Cron expression for stale-draft reminders (default: 0 7 * * *)
// - STALE_DRAFT_AGE_DAYS: Age before a draft counts as stale (default: 7)
//
// HTTP Configuration:
// - HTTP_ADDR: Listen address for the API (default: :8080)
// - HTTP_UI_ENABLED: Serve the bundled admin UI (default: false)
// - HTTP_STATIC_DIR: Directory with the admin UI build (default: /app/web)
//
// System Configuration:
// - LOG_LEVEL: debug|info|warn|error (default: info)
// - REPLY_LANGUAGE: Default reply language tag (default: sv)

type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Agent     AgentConfig     `json:"agent"`
	Workspace WorkspaceConfig `json:"workspace"`
	Weather   WeatherConfig   `json:"weather"`
	Storage   StorageConfig   `json:"storage"`
	Jobs      JobsConfig      `json:"jobs"`
	Reminder  ReminderConfig  `json:"reminder"`
	HTTP      HTTPConfig      `json:"http"`
	System    SystemConfig    `json:"system"`
}

// LLMConfig holds the configuration for the LLM client
// Supports any OpenAI-compatible provider (OpenRouter, OpenAI, etc.)
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// AgentConfig bounds the tool-calling loop
type AgentConfig struct {
	MaxTurns      int `json:"max_turns"`
	HistoryWindow int `json:"history_window"`
}

// WorkspaceConfig holds the delegated Google Workspace bridge endpoint
type WorkspaceConfig struct {
	APIURL       string `json:"api_url"`
	Timeout      int    `json:"timeout"`
	ServiceToken string `json:"service_token"`
}

// WeatherConfig holds the SMHI open data endpoint
type WeatherConfig struct {
	APIURL string `json:"api_url"`
}

// StorageConfig holds the document store location
type StorageConfig struct {
	DBPath string `json:"db_path"`
}

// JobsConfig selects how generation jobs execute
type JobsConfig struct {
	Mode    string `json:"mode"`
	Workers int    `json:"workers"`
}

// ReminderConfig drives the scheduled stale-draft sweep
type ReminderConfig struct {
	CronExpr          string `json:"cron_expr"`
	StaleDraftAgeDays int    `json:"stale_draft_age_days"`
}

// HTTPConfig holds the API listen address and optional admin UI
type HTTPConfig struct {
	Addr      string `json:"addr"`
	UIEnabled bool   `json:"ui_enabled"`
	StaticDir string `json:"static_dir"`
}

// SystemConfig holds process-level settings
type SystemConfig struct {
	LogLevel      string       `json:"log_level"`
	ReplyLanguage language.Tag `json:"reply_language"`
}

const (
	JobsModeInline = "inline"
	JobsModeQueued = "queued"
)

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", "byggpilot"),
		},
		Agent: AgentConfig{
			MaxTurns:      getEnvInt("AGENT_MAX_TURNS", 5),
			HistoryWindow: getEnvInt("AGENT_HISTORY_WINDOW", 10),
		},
		Workspace: WorkspaceConfig{
			APIURL:       getEnvString("WORKSPACE_API_URL", ""),
			Timeout:      getEnvInt("WORKSPACE_TIMEOUT", 30),
			ServiceToken: getEnvString("WORKSPACE_SERVICE_TOKEN", ""),
		},
		Weather: WeatherConfig{
			APIURL: getEnvString("SMHI_API_URL", "https://opendata-download-metfcst.smhi.se"),
		},
		Storage: StorageConfig{
			DBPath: getEnvString("DB_PATH", "/app/data/byggpilot.db"),
		},
		Jobs: JobsConfig{
			Mode:    getEnvString("JOBS_MODE", JobsModeQueued),
			Workers: getEnvInt("JOBS_WORKERS", 2),
		},
		Reminder: ReminderConfig{
			CronExpr:          getEnvString("REMINDER_CRON", "0 7 * * *"),
			StaleDraftAgeDays: getEnvInt("STALE_DRAFT_AGE_DAYS", 7),
		},
		HTTP: HTTPConfig{
			Addr:      getEnvString("HTTP_ADDR", ":8080"),
			UIEnabled: getEnvBool("HTTP_UI_ENABLED", false),
			StaticDir: getEnvString("HTTP_STATIC_DIR", "/app/web"),
		},
		System: SystemConfig{
			LogLevel:      getEnvString("LOG_LEVEL", "info"),
			ReplyLanguage: parseLanguage(getEnvString("REPLY_LANGUAGE", "sv")),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Jobs.Mode != JobsModeInline && c.Jobs.Mode != JobsModeQueued {
		return fmt.Errorf("JOBS_MODE must be %q or %q", JobsModeInline, JobsModeQueued)
	}
	return nil
}

func parseLanguage(raw string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return language.Swedish
	}
	return tag
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
