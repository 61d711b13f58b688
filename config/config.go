// api/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// SourceConfig configures the outbound event-source client.
type SourceConfig struct {
	BaseURL      string
	APIKey       string
	FormID       string
	FilterFormID string
	PageSize     int
	MaxRecords   int
	FetchBudget  time.Duration
}

// Config holds everything the service reads from the environment. All env
// reads live here so a missing credential surfaces in one place instead of
// deep inside a sync run.
type Config struct {
	Port            string
	DashboardOrigin string
	CronSecret      string
	WebhookSecret   string
	FunnelName      string
	Source          SourceConfig
	RunBudget       time.Duration
	SlackWebhookURL string
	RedisAddr       string
	RedisPassword   string
}

// Load reads the environment into a Config, applying defaults. Credentials
// are allowed to be empty here; the components that need them fail fast with
// a diagnostic when invoked instead of preventing server startup.
func Load() *Config {
	return &Config{
		Port:            envOr("PORT", "8080"),
		DashboardOrigin: envOr("FE_ORIGIN", "http://localhost:3000"),
		CronSecret:      os.Getenv("CRON_SECRET"),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		FunnelName:      envOr("FUNNEL_NAME", "Quiz Funnel"),
		Source: SourceConfig{
			BaseURL:      envOr("EVENT_SOURCE_URL", "https://api.eventsource.example.com"),
			APIKey:       os.Getenv("EVENT_SOURCE_API_KEY"),
			FormID:       os.Getenv("EVENT_SOURCE_FORM_ID"),
			FilterFormID: os.Getenv("EVENT_SOURCE_FILTER_FORM_ID"),
			PageSize:     envIntOr("SYNC_PAGE_SIZE", 500),
			MaxRecords:   envIntOr("SYNC_MAX_RECORDS", 10000),
			FetchBudget:  envDurationOr("SYNC_FETCH_BUDGET_SECONDS", 90*time.Second),
		},
		RunBudget:       envDurationOr("SYNC_RUN_BUDGET_SECONDS", 150*time.Second),
		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
