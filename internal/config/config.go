package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // reminder timezones must resolve on minimal images

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultReminderTimes fire every two hours from 07:00 to 21:00
var DefaultReminderTimes = []string{"07:00", "09:00", "11:00", "13:00", "15:00", "17:00", "19:00", "21:00"}

// Config holds application configuration
type Config struct {
	TelegramBotToken string
	TelegramAPIRoot  string
	PollTimeout      int

	NotionToken   string
	NotionVersion string
	NotionAPIBase string
	TasksDBID     string
	TeamDBID      string

	Timezone        string
	ReminderTimes   []string
	ConversationTTL time.Duration
	HandlerTimeout  time.Duration

	RedisURL         string
	IdentityCacheTTL time.Duration
	ChatRateLimit    string

	RabbitMQURL      string
	RabbitMQPrefetch int

	DatabaseURL string

	HealthPort      string
	BotDebugMode    bool
	WorkerDebugMode bool
	OTELEnabled     bool
	OTELEndpoint    string
}

// fileConfig is the optional YAML overlay pointed to by CONFIG_FILE.
// Environment variables win over values from the file.
type fileConfig struct {
	Timezone        string   `yaml:"timezone"`
	ReminderTimes   []string `yaml:"reminder_times"`
	ConversationTTL string   `yaml:"conversation_ttl"`
	ChatRateLimit   string   `yaml:"chat_rate_limit"`
}

// Load loads configuration from a .env file, an optional YAML file and
// environment variables
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIRoot:  getEnv("TELEGRAM_API_ROOT", "https://api.telegram.org"),
		PollTimeout:      getEnvInt("POLL_TIMEOUT", 30),
		NotionToken:      getEnv("NOTION_TOKEN", ""),
		NotionVersion:    getEnv("NOTION_VERSION", "2022-06-28"),
		NotionAPIBase:    getEnv("NOTION_API_BASE", "https://api.notion.com/v1"),
		TasksDBID:        getEnv("TASKS_DB_ID", ""),
		TeamDBID:         getEnv("TEAM_DB_ID", ""),
		Timezone:         getEnv("TIMEZONE", orDefault(file.Timezone, "Europe/Kyiv")),
		ReminderTimes:    getEnvList("REMINDER_TIMES", file.ReminderTimes),
		RedisURL:         getEnv("REDIS_URL", ""),
		ChatRateLimit:    getEnv("CHAT_RATE_LIMIT", orDefault(file.ChatRateLimit, "20-M")),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 1),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		HealthPort:       getEnv("HEALTH_PORT", "8080"),
		BotDebugMode:     getEnvBool("BOT_DEBUG_MODE", false),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if len(cfg.ReminderTimes) == 0 {
		cfg.ReminderTimes = append([]string(nil), DefaultReminderTimes...)
	}

	durations := []struct {
		key      string
		fallback string
		target   *time.Duration
	}{
		{"CONVERSATION_TTL", orDefault(file.ConversationTTL, "30m"), &cfg.ConversationTTL},
		{"HANDLER_TIMEOUT", "30s", &cfg.HandlerTimeout},
		{"IDENTITY_CACHE_TTL", "10m", &cfg.IdentityCacheTTL},
	}
	for _, d := range durations {
		value, err := getEnvDuration(d.key, d.fallback)
		if err != nil {
			return nil, err
		}
		*d.target = value
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"TELEGRAM_BOT_TOKEN", c.TelegramBotToken},
		{"NOTION_TOKEN", c.NotionToken},
		{"TASKS_DB_ID", c.TasksDBID},
		{"TEAM_DB_ID", c.TeamDBID},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.key)
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.PollTimeout <= 0 {
		return fmt.Errorf("POLL_TIMEOUT must be positive, got %d", c.PollTimeout)
	}

	return nil
}

// Location returns the configured reminder timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("failed to parse config file: %w", err)
	}
	return fc, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	raw := getEnv(key, defaultValue)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}

// getEnvList splits a comma separated variable, trimming blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
