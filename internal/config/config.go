package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Mail     MailConfig
	AI       AIConfig
	Poller   PollerConfig
	Bot      BotConfig
	Kafka    KafkaConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	CORSOrigins           string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// MailConfig holds mailbox and relay settings. The same account is used for
// IMAP retrieval and SMTP submission.
type MailConfig struct {
	IMAPHost              string
	IMAPPort              int
	IMAPMailbox           string
	SMTPHost              string
	SMTPPort              int
	From                  string
	User                  string
	Password              string
	DialTimeoutSeconds    int
	SessionTimeoutSeconds int
	DedupeTTLHours        int
}

// IMAPConfigured reports whether inbound credentials are complete.
func (m MailConfig) IMAPConfigured() bool {
	return m.IMAPHost != "" && m.User != "" && m.Password != ""
}

// SMTPConfigured reports whether relay credentials are complete.
func (m MailConfig) SMTPConfigured() bool {
	return m.SMTPHost != "" && m.User != "" && m.Password != ""
}

// DialTimeout returns the network dial timeout for mail sessions.
func (m MailConfig) DialTimeout() time.Duration {
	if m.DialTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(m.DialTimeoutSeconds) * time.Second
}

// SessionTimeout bounds a whole IMAP or SMTP session, so a stalled server
// cannot hold a pass forever.
func (m MailConfig) SessionTimeout() time.Duration {
	if m.SessionTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(m.SessionTimeoutSeconds) * time.Second
}

// DedupeTTL returns how long processed Message-IDs are remembered.
func (m MailConfig) DedupeTTL() time.Duration {
	if m.DedupeTTLHours <= 0 {
		return 0
	}
	return time.Duration(m.DedupeTTLHours) * time.Hour
}

// AIConfig configures the OpenAI-compatible completion endpoint.
type AIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	Temperature    float64
	MaxTokens      int
	TimeoutSeconds int
}

// Timeout returns the per-request timeout for AI calls.
func (a AIConfig) Timeout() time.Duration {
	if a.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// PollerConfig controls the background mail poller.
type PollerConfig struct {
	Enabled         bool
	IntervalSeconds int
}

// Interval returns the pause between passes.
func (p PollerConfig) Interval() time.Duration {
	if p.IntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.IntervalSeconds) * time.Second
}

// BotConfig holds the notification bot webhook settings.
type BotConfig struct {
	WebhookURL string
	Secret     string
}

// KafkaConfig holds the ticket event stream settings.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	temperature, err := strconv.ParseFloat(getEnv("AI_TEMPERATURE", "0.3"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid AI_TEMPERATURE: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			CORSOrigins:           getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "change_me_in_production"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 8*60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Mail: MailConfig{
			IMAPHost:              os.Getenv("IMAP_HOST"),
			IMAPPort:              getEnvAsInt("IMAP_PORT", 993),
			IMAPMailbox:           getEnv("IMAP_MAILBOX", "INBOX"),
			SMTPHost:              os.Getenv("SMTP_HOST"),
			SMTPPort:              getEnvAsInt("SMTP_PORT", 587),
			From:                  os.Getenv("SMTP_FROM"),
			User:                  os.Getenv("EMAIL_USER"),
			Password:              os.Getenv("EMAIL_PASSWORD"),
			DialTimeoutSeconds:    getEnvAsInt("MAIL_DIAL_TIMEOUT_SECONDS", 15),
			SessionTimeoutSeconds: getEnvAsInt("MAIL_SESSION_TIMEOUT_SECONDS", 120),
			DedupeTTLHours:        getEnvAsInt("DEDUPE_TTL_HOURS", 72),
		},
		AI: AIConfig{
			BaseURL:        getEnv("AI_BASE_URL", "https://api.groq.com/openai/v1"),
			APIKey:         os.Getenv("AI_API_KEY"),
			Model:          getEnv("AI_MODEL", "llama-3.3-70b-versatile"),
			Temperature:    temperature,
			MaxTokens:      getEnvAsInt("AI_MAX_TOKENS", 1024),
			TimeoutSeconds: getEnvAsInt("AI_TIMEOUT_SECONDS", 30),
		},
		Poller: PollerConfig{
			Enabled:         getEnvAsBool("POLL_ENABLED", true),
			IntervalSeconds: getEnvAsInt("POLL_INTERVAL_SECONDS", 60),
		},
		Bot: BotConfig{
			WebhookURL: os.Getenv("BOT_WEBHOOK_URL"),
			Secret:     getEnv("BOT_SECRET", "change_me_bot_secret"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("TICKET_EVENTS_TOPIC", "support.ticket-events"),
		},
	}

	if cfg.Mail.From == "" {
		cfg.Mail.From = cfg.Mail.User
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
