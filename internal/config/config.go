package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hamed0406/sitewatch/internal/domain"
)

type Config struct {
	Addr        string        // API bind address
	LogDir      string        // logs directory; empty = stderr console
	DatabaseURL string        // empty = memory, postgres://... = pgx, anything else = sqlite path
	SitesFile   string        // optional JSON seed for non-DB runs
	TickEvery   time.Duration // scheduler cadence
	Debug       bool

	// per-protocol probe timeouts
	HTTPTimeout time.Duration
	DNSTimeout  time.Duration
	TCPTimeout  time.Duration
	SMTPTimeout time.Duration
	DBTimeout   time.Duration
	GRPCTimeout time.Duration

	// latency tiers
	SlowAfter     time.Duration
	VerySlowAfter time.Duration

	DoHURL      string
	CertRecheck time.Duration

	Notify NotifyConfig
}

type NotifyConfig struct {
	Enabled bool
	Events  []domain.IncidentType

	SlackWebhook   string
	DiscordWebhook string
	WebhookURL     string

	SMTPHost     string
	SMTPPort     int
	SMTPSecurity domain.SMTPSecurity
	SMTPUser     string
	SMTPPass     string
	EmailFrom    string
	EmailTo      string

	EmailAPIURL   string
	EmailAPIToken string
}

// FromEnv builds the config from the environment, loading an optional .env
// first. Unset knobs get defaults that work for a local run.
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := Config{
		Addr:          envStr("API_ADDR", "127.0.0.1:8080"),
		LogDir:        os.Getenv("LOG_DIR"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SitesFile:     os.Getenv("SITES_FILE"),
		TickEvery:     envDur("TICK_INTERVAL", time.Minute),
		Debug:         envBool("DEBUG", false),
		HTTPTimeout:   envDur("HTTP_TIMEOUT", 30*time.Second),
		DNSTimeout:    envDur("DNS_TIMEOUT", 5*time.Second),
		TCPTimeout:    envDur("TCP_TIMEOUT", 15*time.Second),
		SMTPTimeout:   envDur("SMTP_TIMEOUT", 30*time.Second),
		DBTimeout:     envDur("DB_TIMEOUT", 15*time.Second),
		GRPCTimeout:   envDur("GRPC_TIMEOUT", 15*time.Second),
		SlowAfter:     envDur("SLOW_AFTER", 2*time.Second),
		VerySlowAfter: envDur("VERY_SLOW_AFTER", 5*time.Second),
		DoHURL:        envStr("DOH_URL", "https://cloudflare-dns.com/dns-query"),
		CertRecheck:   envDur("CERT_RECHECK", 6*time.Hour),
	}

	cfg.Notify = NotifyConfig{
		Enabled:        envBool("NOTIFY_ENABLED", true),
		Events:         envEvents("NOTIFY_EVENTS"),
		SlackWebhook:   os.Getenv("SLACK_WEBHOOK"),
		DiscordWebhook: os.Getenv("DISCORD_WEBHOOK"),
		WebhookURL:     os.Getenv("WEBHOOK_URL"),
		SMTPHost:       os.Getenv("SMTP_HOST"),
		SMTPPort:       envInt("SMTP_PORT", 587),
		SMTPSecurity:   domain.SMTPSecurity(envStr("SMTP_SECURITY", string(domain.SMTPSecurityStartTLS))),
		SMTPUser:       os.Getenv("SMTP_USER"),
		SMTPPass:       os.Getenv("SMTP_PASS"),
		EmailFrom:      os.Getenv("EMAIL_FROM"),
		EmailTo:        os.Getenv("EMAIL_TO"),
		EmailAPIURL:    os.Getenv("EMAIL_API_URL"),
		EmailAPIToken:  os.Getenv("EMAIL_API_TOKEN"),
	}
	return cfg
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

// envEvents parses a comma-separated incident type list; unset means all
// alert-worthy events.
func envEvents(key string) []domain.IncidentType {
	v := os.Getenv(key)
	if v == "" {
		return []domain.IncidentType{
			domain.IncidentDown,
			domain.IncidentRecovered,
			domain.IncidentCertWarning,
		}
	}
	var out []domain.IncidentType
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, domain.IncidentType(part))
		}
	}
	return out
}
