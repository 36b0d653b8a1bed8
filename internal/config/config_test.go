package config

import (
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Addr != "127.0.0.1:8080" {
		t.Fatalf("got addr %q", cfg.Addr)
	}
	if cfg.TickEvery != time.Minute {
		t.Fatalf("got tick %s", cfg.TickEvery)
	}
	if cfg.HTTPTimeout != 30*time.Second || cfg.DNSTimeout != 5*time.Second {
		t.Fatalf("got timeouts %s / %s", cfg.HTTPTimeout, cfg.DNSTimeout)
	}
	if cfg.SlowAfter != 2*time.Second || cfg.VerySlowAfter != 5*time.Second {
		t.Fatalf("got tiers %s / %s", cfg.SlowAfter, cfg.VerySlowAfter)
	}
	if cfg.CertRecheck != 6*time.Hour {
		t.Fatalf("got cert recheck %s", cfg.CertRecheck)
	}
	if !cfg.Notify.Enabled {
		t.Fatal("notifications default to enabled")
	}
	if len(cfg.Notify.Events) != 3 {
		t.Fatalf("unset events must subscribe to all, got %v", cfg.Notify.Events)
	}
	if cfg.Notify.SMTPPort != 587 || cfg.Notify.SMTPSecurity != domain.SMTPSecurityStartTLS {
		t.Fatalf("got smtp %d / %s", cfg.Notify.SMTPPort, cfg.Notify.SMTPSecurity)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("API_ADDR", "0.0.0.0:9001")
	t.Setenv("TICK_INTERVAL", "30s")
	t.Setenv("HTTP_TIMEOUT", "10s")
	t.Setenv("DEBUG", "true")
	t.Setenv("DATABASE_URL", "postgres://x:y@localhost/sitewatch")
	t.Setenv("NOTIFY_EVENTS", "down, cert_warning")
	t.Setenv("SLACK_WEBHOOK", "https://hooks.slack.example/T1")

	cfg := FromEnv()
	if cfg.Addr != "0.0.0.0:9001" {
		t.Fatalf("got addr %q", cfg.Addr)
	}
	if cfg.TickEvery != 30*time.Second {
		t.Fatalf("got tick %s", cfg.TickEvery)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Fatalf("got http timeout %s", cfg.HTTPTimeout)
	}
	if !cfg.Debug {
		t.Fatal("DEBUG=true not honored")
	}
	if cfg.DatabaseURL != "postgres://x:y@localhost/sitewatch" {
		t.Fatalf("got db url %q", cfg.DatabaseURL)
	}
	if cfg.Notify.SlackWebhook != "https://hooks.slack.example/T1" {
		t.Fatalf("got slack %q", cfg.Notify.SlackWebhook)
	}

	want := []domain.IncidentType{domain.IncidentDown, domain.IncidentCertWarning}
	if len(cfg.Notify.Events) != len(want) {
		t.Fatalf("got events %v", cfg.Notify.Events)
	}
	for i, e := range want {
		if cfg.Notify.Events[i] != e {
			t.Fatalf("got events %v", cfg.Notify.Events)
		}
	}
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "soon")
	t.Setenv("SMTP_PORT", "not-a-port")
	t.Setenv("NOTIFY_ENABLED", "maybe")

	cfg := FromEnv()
	if cfg.TickEvery != time.Minute {
		t.Fatalf("got tick %s", cfg.TickEvery)
	}
	if cfg.Notify.SMTPPort != 587 {
		t.Fatalf("got smtp port %d", cfg.Notify.SMTPPort)
	}
	if !cfg.Notify.Enabled {
		t.Fatal("unparseable bool must keep the default")
	}
}
