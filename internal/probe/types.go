package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Checker runs a single probe against a site. Implementations never return
// errors past this boundary: every failure is captured as a Result with
// status offline (or unknown) and a classified message, and the call returns
// within the protocol's configured timeout.
type Checker interface {
	Check(ctx context.Context, site *domain.Site, now time.Time) domain.Result
}

// Config carries per-protocol timeouts and the latency tiers shared by all
// checkers.
type Config struct {
	HTTPTimeout time.Duration
	DNSTimeout  time.Duration
	TCPTimeout  time.Duration
	SMTPTimeout time.Duration
	DBTimeout   time.Duration
	GRPCTimeout time.Duration

	SlowAfter     time.Duration // latency above this classifies as slow
	VerySlowAfter time.Duration // latency above this overrides the message

	DoHURL string // default DNS-over-HTTPS endpoint
}

func DefaultConfig() Config {
	return Config{
		HTTPTimeout:   30 * time.Second,
		DNSTimeout:    5 * time.Second,
		TCPTimeout:    15 * time.Second,
		SMTPTimeout:   30 * time.Second,
		DBTimeout:     15 * time.Second,
		GRPCTimeout:   15 * time.Second,
		SlowAfter:     2 * time.Second,
		VerySlowAfter: 5 * time.Second,
		DoHURL:        "https://cloudflare-dns.com/dns-query",
	}
}

// classifyLatency turns a successful probe into online or slow.
func (c Config) classifyLatency(base string, elapsed time.Duration) (domain.Status, string) {
	switch {
	case c.VerySlowAfter > 0 && elapsed >= c.VerySlowAfter:
		return domain.StatusSlow, fmt.Sprintf("%s (very slow: %dms)", base, millis(elapsed))
	case c.SlowAfter > 0 && elapsed >= c.SlowAfter:
		return domain.StatusSlow, fmt.Sprintf("%s (slow: %dms)", base, millis(elapsed))
	default:
		return domain.StatusOnline, base
	}
}

func millis(d time.Duration) int64 { return d.Milliseconds() }

func up(now time.Time, status domain.Status, code int, elapsed time.Duration, msg string) domain.Result {
	return domain.Result{
		Timestamp:    now,
		Status:       status,
		StatusCode:   code,
		ResponseTime: millis(elapsed),
		Message:      msg,
	}
}

func down(now time.Time, code int, elapsed time.Duration, msg string) domain.Result {
	return domain.Result{
		Timestamp:    now,
		Status:       domain.StatusOffline,
		StatusCode:   code,
		ResponseTime: millis(elapsed),
		Message:      msg,
	}
}
