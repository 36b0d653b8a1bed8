package probe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func TestPushChecker_NoHeartbeatYet(t *testing.T) {
	site := &domain.Site{ID: "p1", Type: domain.MonitorPush, PushIntervalSeconds: 60}
	out := PushChecker{}.Check(context.Background(), site, time.Now())
	if out.Status != domain.StatusUnknown {
		t.Fatalf("want unknown before first heartbeat, got %+v", out)
	}
	if out.Message != "awaiting first heartbeat" {
		t.Fatalf("got %q", out.Message)
	}
}

func TestPushChecker_FreshHeartbeat(t *testing.T) {
	now := time.Now()
	site := &domain.Site{
		ID:                  "p1",
		Type:                domain.MonitorPush,
		PushIntervalSeconds: 60,
		LastHeartbeat:       now.Add(-30 * time.Second),
		PushData:            map[string]any{"latency": float64(42)},
	}
	out := PushChecker{}.Check(context.Background(), site, now)
	if out.Status != domain.StatusOnline {
		t.Fatalf("30s ago within 60s interval, want online, got %+v", out)
	}
	if out.ResponseTime != 42 {
		t.Fatalf("want reported latency 42, got %d", out.ResponseTime)
	}
}

func TestPushChecker_GracePeriodIsTwiceInterval(t *testing.T) {
	now := time.Now()
	site := &domain.Site{
		ID:                  "p1",
		Type:                domain.MonitorPush,
		PushIntervalSeconds: 60,
		LastHeartbeat:       now.Add(-110 * time.Second), // one missed beat, inside 2x
	}
	out := PushChecker{}.Check(context.Background(), site, now)
	if out.Status != domain.StatusOnline {
		t.Fatalf("one missed beat is tolerated, got %+v", out)
	}
}

func TestPushChecker_StaleHeartbeat(t *testing.T) {
	now := time.Now()
	site := &domain.Site{
		ID:                  "p1",
		Type:                domain.MonitorPush,
		PushIntervalSeconds: 60,
		LastHeartbeat:       now.Add(-150 * time.Second),
	}
	out := PushChecker{}.Check(context.Background(), site, now)
	if out.Status != domain.StatusOffline {
		t.Fatalf("150s > 2x60s, want offline, got %+v", out)
	}
	if !strings.Contains(out.Message, "timeout") || !strings.Contains(out.Message, "2 minute(s) ago") {
		t.Fatalf("got %q", out.Message)
	}
}

func TestPushChecker_DefaultInterval(t *testing.T) {
	now := time.Now()
	site := &domain.Site{
		ID:            "p1",
		Type:          domain.MonitorPush,
		LastHeartbeat: now.Add(-90 * time.Second), // inside 2x the 60s default
	}
	out := PushChecker{}.Check(context.Background(), site, now)
	if out.Status != domain.StatusOnline {
		t.Fatalf("want online with default interval, got %+v", out)
	}
}
