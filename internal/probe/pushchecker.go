package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

const defaultPushInterval = 60 * time.Second

// PushChecker performs no outbound I/O: the site reports in on its own, and
// this only compares the last heartbeat against twice the expected interval.
type PushChecker struct{}

func (PushChecker) Check(_ context.Context, site *domain.Site, now time.Time) domain.Result {
	if site.LastHeartbeat.IsZero() {
		return domain.Result{
			Timestamp: now,
			Status:    domain.StatusUnknown,
			Message:   "awaiting first heartbeat",
		}
	}

	interval := time.Duration(site.PushIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPushInterval
	}

	elapsed := now.Sub(site.LastHeartbeat)
	if elapsed > 2*interval {
		return domain.Result{
			Timestamp:    now,
			Status:       domain.StatusOffline,
			ResponseTime: 0,
			Message: failMsg(ClassTimeout,
				fmt.Sprintf("heartbeat timeout: last heartbeat %d minute(s) ago", int(elapsed.Minutes()))),
		}
	}

	return domain.Result{
		Timestamp:    now,
		Status:       domain.StatusOnline,
		ResponseTime: pushLatency(site.PushData),
		Message:      "heartbeat ok",
	}
}

// pushLatency pulls the last reported latency out of the free-form metrics,
// if the reporter included one.
func pushLatency(data map[string]any) int64 {
	v, ok := data["latency"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case int64:
		return n
	}
	return 0
}
