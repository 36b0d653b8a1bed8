package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Message is the rendered, channel-agnostic alert content.
type Message struct {
	Title string
	Text  string
}

// Channel delivers one message to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// ChannelResult reports one channel's outcome. Channels are independent:
// one failing never prevents or fails another.
type ChannelResult struct {
	Channel string
	OK      bool
	Err     error
}

type Config struct {
	Enabled bool
	Events  []domain.IncidentType // incident types that may notify
}

func (c Config) wants(t domain.IncidentType) bool {
	for _, e := range c.Events {
		if e == t {
			return true
		}
	}
	return false
}

// Dispatcher fans an incident out to every configured channel concurrently
// and settles all of them, fail-fast never.
type Dispatcher struct {
	Cfg      Config
	Channels []Channel
	Logger   *zap.Logger
}

func (d *Dispatcher) Dispatch(ctx context.Context, inc *domain.Incident, site *domain.Site) []ChannelResult {
	if !d.Cfg.Enabled || !d.Cfg.wants(inc.Type) || !site.Notifiable() || len(d.Channels) == 0 {
		return nil
	}

	msg := Render(inc, site)
	results := make([]ChannelResult, len(d.Channels))

	var wg sync.WaitGroup
	for i, ch := range d.Channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = ChannelResult{Channel: ch.Name(), Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			err := ch.Send(ctx, msg)
			results[i] = ChannelResult{Channel: ch.Name(), OK: err == nil, Err: err}
		}(i, ch)
	}
	wg.Wait()

	if d.Logger != nil {
		d.Logger.Info("notify_dispatched",
			zap.String("incident_id", inc.ID),
			zap.String("type", string(inc.Type)),
			zap.Int("channels", len(results)),
			zap.Int("failed", countFailed(results)),
		)
	}
	return results
}

func countFailed(results []ChannelResult) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}

// Combined flattens per-channel failures into a single error, nil when all
// channels delivered.
func Combined(results []ChannelResult) error {
	var err error
	for _, r := range results {
		if !r.OK && r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", r.Channel, r.Err))
		}
	}
	return err
}
