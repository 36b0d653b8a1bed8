package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Notifier fans an incident out to the configured channels.
type Notifier interface {
	Dispatch(ctx context.Context, inc *domain.Incident, site *domain.Site) []notify.ChannelResult
}

// Scheduler drives one tick: exactly one actively-probed site advances
// through checker -> state machine -> (detached) cert watch -> notification,
// while every push site gets its cheap heartbeat evaluation. The cursor is
// persisted so each invocation may run in a fresh process.
type Scheduler struct {
	Sites    repo.SiteStore
	State    repo.SchedulerStateStore
	Registry *probe.Registry
	Machine  *StatusMachine
	Certs    *CertMonitor // optional
	Notifier Notifier     // optional
	Tasks    *TaskGroup
	Logger   *zap.Logger
}

func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	sites, err := s.Sites.List(ctx)
	if err != nil {
		return err
	}

	var active, push []*domain.Site
	for _, site := range sites {
		if site.Type.Active() {
			active = append(active, site)
		} else {
			push = append(push, site)
		}
	}

	if len(active) > 0 {
		cursor, err := s.State.Cursor(ctx)
		if err != nil {
			s.Logger.Warn("cursor_read_error", zap.Error(err))
			cursor = 0
		}
		i := cursor % len(active)
		if i < 0 {
			i = 0
		}
		s.probeOne(ctx, active[i], now)
		if err := s.State.SetCursor(ctx, (i+1)%len(active)); err != nil {
			s.Logger.Warn("cursor_write_error", zap.Error(err))
		}
		// one actively probed site per tick; the push sweep is not counted
		if err := s.State.AddCheckCount(ctx, 1); err != nil {
			s.Logger.Warn("check_count_error", zap.Error(err))
		}
	}

	for _, site := range push {
		s.sweepPush(ctx, site, now)
	}
	return nil
}

func (s *Scheduler) probeOne(ctx context.Context, site *domain.Site, now time.Time) {
	// a malformed site must cost us this site's slot, never the tick
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error("site_skipped",
				zap.String("site_id", string(site.ID)),
				zap.Any("panic", r),
			)
		}
	}()

	checker, ok := s.Registry.ForType(site.Type)
	if !ok {
		s.Logger.Error("site_skipped",
			zap.String("site_id", string(site.ID)),
			zap.String("type", string(site.Type)),
			zap.String("reason", "no checker for monitor type"),
		)
		return
	}

	r := checker.Check(ctx, site, now)
	r = probe.ApplyInversion(site, r)

	s.Logger.Debug("tick_probed",
		zap.String("site_id", string(site.ID)),
		zap.String("type", string(site.Type)),
		zap.String("status", string(r.Status)),
		zap.Int64("response_time_ms", r.ResponseTime),
		zap.String("message", r.Message),
	)

	inc, err := s.Machine.Apply(ctx, site, r, now)
	if err != nil {
		s.Logger.Warn("apply_error",
			zap.String("site_id", string(site.ID)),
			zap.Error(err),
		)
	}
	if inc != nil {
		s.notifyDetached(ctx, inc, site)
	}

	if s.Certs != nil && site.Type == domain.MonitorHTTP {
		bctx := context.WithoutCancel(ctx)
		snapshot := *site
		s.Tasks.Go("cert_check", func() {
			certInc, err := s.Certs.Run(bctx, &snapshot, now)
			if err != nil {
				s.Logger.Warn("cert_check_error",
					zap.String("site_id", string(snapshot.ID)),
					zap.Error(err),
				)
				return
			}
			if certInc != nil {
				s.notifyDetached(bctx, certInc, &snapshot)
			}
		})
	}
}

func (s *Scheduler) sweepPush(ctx context.Context, site *domain.Site, now time.Time) {
	checker, ok := s.Registry.ForType(domain.MonitorPush)
	if !ok {
		return
	}
	r := checker.Check(ctx, site, now)
	r = probe.ApplyInversion(site, r)

	inc, err := s.Machine.Apply(ctx, site, r, now)
	if err != nil {
		s.Logger.Warn("apply_error",
			zap.String("site_id", string(site.ID)),
			zap.Error(err),
		)
	}
	if inc != nil {
		s.notifyDetached(ctx, inc, site)
	}
}

func (s *Scheduler) notifyDetached(ctx context.Context, inc *domain.Incident, site *domain.Site) {
	if s.Notifier == nil {
		return
	}
	bctx := context.WithoutCancel(ctx)
	snapshot := *site
	incident := *inc
	s.Tasks.Go("notify", func() {
		results := s.Notifier.Dispatch(bctx, &incident, &snapshot)
		if err := notify.Combined(results); err != nil {
			s.Logger.Warn("notify_failed",
				zap.String("site_id", string(snapshot.ID)),
				zap.String("incident_id", incident.ID),
				zap.Error(err),
			)
		}
	})
}
