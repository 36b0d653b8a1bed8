package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Decision is what a status transition requires: open a down incident,
// resolve the ongoing one, or neither. Event is the notification to fire,
// empty when the transition is not alert-worthy.
type Decision struct {
	OpenIncident    bool
	ResolveIncident bool
	Event           domain.IncidentType
}

// Transition is a pure function of (previous, next). Only crossings of the
// offline boundary produce incidents; online<->slow churn is silent.
func Transition(prev, next domain.Status) Decision {
	switch {
	case prev != domain.StatusOffline && next == domain.StatusOffline:
		return Decision{OpenIncident: true, Event: domain.IncidentDown}
	case prev == domain.StatusOffline && next.Up():
		return Decision{ResolveIncident: true, Event: domain.IncidentRecovered}
	default:
		return Decision{}
	}
}

// StatusMachine applies probe results: it always persists the status block
// and a history sample, and opens/resolves incidents per Transition.
type StatusMachine struct {
	Sites     repo.SiteStore
	History   repo.HistoryStore
	Incidents repo.IncidentStore
	Logger    *zap.Logger
}

// Apply returns the incident that should be notified, or nil.
func (m *StatusMachine) Apply(ctx context.Context, site *domain.Site, r domain.Result, now time.Time) (*domain.Incident, error) {
	d := Transition(site.Status, r.Status)

	if err := m.Sites.UpdateStatus(ctx, site.ID, r.Status, r.ResponseTime, now, r.Message); err != nil {
		return nil, err
	}
	if err := m.History.AppendHistory(ctx, site.ID, r); err != nil {
		m.Logger.Warn("history_append_error",
			zap.String("site_id", string(site.ID)),
			zap.Error(err),
		)
	}

	switch {
	case d.OpenIncident:
		ongoing, err := m.Incidents.OngoingIncident(ctx, site.ID)
		if err != nil {
			return nil, err
		}
		if ongoing != nil {
			// at most one ongoing down incident per site; stay quiet
			return nil, nil
		}
		inc := &domain.Incident{
			SiteID:    site.ID,
			SiteName:  site.Name,
			Type:      domain.IncidentDown,
			StartTime: now,
			Status:    domain.IncidentOngoing,
			Reason:    r.Message,
		}
		if err := m.Incidents.CreateIncident(ctx, inc); err != nil {
			return nil, err
		}
		m.Logger.Info("incident_opened",
			zap.String("site_id", string(site.ID)),
			zap.String("reason", r.Message),
		)
		return inc, nil

	case d.ResolveIncident:
		ongoing, err := m.Incidents.OngoingIncident(ctx, site.ID)
		if err != nil {
			return nil, err
		}
		if ongoing == nil {
			return nil, nil
		}
		dur := now.Sub(ongoing.StartTime).Milliseconds()
		if err := m.Incidents.ResolveIncident(ctx, ongoing.ID, now, dur); err != nil {
			return nil, err
		}
		end := now
		rec := &domain.Incident{
			SiteID:    site.ID,
			SiteName:  site.Name,
			Type:      domain.IncidentRecovered,
			StartTime: now,
			EndTime:   &end,
			Status:    domain.IncidentResolved,
			Reason:    r.Message,
			Duration:  dur,
		}
		if err := m.Incidents.CreateIncident(ctx, rec); err != nil {
			return nil, err
		}
		m.Logger.Info("incident_resolved",
			zap.String("site_id", string(site.ID)),
			zap.Int64("duration_ms", dur),
		)
		return rec, nil
	}

	return nil, nil
}
