package repo

import (
	"context"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Ports (interfaces) — the engine only ever sees these; memory, postgres and
// sqlite adapters implement them.

type SiteStore interface {
	List(ctx context.Context) ([]*domain.Site, error)
	Get(ctx context.Context, id domain.SiteID) (*domain.Site, error)
	GetByPushToken(ctx context.Context, token string) (*domain.Site, error)
	Add(ctx context.Context, s *domain.Site) error
	UpdateStatus(ctx context.Context, id domain.SiteID, status domain.Status, responseTime int64, lastCheck time.Time, message string) error
	UpdateCertInfo(ctx context.Context, id domain.SiteID, info domain.CertInfo, checkedAt time.Time) error
	UpdateHeartbeat(ctx context.Context, id domain.SiteID, at time.Time, data map[string]any) error
}

type HistoryStore interface {
	AppendHistory(ctx context.Context, id domain.SiteID, sample domain.Result) error
}

type IncidentStore interface {
	CreateIncident(ctx context.Context, inc *domain.Incident) error
	// OngoingIncident returns nil, nil when the site has no ongoing down incident.
	OngoingIncident(ctx context.Context, id domain.SiteID) (*domain.Incident, error)
	ResolveIncident(ctx context.Context, incidentID string, endTime time.Time, durationMS int64) error
}

type AlertStateStore interface {
	// AlertState returns nil, nil when no alert has fired for the site yet.
	AlertState(ctx context.Context, id domain.SiteID) (*domain.CertAlertState, error)
	SetAlertState(ctx context.Context, id domain.SiteID, alertType string, at time.Time) error
}

// SchedulerStateStore persists the round-robin cursor and the check counter,
// so a fresh process resumes where the previous invocation stopped.
type SchedulerStateStore interface {
	Cursor(ctx context.Context) (int, error)
	SetCursor(ctx context.Context, cursor int) error
	AddCheckCount(ctx context.Context, n int64) error
	CheckCount(ctx context.Context) (int64, error)
}

// Store is the full persistence surface a backend provides.
type Store interface {
	SiteStore
	HistoryStore
	IncidentStore
	AlertStateStore
	SchedulerStateStore
	Close() error
}
