package domain

import "time"

type IncidentType string

const (
	IncidentDown        IncidentType = "down"
	IncidentRecovered   IncidentType = "recovered"
	IncidentCertWarning IncidentType = "cert_warning"
)

type IncidentStatus string

const (
	IncidentOngoing  IncidentStatus = "ongoing"
	IncidentResolved IncidentStatus = "resolved"
)

// Incident records an alert-worthy state transition. At most one ongoing
// down incident exists per site; a recovered incident always pairs with the
// down incident it resolved.
type Incident struct {
	ID        string         `json:"id"`
	SiteID    SiteID         `json:"site_id"`
	SiteName  string         `json:"site_name"`
	Type      IncidentType   `json:"type"`
	StartTime time.Time      `json:"start_time"`
	EndTime   *time.Time     `json:"end_time,omitempty"`
	Status    IncidentStatus `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"` // set on resolution
}

// CertAlertState is the per-site dedup marker for certificate expiry alerts.
type CertAlertState struct {
	SiteID        SiteID    `json:"site_id"`
	LastAlertType string    `json:"last_alert_type,omitempty"`
	LastAlertAt   time.Time `json:"last_alert_at,omitempty"`
}
