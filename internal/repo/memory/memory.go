// Package memory is the in-process store used by tests and single-shot runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type historyRow struct {
	SiteID domain.SiteID
	Sample domain.Result
}

type Store struct {
	mu         sync.RWMutex
	order      []domain.SiteID
	sites      map[domain.SiteID]*domain.Site
	history    []historyRow
	incidents  []*domain.Incident
	alerts     map[domain.SiteID]*domain.CertAlertState
	cursor     int
	checkCount int64
	seq        int
}

func New() *Store {
	return &Store{
		sites:  make(map[domain.SiteID]*domain.Site),
		alerts: make(map[domain.SiteID]*domain.CertAlertState),
	}
}

func (m *Store) Close() error { return nil }

// ---- SiteStore ----

func (m *Store) Add(ctx context.Context, s *domain.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		m.seq++
		s.ID = domain.SiteID(fmt.Sprintf("s%d", m.seq))
	}
	if s.Status == "" {
		s.Status = domain.StatusUnknown
	}
	if _, exists := m.sites[s.ID]; !exists {
		m.order = append(m.order, s.ID)
	}
	cp := *s
	m.sites[s.ID] = &cp
	return nil
}

func (m *Store) List(ctx context.Context) ([]*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Site, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.sites[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Store) Get(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, fmt.Errorf("site %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (m *Store) GetByPushToken(ctx context.Context, token string) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sites {
		if s.Type == domain.MonitorPush && s.PushToken != "" && s.PushToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) UpdateStatus(ctx context.Context, id domain.SiteID, status domain.Status, responseTime int64, lastCheck time.Time, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return fmt.Errorf("site %s not found", id)
	}
	s.Status = status
	s.ResponseTime = responseTime
	s.LastCheck = lastCheck
	s.Message = message
	return nil
}

func (m *Store) UpdateCertInfo(ctx context.Context, id domain.SiteID, info domain.CertInfo, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return fmt.Errorf("site %s not found", id)
	}
	cp := info
	s.SSLCert = &cp
	s.SSLCertLastCheck = checkedAt
	return nil
}

func (m *Store) UpdateHeartbeat(ctx context.Context, id domain.SiteID, at time.Time, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return fmt.Errorf("site %s not found", id)
	}
	s.LastHeartbeat = at
	if data != nil {
		s.PushData = data
	}
	return nil
}

// ---- HistoryStore ----

func (m *Store) AppendHistory(ctx context.Context, id domain.SiteID, sample domain.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, historyRow{SiteID: id, Sample: sample})
	return nil
}

// HistoryFor is a test helper; the engine never reads history back.
func (m *Store) HistoryFor(id domain.SiteID) []domain.Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Result
	for _, h := range m.history {
		if h.SiteID == id {
			out = append(out, h.Sample)
		}
	}
	return out
}

// ---- IncidentStore ----

func (m *Store) CreateIncident(ctx context.Context, inc *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inc.ID == "" {
		m.seq++
		inc.ID = fmt.Sprintf("i%d", m.seq)
	}
	cp := *inc
	m.incidents = append(m.incidents, &cp)
	return nil
}

func (m *Store) OngoingIncident(ctx context.Context, id domain.SiteID) (*domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.incidents) - 1; i >= 0; i-- {
		inc := m.incidents[i]
		if inc.SiteID == id && inc.Type == domain.IncidentDown && inc.Status == domain.IncidentOngoing {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) ResolveIncident(ctx context.Context, incidentID string, endTime time.Time, durationMS int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inc := range m.incidents {
		if inc.ID == incidentID {
			et := endTime
			inc.EndTime = &et
			inc.Status = domain.IncidentResolved
			inc.Duration = durationMS
			return nil
		}
	}
	return fmt.Errorf("incident %s not found", incidentID)
}

// Incidents is a test helper.
func (m *Store) Incidents() []domain.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Incident, 0, len(m.incidents))
	for _, inc := range m.incidents {
		out = append(out, *inc)
	}
	return out
}

// ---- AlertStateStore ----

func (m *Store) AlertState(ctx context.Context, id domain.SiteID) (*domain.CertAlertState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (m *Store) SetAlertState(ctx context.Context, id domain.SiteID, alertType string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[id] = &domain.CertAlertState{SiteID: id, LastAlertType: alertType, LastAlertAt: at}
	return nil
}

// ---- SchedulerStateStore ----

func (m *Store) Cursor(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor, nil
}

func (m *Store) SetCursor(ctx context.Context, cursor int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = cursor
	return nil
}

func (m *Store) AddCheckCount(ctx context.Context, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkCount += n
	return nil
}

func (m *Store) CheckCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkCount, nil
}
