// Package sqlite backs the store with a single file, for single-binary
// deployments where running Postgres is overkill.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite handles one writer at a time
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sites (
		id   TEXT PRIMARY KEY,
		data TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS history (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		site_id       TEXT NOT NULL,
		ts            TIMESTAMP NOT NULL,
		status        TEXT NOT NULL,
		status_code   INTEGER NOT NULL DEFAULT 0,
		response_time INTEGER NOT NULL DEFAULT 0,
		message       TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS incidents (
		id         TEXT PRIMARY KEY,
		site_id    TEXT NOT NULL,
		site_name  TEXT NOT NULL DEFAULT '',
		type       TEXT NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time   TIMESTAMP,
		status     TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		duration   INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS cert_alerts (
		site_id         TEXT PRIMARY KEY,
		last_alert_type TEXT NOT NULL DEFAULT '',
		last_alert_at   TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS scheduler_state (
		id          INTEGER PRIMARY KEY CHECK (id = 1),
		cursor_pos  INTEGER NOT NULL DEFAULT 0,
		check_count INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO scheduler_state (id) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func makeID() string {
	return time.Now().UTC().Format("20060102T150405.000000000")
}

// ---- SiteStore ----

func (s *Store) Add(ctx context.Context, site *domain.Site) error {
	if site.ID == "" {
		site.ID = domain.SiteID(makeID())
	}
	if site.Status == "" {
		site.Status = domain.StatusUnknown
	}
	data, err := json.Marshal(site)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sites (id, data) VALUES (?, ?)
		 ON CONFLICT (id) DO UPDATE SET data=excluded.data`,
		string(site.ID), string(data))
	return err
}

func (s *Store) List(ctx context.Context) ([]*domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM sites ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Site
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var site domain.Site
		if err := json.Unmarshal([]byte(data), &site); err != nil {
			return nil, err
		}
		out = append(out, &site)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sites WHERE id=?`, string(id)).Scan(&data)
	if err != nil {
		return nil, err
	}
	var site domain.Site
	if err := json.Unmarshal([]byte(data), &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Store) GetByPushToken(ctx context.Context, token string) (*domain.Site, error) {
	sites, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, site := range sites {
		if site.Type == domain.MonitorPush && site.PushToken != "" && site.PushToken == token {
			return site, nil
		}
	}
	return nil, nil
}

// mutate reads a site row, applies fn, and writes it back inside one tx.
func (s *Store) mutate(ctx context.Context, id domain.SiteID, fn func(*domain.Site)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var data string
	if err := tx.QueryRowContext(ctx, `SELECT data FROM sites WHERE id=?`, string(id)).Scan(&data); err != nil {
		return err
	}
	var site domain.Site
	if err := json.Unmarshal([]byte(data), &site); err != nil {
		return err
	}
	fn(&site)
	updated, err := json.Marshal(&site)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sites SET data=? WHERE id=?`, string(updated), string(id)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.SiteID, status domain.Status, responseTime int64, lastCheck time.Time, message string) error {
	return s.mutate(ctx, id, func(site *domain.Site) {
		site.Status = status
		site.ResponseTime = responseTime
		site.LastCheck = lastCheck
		site.Message = message
	})
}

func (s *Store) UpdateCertInfo(ctx context.Context, id domain.SiteID, info domain.CertInfo, checkedAt time.Time) error {
	return s.mutate(ctx, id, func(site *domain.Site) {
		cp := info
		site.SSLCert = &cp
		site.SSLCertLastCheck = checkedAt
	})
}

func (s *Store) UpdateHeartbeat(ctx context.Context, id domain.SiteID, at time.Time, data map[string]any) error {
	return s.mutate(ctx, id, func(site *domain.Site) {
		site.LastHeartbeat = at
		if data != nil {
			site.PushData = data
		}
	})
}

// ---- HistoryStore ----

func (s *Store) AppendHistory(ctx context.Context, id domain.SiteID, sample domain.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (site_id, ts, status, status_code, response_time, message)
		 VALUES (?,?,?,?,?,?)`,
		string(id), sample.Timestamp, string(sample.Status),
		sample.StatusCode, sample.ResponseTime, sample.Message)
	return err
}

// ---- IncidentStore ----

func (s *Store) CreateIncident(ctx context.Context, inc *domain.Incident) error {
	if inc.ID == "" {
		inc.ID = makeID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (id, site_id, site_name, type, start_time, end_time, status, reason, duration)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		inc.ID, string(inc.SiteID), inc.SiteName, string(inc.Type),
		inc.StartTime, inc.EndTime, string(inc.Status), inc.Reason, inc.Duration)
	return err
}

func (s *Store) OngoingIncident(ctx context.Context, id domain.SiteID) (*domain.Incident, error) {
	const q = `
		SELECT id, site_id, site_name, type, start_time, end_time, status, reason, duration
		FROM incidents
		WHERE site_id=? AND type='down' AND status='ongoing'
		ORDER BY start_time DESC
		LIMIT 1`
	var inc domain.Incident
	var siteID, typ, status string
	err := s.db.QueryRowContext(ctx, q, string(id)).Scan(
		&inc.ID, &siteID, &inc.SiteName, &typ,
		&inc.StartTime, &inc.EndTime, &status, &inc.Reason, &inc.Duration)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inc.SiteID = domain.SiteID(siteID)
	inc.Type = domain.IncidentType(typ)
	inc.Status = domain.IncidentStatus(status)
	return &inc, nil
}

func (s *Store) ResolveIncident(ctx context.Context, incidentID string, endTime time.Time, durationMS int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE incidents SET end_time=?, duration=?, status='resolved' WHERE id=?`,
		endTime, durationMS, incidentID)
	return err
}

// ---- AlertStateStore ----

func (s *Store) AlertState(ctx context.Context, id domain.SiteID) (*domain.CertAlertState, error) {
	var st domain.CertAlertState
	st.SiteID = id
	var at sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT last_alert_type, last_alert_at FROM cert_alerts WHERE site_id=?`,
		string(id)).Scan(&st.LastAlertType, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if at.Valid {
		st.LastAlertAt = at.Time
	}
	return &st, nil
}

func (s *Store) SetAlertState(ctx context.Context, id domain.SiteID, alertType string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cert_alerts (site_id, last_alert_type, last_alert_at)
		 VALUES (?,?,?)
		 ON CONFLICT (site_id)
		 DO UPDATE SET last_alert_type=excluded.last_alert_type, last_alert_at=excluded.last_alert_at`,
		string(id), alertType, at)
	return err
}

// ---- SchedulerStateStore ----

func (s *Store) Cursor(ctx context.Context) (int, error) {
	var cursor int
	err := s.db.QueryRowContext(ctx, `SELECT cursor_pos FROM scheduler_state WHERE id=1`).Scan(&cursor)
	return cursor, err
}

func (s *Store) SetCursor(ctx context.Context, cursor int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scheduler_state SET cursor_pos=? WHERE id=1`, cursor)
	return err
}

func (s *Store) AddCheckCount(ctx context.Context, n int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scheduler_state SET check_count=check_count+? WHERE id=1`, n)
	return err
}

func (s *Store) CheckCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT check_count FROM scheduler_state WHERE id=1`).Scan(&n)
	return n, err
}
