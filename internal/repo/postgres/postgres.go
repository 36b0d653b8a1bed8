package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sites (
		id   TEXT PRIMARY KEY,
		data JSONB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS history (
		id            BIGSERIAL PRIMARY KEY,
		site_id       TEXT NOT NULL,
		ts            TIMESTAMPTZ NOT NULL,
		status        TEXT NOT NULL,
		status_code   INT NOT NULL DEFAULT 0,
		response_time BIGINT NOT NULL DEFAULT 0,
		message       TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS history_site_ts ON history (site_id, ts DESC);
	CREATE TABLE IF NOT EXISTS incidents (
		id         TEXT PRIMARY KEY,
		site_id    TEXT NOT NULL,
		site_name  TEXT NOT NULL DEFAULT '',
		type       TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time   TIMESTAMPTZ,
		status     TEXT NOT NULL,
		reason     TEXT NOT NULL DEFAULT '',
		duration   BIGINT NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS incidents_site ON incidents (site_id, status);
	CREATE TABLE IF NOT EXISTS cert_alerts (
		site_id         TEXT PRIMARY KEY,
		last_alert_type TEXT NOT NULL DEFAULT '',
		last_alert_at   TIMESTAMPTZ
	);
	CREATE TABLE IF NOT EXISTS scheduler_state (
		id          INT PRIMARY KEY CHECK (id = 1),
		cursor_pos  INT NOT NULL DEFAULT 0,
		check_count BIGINT NOT NULL DEFAULT 0
	);
	INSERT INTO scheduler_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sites (id, data) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data`,
		string(site.ID), data)
	return err
}

func (s *Store) List(ctx context.Context) ([]*domain.Site, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM sites ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Site
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var site domain.Site
		if err := json.Unmarshal(data, &site); err != nil {
			return nil, err
		}
		out = append(out, &site)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sites WHERE id=$1`, string(id)).Scan(&data)
	if err != nil {
		return nil, err
	}
	var site domain.Site
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Store) GetByPushToken(ctx context.Context, token string) (*domain.Site, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM sites WHERE data->>'type'='push' AND data->>'push_token'=$1`,
		token).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var site domain.Site
	if err := json.Unmarshal(data, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.SiteID, status domain.Status, responseTime int64, lastCheck time.Time, message string) error {
	patch, _ := json.Marshal(map[string]any{
		"status":           status,
		"response_time_ms": responseTime,
		"last_check":       lastCheck,
		"message":          message,
	})
	_, err := s.pool.Exec(ctx,
		`UPDATE sites SET data = data || $2::jsonb WHERE id=$1`,
		string(id), patch)
	return err
}

func (s *Store) UpdateCertInfo(ctx context.Context, id domain.SiteID, info domain.CertInfo, checkedAt time.Time) error {
	patch, _ := json.Marshal(map[string]any{
		"ssl_cert":            info,
		"ssl_cert_last_check": checkedAt,
	})
	_, err := s.pool.Exec(ctx,
		`UPDATE sites SET data = data || $2::jsonb WHERE id=$1`,
		string(id), patch)
	return err
}

func (s *Store) UpdateHeartbeat(ctx context.Context, id domain.SiteID, at time.Time, data map[string]any) error {
	fields := map[string]any{"last_heartbeat": at}
	if data != nil {
		fields["push_data"] = data
	}
	patch, _ := json.Marshal(fields)
	_, err := s.pool.Exec(ctx,
		`UPDATE sites SET data = data || $2::jsonb WHERE id=$1`,
		string(id), patch)
	return err
}

// ---- HistoryStore ----

func (s *Store) AppendHistory(ctx context.Context, id domain.SiteID, sample domain.Result) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO history (site_id, ts, status, status_code, response_time, message)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		string(id), sample.Timestamp, string(sample.Status),
		sample.StatusCode, sample.ResponseTime, sample.Message)
	return err
}

// ---- IncidentStore ----

func (s *Store) CreateIncident(ctx context.Context, inc *domain.Incident) error {
	if inc.ID == "" {
		inc.ID = makeID()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (id, site_id, site_name, type, start_time, end_time, status, reason, duration)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		inc.ID, string(inc.SiteID), inc.SiteName, string(inc.Type),
		inc.StartTime, inc.EndTime, string(inc.Status), inc.Reason, inc.Duration)
	return err
}

func (s *Store) OngoingIncident(ctx context.Context, id domain.SiteID) (*domain.Incident, error) {
	const q = `
		SELECT id, site_id, site_name, type, start_time, end_time, status, reason, duration
		FROM incidents
		WHERE site_id=$1 AND type='down' AND status='ongoing'
		ORDER BY start_time DESC
		LIMIT 1`
	var inc domain.Incident
	var siteID, typ, status string
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(
		&inc.ID, &siteID, &inc.SiteName, &typ,
		&inc.StartTime, &inc.EndTime, &status, &inc.Reason, &inc.Duration)
	if err == pgx.ErrNoRows {
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
	_, err := s.pool.Exec(ctx,
		`UPDATE incidents SET end_time=$2, duration=$3, status='resolved' WHERE id=$1`,
		incidentID, endTime, durationMS)
	return err
}

// ---- AlertStateStore ----

func (s *Store) AlertState(ctx context.Context, id domain.SiteID) (*domain.CertAlertState, error) {
	var st domain.CertAlertState
	st.SiteID = id
	var at *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_alert_type, last_alert_at FROM cert_alerts WHERE site_id=$1`,
		string(id)).Scan(&st.LastAlertType, &at)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if at != nil {
		st.LastAlertAt = *at
	}
	return &st, nil
}

func (s *Store) SetAlertState(ctx context.Context, id domain.SiteID, alertType string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cert_alerts (site_id, last_alert_type, last_alert_at)
		 VALUES ($1,$2,$3)
		 ON CONFLICT (site_id)
		 DO UPDATE SET last_alert_type=EXCLUDED.last_alert_type, last_alert_at=EXCLUDED.last_alert_at`,
		string(id), alertType, at)
	return err
}

// ---- SchedulerStateStore ----

func (s *Store) Cursor(ctx context.Context) (int, error) {
	var cursor int
	err := s.pool.QueryRow(ctx, `SELECT cursor_pos FROM scheduler_state WHERE id=1`).Scan(&cursor)
	return cursor, err
}

func (s *Store) SetCursor(ctx context.Context, cursor int) error {
	_, err := s.pool.Exec(ctx, `UPDATE scheduler_state SET cursor_pos=$1 WHERE id=1`, cursor)
	return err
}

func (s *Store) AddCheckCount(ctx context.Context, n int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE scheduler_state SET check_count=check_count+$1 WHERE id=1`, n)
	return err
}

func (s *Store) CheckCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT check_count FROM scheduler_state WHERE id=1`).Scan(&n)
	return n, err
}
